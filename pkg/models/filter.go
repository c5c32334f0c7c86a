package models

import "sort"

// ListFilter narrows a task list by exact match. Zero values mean the
// filter is not applied.
type ListFilter struct {
	Category Category `json:"category,omitempty"`
	Status   Status   `json:"status,omitempty"`
}

func (f ListFilter) isZero() bool {
	return f.Category == "" && f.Status == ""
}

// SortKey selects the comparator used by SortTasks.
type SortKey string

const (
	SortByCreated  SortKey = "created"
	SortByDue      SortKey = "due"
	SortByPriority SortKey = "priority"
)

// FilterTasks returns the tasks matching f. An empty filter returns the
// input slice unchanged.
func FilterTasks(tasks []Task, f ListFilter) []Task {
	if f.isZero() {
		return tasks
	}

	var out []Task
	for _, t := range tasks {
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	return out
}

// SortTasks returns a sorted copy of tasks. Sorting is stable.
// Priority sorts high before low; due date sorts ascending with undated
// tasks last; created date sorts newest first (the default).
func SortTasks(tasks []Task, key SortKey) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)

	switch key {
	case SortByPriority:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Priority.Rank() < out[j].Priority.Rank()
		})
	case SortByDue:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].DueAt == nil {
				return false
			}
			if out[j].DueAt == nil {
				return true
			}
			return out[i].DueAt.Before(*out[j].DueAt)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

// FilterAndSort composes FilterTasks then SortTasks.
func FilterAndSort(tasks []Task, f ListFilter, key SortKey) []Task {
	return SortTasks(FilterTasks(tasks, f), key)
}
