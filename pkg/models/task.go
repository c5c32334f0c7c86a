package models

import "time"

type Category string

const (
	CategoryWork  Category = "work"
	CategoryStudy Category = "study"
	CategoryLife  Category = "life"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for sorting, high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	}
	return 3
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// ReminderLead is how long before the due time a reminder fires.
type ReminderLead string

const (
	ReminderNone   ReminderLead = "none"
	ReminderAtTime ReminderLead = "at_time"
	Reminder5m     ReminderLead = "5m"
	Reminder15m    ReminderLead = "15m"
	Reminder30m    ReminderLead = "30m"
	Reminder1h     ReminderLead = "1h"
	Reminder2h     ReminderLead = "2h"
	Reminder1d     ReminderLead = "1d"
)

// Duration maps a lead to the interval before the due time at which a
// task becomes eligible for a reminder. ReminderNone and unknown values
// map to 0; callers must check for ReminderNone separately.
func (l ReminderLead) Duration() time.Duration {
	switch l {
	case Reminder5m:
		return 5 * time.Minute
	case Reminder15m:
		return 15 * time.Minute
	case Reminder30m:
		return 30 * time.Minute
	case Reminder1h:
		return time.Hour
	case Reminder2h:
		return 2 * time.Hour
	case Reminder1d:
		return 24 * time.Hour
	}
	return 0
}

type Task struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Category     Category     `json:"category"`
	Priority     Priority     `json:"priority"`
	Status       Status       `json:"status"`
	DueAt        *time.Time   `json:"due_at,omitempty"`
	ReminderLead ReminderLead `json:"reminder_lead"`
	Notified     bool         `json:"notified"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
