// Package reminder decides which tasks qualify for an immediate
// reminder at a given instant. Evaluation is a pure scan over the
// collection; it never touches storage or the clock.
package reminder

import (
	"time"

	"github.com/ldi/nudge/pkg/models"
)

// GraceWindow keeps a missed reminder eligible for a while after the
// due time so it still surfaces once, without firing indefinitely.
const GraceWindow = time.Hour

// Eligible reports whether a reminder should fire for t at now.
//
// For very short leads the eligibility window [due-lead, due+grace] is
// dominated by the trailing grace; that asymmetry matches the shipped
// behavior and is intentional.
func Eligible(t models.Task, now time.Time) bool {
	if t.Status == models.StatusCompleted {
		return false
	}
	if t.DueAt == nil || t.ReminderLead == models.ReminderNone {
		return false
	}
	if t.Notified {
		return false
	}

	from := t.DueAt.Add(-t.ReminderLead.Duration())
	until := t.DueAt.Add(GraceWindow)
	return !now.Before(from) && !now.After(until)
}

// Evaluate returns the tasks due for a reminder at now.
func Evaluate(tasks []models.Task, now time.Time) []models.Task {
	var due []models.Task
	for _, t := range tasks {
		if Eligible(t, now) {
			due = append(due, t)
		}
	}
	return due
}
