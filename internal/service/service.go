// Package service enforces task invariants and mediates every mutation.
//
// The service owns the authoritative in-memory collection for the
// session; the store is a durability mirror written through
// synchronously before a mutation is reported as successful. When the
// store signals NOT_SUPPORTED the service degrades to session-only
// operation instead of failing.
package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/nudge/internal/store"
	"github.com/ldi/nudge/pkg/models"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 500
)

// Store is the durability boundary the service writes through to.
type Store interface {
	Init(ctx context.Context) error
	GetAll(ctx context.Context) ([]models.Task, error)
	Put(ctx context.Context, t models.Task) error
	Update(ctx context.Context, t models.Task) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	mu    sync.Mutex
	tasks []models.Task
	store Store // nil once degraded to session-only

	now   func() time.Time
	newID func() string
}

func New(st Store) *Service {
	return &Service{
		store: st,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Load initializes the store and reads the persisted collection. A
// NOT_SUPPORTED store degrades the service to session-only operation
// and is not an error; Persistent reports which mode won.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil
	}

	if err := s.store.Init(ctx); err != nil {
		if store.CodeOf(err) == store.ErrNotSupported {
			s.store = nil
			return nil
		}
		return err
	}

	tasks, err := s.store.GetAll(ctx)
	if err != nil {
		return err
	}
	s.tasks = tasks
	return nil
}

// Persistent reports whether mutations are written through to durable
// storage.
func (s *Service) Persistent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store != nil
}

// CreateInput carries the caller-supplied fields for a new task.
type CreateInput struct {
	Title        string
	Description  string
	Category     models.Category
	Priority     models.Priority
	Status       models.Status
	DueAt        *time.Time
	ReminderLead models.ReminderLead
}

// Create validates input and produces a new persisted task.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Task, error) {
	title, err := validTitle(in.Title)
	if err != nil {
		return models.Task{}, err
	}
	if len(in.Description) > maxDescriptionLen {
		return models.Task{}, validationErr(CodeDescriptionTooLong, "description exceeds 500 characters")
	}
	due, err := validDueAt(in.DueAt)
	if err != nil {
		return models.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t := models.Task{
		ID:           s.newID(),
		Title:        title,
		Description:  in.Description,
		Category:     in.Category,
		Priority:     in.Priority,
		Status:       in.Status,
		DueAt:        due,
		ReminderLead: in.ReminderLead,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.Category == "" {
		t.Category = models.CategoryLife
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	if t.ReminderLead == "" || t.DueAt == nil {
		t.ReminderLead = models.ReminderNone
	}

	if s.store != nil {
		if err := s.store.Put(ctx, t); err != nil {
			return models.Task{}, err
		}
	}

	s.tasks = append(s.tasks, t)
	return t, nil
}

// Patch carries optional field updates. Nil pointers leave the field
// untouched; ClearDueAt removes the due time entirely, which also
// resets the reminder lead and the notified flag.
type Patch struct {
	Title        *string
	Description  *string
	Category     *models.Category
	Priority     *models.Priority
	Status       *models.Status
	DueAt        *time.Time
	ClearDueAt   bool
	ReminderLead *models.ReminderLead
}

// Update merges patch over the existing record, re-validating any field
// the patch touches. A change to the due time or reminder lead rearms
// the reminder by resetting notified.
func (s *Service) Update(ctx context.Context, id string, p Patch) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.Task{}, validationErr(CodeTaskNotFound, id)
	}

	t := s.tasks[idx]

	if p.Title != nil {
		title, err := validTitle(*p.Title)
		if err != nil {
			return models.Task{}, err
		}
		t.Title = title
	}
	if p.Description != nil {
		if len(*p.Description) > maxDescriptionLen {
			return models.Task{}, validationErr(CodeDescriptionTooLong, "description exceeds 500 characters")
		}
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}

	if p.ClearDueAt {
		t.DueAt = nil
		t.ReminderLead = models.ReminderNone
		t.Notified = false
	} else if p.DueAt != nil {
		due, err := validDueAt(p.DueAt)
		if err != nil {
			return models.Task{}, err
		}
		if t.DueAt == nil || !t.DueAt.Equal(*due) {
			t.Notified = false
		}
		t.DueAt = due
	}

	if p.ReminderLead != nil && !p.ClearDueAt {
		if *p.ReminderLead != t.ReminderLead {
			t.Notified = false
		}
		t.ReminderLead = *p.ReminderLead
		if t.DueAt == nil {
			t.ReminderLead = models.ReminderNone
		}
	}

	t.UpdatedAt = s.now()

	if s.store != nil {
		if err := s.store.Update(ctx, t); err != nil {
			return models.Task{}, err
		}
	}

	s.tasks[idx] = t
	return t, nil
}

// Delete removes a task. Deleting a missing id is a no-op, mirroring
// the store's semantics.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return nil
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, id); err != nil {
			return err
		}
	}

	s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
	return nil
}

// Toggle flips a task between pending and completed.
func (s *Service) Toggle(ctx context.Context, id string) (models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.Task{}, validationErr(CodeTaskNotFound, id)
	}

	t := s.tasks[idx]
	if t.Status == models.StatusCompleted {
		t.Status = models.StatusPending
	} else {
		t.Status = models.StatusCompleted
	}
	t.UpdatedAt = s.now()

	if s.store != nil {
		if err := s.store.Update(ctx, t); err != nil {
			return models.Task{}, err
		}
	}

	s.tasks[idx] = t
	return t, nil
}

// MarkNotified records that reminders were dispatched for the given
// ids. This is the sole path that advances the exactly-once invariant.
func (s *Service) MarkNotified(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		idx := s.indexOf(id)
		if idx < 0 {
			// Deleted between evaluation and dispatch; nothing to mark.
			continue
		}

		t := s.tasks[idx]
		t.Notified = true
		t.UpdatedAt = s.now()

		if s.store != nil {
			if err := s.store.Update(ctx, t); err != nil {
				return err
			}
		}
		s.tasks[idx] = t
	}
	return nil
}

// Find returns the task with the given id.
func (s *Service) Find(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.Task{}, false
	}
	return s.tasks[idx], true
}

// List returns a copy of the current collection.
func (s *Service) List() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *Service) indexOf(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func validTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", validationErr(CodeEmptyTitle, "title must not be empty")
	}
	if len(title) > maxTitleLen {
		return "", validationErr(CodeTitleTooLong, "title exceeds 100 characters")
	}
	return title, nil
}

// validDueAt normalizes a due time to minute precision. A non-nil zero
// time is the Go face of a malformed instant.
func validDueAt(due *time.Time) (*time.Time, error) {
	if due == nil {
		return nil, nil
	}
	if due.IsZero() {
		return nil, validationErr(CodeInvalidDate, "due time is not a valid instant")
	}
	d := due.Truncate(time.Minute)
	return &d, nil
}

// ParseDueAt parses a caller-supplied due time string. Both the full
// "2006-01-02 15:04" form and a bare date are accepted; anything else
// is an INVALID_DATE.
func ParseDueAt(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t, nil
		}
	}
	return nil, validationErr(CodeInvalidDate, s)
}
