// Package notify delivers reminders through the best available
// channel: a native desktop notification when permitted, otherwise a
// registered in-app fallback.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ldi/nudge/pkg/models"
)

// Permission is the platform notification capability state.
// unsupported and the granted/denied pair come from the platform;
// default means the capability exists but has not been decided yet.
type Permission string

const (
	PermissionUnsupported Permission = "unsupported"
	PermissionDefault     Permission = "default"
	PermissionGranted     Permission = "granted"
	PermissionDenied      Permission = "denied"
)

// Notification is one native delivery. Tag deduplicates: a second send
// with the same tag replaces the first instead of stacking.
type Notification struct {
	Title              string
	Body               string
	Tag                string
	RequireInteraction bool
}

// Platform is the native notification capability.
type Platform interface {
	Supported() bool
	Permission() Permission
	RequestPermission(ctx context.Context) Permission
	Send(ctx context.Context, n Notification) error
}

// Fallback receives the full batch of qualifying tasks when native
// delivery is not available.
type Fallback func(tasks []models.Task)

// Dispatcher routes reminder batches to the platform or the fallback.
type Dispatcher struct {
	platform Platform
	logger   *slog.Logger

	mu       sync.Mutex
	fallback Fallback
}

func NewDispatcher(p Platform, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{platform: p, logger: logger}
}

// SetFallback registers the single in-app delivery callback.
func (d *Dispatcher) SetFallback(fn Fallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = fn
}

func (d *Dispatcher) Supported() bool { return d.platform.Supported() }

func (d *Dispatcher) Permission() Permission { return d.platform.Permission() }

// RequestPermission asks the platform once. A terminal granted/denied
// answer is never re-prompted; repeat calls return the current state.
func (d *Dispatcher) RequestPermission(ctx context.Context) Permission {
	return d.platform.RequestPermission(ctx)
}

// Dispatch delivers a reminder for each task and returns those that
// were handled. Native send failures are best-effort: logged, not
// retried, and the task still counts as handled. When permission is
// not granted the fallback receives the whole batch exactly once.
// Callers must mark the returned tasks notified; Dispatch itself never
// mutates task state.
func (d *Dispatcher) Dispatch(ctx context.Context, tasks []models.Task) []models.Task {
	if len(tasks) == 0 {
		return nil
	}

	if d.platform.Permission() != PermissionGranted {
		d.mu.Lock()
		fn := d.fallback
		d.mu.Unlock()

		if fn == nil {
			d.logger.Warn("reminders dropped: no native permission and no fallback registered",
				slog.Int("count", len(tasks)))
			return nil
		}
		fn(tasks)
		return tasks
	}

	for _, t := range tasks {
		if err := d.platform.Send(ctx, notificationFor(t)); err != nil {
			d.logger.Warn("native notification failed",
				slog.String("task", t.ID), slog.Any("err", err))
		}
	}
	return tasks
}

func notificationFor(t models.Task) Notification {
	body := "Task reminder"
	if t.DueAt != nil {
		body = fmt.Sprintf("Due %s", t.DueAt.Local().Format("Mon 15:04"))
	}
	return Notification{
		Title:              t.Title,
		Body:               body,
		Tag:                t.ID,
		RequireInteraction: t.Priority == models.PriorityHigh,
	}
}
