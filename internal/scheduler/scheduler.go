// Package scheduler drives periodic reminder evaluation.
//
// The loop reads the task collection through a live source function on
// every tick, so mutations made after Start are always visible to the
// next evaluation. Ticks never overlap: a tick that fires while the
// previous one is still marking tasks notified is skipped. Any error
// inside a tick is logged and discarded so the loop stays alive.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ldi/nudge/internal/notify"
	"github.com/ldi/nudge/internal/reminder"
	"github.com/ldi/nudge/pkg/models"
)

const (
	DefaultInterval = time.Minute

	// Platforms emit no universal permission-change event, so the held
	// status is re-polled on its own slower cadence.
	DefaultPermissionPollInterval = 5 * time.Second
)

// Source returns the current task collection. It is called afresh on
// every tick.
type Source func() []models.Task

// MarkNotified records dispatched reminders, typically
// (*service.Service).MarkNotified.
type MarkNotified func(ctx context.Context, ids []string) error

type Loop struct {
	source     Source
	dispatcher *notify.Dispatcher
	mark       MarkNotified
	logger     *slog.Logger

	// PermissionPollInterval may be set before Start.
	PermissionPollInterval time.Duration

	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	perm   notify.Permission

	tickMu sync.Mutex
}

func New(source Source, dispatcher *notify.Dispatcher, mark MarkNotified, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		source:                 source,
		dispatcher:             dispatcher,
		mark:                   mark,
		logger:                 logger,
		PermissionPollInterval: DefaultPermissionPollInterval,
		now:                    time.Now,
	}
}

// Start begins periodic evaluation. A running loop is stopped first so
// there is never more than one timer. One evaluation runs synchronously
// before the timer is armed.
func (l *Loop) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	l.Stop()

	l.mu.Lock()
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	done := make(chan struct{})
	l.done = done
	l.perm = l.dispatcher.Permission()
	l.mu.Unlock()

	l.tick(runCtx)

	go l.run(runCtx, interval, done)
}

// Stop cancels both timers and waits for the loop goroutine to exit.
// It is idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Loop) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	evalTicker := time.NewTicker(interval)
	defer evalTicker.Stop()
	permTicker := time.NewTicker(l.PermissionPollInterval)
	defer permTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-evalTicker.C:
			l.tick(ctx)
		case <-permTicker.C:
			l.pollPermission()
		}
	}
}

// tick runs one evaluation pass. If the previous tick is still in
// flight this one is skipped rather than run concurrently against the
// same notified flags.
func (l *Loop) tick(ctx context.Context) {
	if !l.tickMu.TryLock() {
		l.logger.Debug("evaluation tick skipped: previous tick in flight")
		return
	}
	defer l.tickMu.Unlock()

	due := reminder.Evaluate(l.source(), l.now())
	if len(due) == 0 {
		return
	}

	handled := l.dispatcher.Dispatch(ctx, due)
	if len(handled) == 0 {
		return
	}

	ids := make([]string, len(handled))
	for i, t := range handled {
		ids[i] = t.ID
	}

	if err := l.mark(ctx, ids); err != nil {
		// The tick becomes a no-op; the next one re-evaluates.
		l.logger.Error("failed to mark reminders notified", slog.Any("err", err))
		return
	}

	l.logger.Info("reminders dispatched", slog.Int("count", len(ids)))
}

func (l *Loop) pollPermission() {
	current := l.dispatcher.Permission()

	l.mu.Lock()
	previous := l.perm
	l.perm = current
	l.mu.Unlock()

	if current != previous {
		l.logger.Info("notification permission changed",
			slog.String("from", string(previous)), slog.String("to", string(current)))
	}
}

// Permission returns the most recently polled permission status.
func (l *Loop) Permission() notify.Permission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perm
}
