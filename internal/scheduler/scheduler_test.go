package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ldi/nudge/internal/notify"
	"github.com/ldi/nudge/pkg/models"
)

type stubPlatform struct {
	mu   sync.Mutex
	perm notify.Permission
	sent int
}

func (s *stubPlatform) Supported() bool { return true }
func (s *stubPlatform) Permission() notify.Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.perm
}
func (s *stubPlatform) RequestPermission(ctx context.Context) notify.Permission {
	return s.Permission()
}
func (s *stubPlatform) Send(ctx context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent++
	return nil
}

func (s *stubPlatform) setPermission(p notify.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perm = p
}

func (s *stubPlatform) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// taskBox is a mutable collection behind a Source func.
type taskBox struct {
	mu    sync.Mutex
	tasks []models.Task
}

func (b *taskBox) get() []models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Task, len(b.tasks))
	copy(out, b.tasks)
	return out
}

func (b *taskBox) set(tasks []models.Task) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = tasks
}

func (b *taskBox) markNotified(ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.tasks {
		for _, id := range ids {
			if b.tasks[i].ID == id {
				b.tasks[i].Notified = true
			}
		}
	}
}

func eligibleTask(id string) models.Task {
	due := time.Now().Add(5 * time.Minute)
	return models.Task{
		ID:           id,
		Title:        "Task " + id,
		Status:       models.StatusPending,
		DueAt:        &due,
		ReminderLead: models.Reminder5m,
	}
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartEvaluatesImmediately(t *testing.T) {
	box := &taskBox{tasks: []models.Task{eligibleTask("a")}}
	platform := &stubPlatform{perm: notify.PermissionGranted}
	d := notify.NewDispatcher(platform, testLogger())

	var marked []string
	l := New(box.get, d, func(ctx context.Context, ids []string) error {
		marked = ids
		box.markNotified(ids)
		return nil
	}, testLogger())
	defer l.Stop()

	// Long interval: only the synchronous first evaluation can fire.
	l.Start(context.Background(), time.Hour)

	if len(marked) != 1 || marked[0] != "a" {
		t.Fatalf("Expected immediate evaluation to mark task a, got %v", marked)
	}
	if platform.sentCount() != 1 {
		t.Errorf("Expected 1 native send, got %d", platform.sentCount())
	}
}

func TestTickSeesLiveCollection(t *testing.T) {
	box := &taskBox{}
	platform := &stubPlatform{perm: notify.PermissionGranted}
	d := notify.NewDispatcher(platform, testLogger())

	var mu sync.Mutex
	var marked []string
	l := New(box.get, d, func(ctx context.Context, ids []string) error {
		mu.Lock()
		marked = append(marked, ids...)
		mu.Unlock()
		box.markNotified(ids)
		return nil
	}, testLogger())
	defer l.Stop()

	l.Start(context.Background(), 10*time.Millisecond)

	// Added after Start; a later tick must still see it.
	box.set([]models.Task{eligibleTask("late")})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(marked) == 1 && marked[0] == "late"
	}, "Expected task added after Start to be dispatched")

	// Once marked notified it never fires again.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	total := len(marked)
	mu.Unlock()
	if total != 1 {
		t.Errorf("Expected exactly one dispatch, got %d", total)
	}
}

func TestMarkErrorDoesNotStopLoop(t *testing.T) {
	box := &taskBox{tasks: []models.Task{eligibleTask("a")}}
	platform := &stubPlatform{perm: notify.PermissionGranted}
	d := notify.NewDispatcher(platform, testLogger())

	var mu sync.Mutex
	calls := 0
	l := New(box.get, d, func(ctx context.Context, ids []string) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return errors.New("write failed")
		}
		box.markNotified(ids)
		return nil
	}, testLogger())
	defer l.Stop()

	l.Start(context.Background(), 10*time.Millisecond)

	// First mark fails; the loop must keep ticking and succeed later.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, "Expected loop to keep evaluating after a mark error")
}

func TestTicksDoNotOverlap(t *testing.T) {
	box := &taskBox{tasks: []models.Task{eligibleTask("a")}}
	platform := &stubPlatform{perm: notify.PermissionGranted}
	d := notify.NewDispatcher(platform, testLogger())

	release := make(chan struct{})
	started := make(chan struct{})
	l := New(box.get, d, func(ctx context.Context, ids []string) error {
		close(started)
		<-release
		box.markNotified(ids)
		return nil
	}, testLogger())

	go l.tick(context.Background())
	<-started

	// A tick arriving while the first is still marking must be skipped.
	l.tick(context.Background())
	if platform.sentCount() != 1 {
		t.Errorf("Expected overlapping tick to be skipped, got %d sends", platform.sentCount())
	}

	close(release)
}

func TestStopIsIdempotentAndHaltsTicks(t *testing.T) {
	box := &taskBox{}
	platform := &stubPlatform{perm: notify.PermissionGranted}
	d := notify.NewDispatcher(platform, testLogger())

	var mu sync.Mutex
	ticks := 0
	l := New(func() []models.Task {
		mu.Lock()
		ticks++
		mu.Unlock()
		return box.get()
	}, d, func(ctx context.Context, ids []string) error { return nil }, testLogger())

	l.Start(context.Background(), 5*time.Millisecond)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 2
	}, "Expected periodic ticks")

	l.Stop()
	l.Stop() // idempotent

	mu.Lock()
	after := ticks
	mu.Unlock()
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	final := ticks
	mu.Unlock()

	if final != after {
		t.Errorf("Expected no ticks after Stop, got %d more", final-after)
	}
}

func TestRestartReplacesTimer(t *testing.T) {
	box := &taskBox{}
	platform := &stubPlatform{perm: notify.PermissionGranted}
	d := notify.NewDispatcher(platform, testLogger())

	l := New(box.get, d, func(ctx context.Context, ids []string) error { return nil }, testLogger())
	defer l.Stop()

	l.Start(context.Background(), 10*time.Millisecond)
	l.Start(context.Background(), 10*time.Millisecond) // previous timer cancelled first

	// Nothing to assert beyond clean shutdown: Stop must not hang with
	// a leaked goroutine from the first Start.
	l.Stop()
}

func TestPermissionRepoll(t *testing.T) {
	box := &taskBox{}
	platform := &stubPlatform{perm: notify.PermissionDefault}
	d := notify.NewDispatcher(platform, testLogger())

	l := New(box.get, d, func(ctx context.Context, ids []string) error { return nil }, testLogger())
	l.PermissionPollInterval = 5 * time.Millisecond
	defer l.Stop()

	l.Start(context.Background(), time.Hour)

	if got := l.Permission(); got != notify.PermissionDefault {
		t.Fatalf("Expected default at start, got %s", got)
	}

	platform.setPermission(notify.PermissionGranted)
	waitFor(t, func() bool {
		return l.Permission() == notify.PermissionGranted
	}, "Expected permission poll to observe the change")
}
