package notify

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/ldi/nudge/pkg/models"
)

type fakePlatform struct {
	perm    Permission
	sent    []Notification
	sendErr error
}

func (f *fakePlatform) Supported() bool        { return f.perm != PermissionUnsupported }
func (f *fakePlatform) Permission() Permission { return f.perm }
func (f *fakePlatform) RequestPermission(ctx context.Context) Permission {
	if f.perm == PermissionDefault {
		f.perm = PermissionGranted
	}
	return f.perm
}
func (f *fakePlatform) Send(ctx context.Context, n Notification) error {
	f.sent = append(f.sent, n)
	return f.sendErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func dueTask(id, title string, prio models.Priority) models.Task {
	due := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	return models.Task{ID: id, Title: title, Priority: prio, DueAt: &due}
}

func TestDispatchGrantedSendsPerTask(t *testing.T) {
	p := &fakePlatform{perm: PermissionGranted}
	d := NewDispatcher(p, discardLogger())

	tasks := []models.Task{
		dueTask("a", "First", models.PriorityHigh),
		dueTask("b", "Second", models.PriorityLow),
	}

	handled := d.Dispatch(context.Background(), tasks)
	if len(handled) != 2 {
		t.Fatalf("Expected 2 handled, got %d", len(handled))
	}
	if len(p.sent) != 2 {
		t.Fatalf("Expected 2 native sends, got %d", len(p.sent))
	}

	if p.sent[0].Tag != "a" || p.sent[1].Tag != "b" {
		t.Errorf("Expected per-task tags, got %s, %s", p.sent[0].Tag, p.sent[1].Tag)
	}
	if !p.sent[0].RequireInteraction {
		t.Error("Expected high priority to require interaction")
	}
	if p.sent[1].RequireInteraction {
		t.Error("Expected low priority not to require interaction")
	}
}

func TestDispatchSwallowsSendFailures(t *testing.T) {
	p := &fakePlatform{perm: PermissionGranted, sendErr: errors.New("bus gone")}
	d := NewDispatcher(p, discardLogger())

	tasks := []models.Task{dueTask("a", "Doomed", models.PriorityMedium)}
	handled := d.Dispatch(context.Background(), tasks)

	// Best-effort: the failure is logged and the task still counts as
	// handled so the reminder does not re-fire forever.
	if len(handled) != 1 {
		t.Errorf("Expected failed send to still count as handled, got %d", len(handled))
	}
}

func TestDispatchFallbackGetsBatchOnce(t *testing.T) {
	for _, perm := range []Permission{PermissionUnsupported, PermissionDefault, PermissionDenied} {
		p := &fakePlatform{perm: perm}
		d := NewDispatcher(p, discardLogger())

		var calls int
		var got []models.Task
		d.SetFallback(func(tasks []models.Task) {
			calls++
			got = tasks
		})

		tasks := []models.Task{
			dueTask("a", "One", models.PriorityLow),
			dueTask("b", "Two", models.PriorityLow),
		}
		handled := d.Dispatch(context.Background(), tasks)

		if calls != 1 {
			t.Errorf("perm %s: expected fallback called once, got %d", perm, calls)
		}
		if len(got) != 2 {
			t.Errorf("perm %s: expected full batch, got %d", perm, len(got))
		}
		if len(handled) != 2 {
			t.Errorf("perm %s: expected 2 handled, got %d", perm, len(handled))
		}
		if len(p.sent) != 0 {
			t.Errorf("perm %s: expected no native sends, got %d", perm, len(p.sent))
		}
	}
}

func TestDispatchNoFallbackDropsBatch(t *testing.T) {
	p := &fakePlatform{perm: PermissionDenied}
	d := NewDispatcher(p, discardLogger())

	handled := d.Dispatch(context.Background(), []models.Task{dueTask("a", "One", models.PriorityLow)})
	if len(handled) != 0 {
		t.Errorf("Expected nothing handled without a fallback, got %d", len(handled))
	}
}

func TestDispatchEmptyBatch(t *testing.T) {
	p := &fakePlatform{perm: PermissionDenied}
	d := NewDispatcher(p, discardLogger())

	var calls int
	d.SetFallback(func([]models.Task) { calls++ })

	if got := d.Dispatch(context.Background(), nil); got != nil {
		t.Errorf("Expected nil for empty batch, got %v", got)
	}
	if calls != 0 {
		t.Error("Expected fallback not invoked for empty batch")
	}
}

func TestDesktopPermissionStateMachine(t *testing.T) {
	env := map[string]string{}
	d := NewDesktop("")
	d.lookPath = func(string) (string, error) { return "/usr/bin/notify-send", nil }
	d.getenv = func(k string) string { return env[k] }

	if got := d.Permission(); got != PermissionDefault {
		t.Errorf("Expected default before request, got %s", got)
	}

	// Request with no session bus: denied.
	if got := d.RequestPermission(context.Background()); got != PermissionDenied {
		t.Errorf("Expected denied without session bus, got %s", got)
	}

	// Requesting again is a no-op returning the current state.
	if got := d.RequestPermission(context.Background()); got != PermissionDenied {
		t.Errorf("Expected repeat request to return denied, got %s", got)
	}

	// The environment changing is observed on the next poll.
	env["DBUS_SESSION_BUS_ADDRESS"] = "unix:path=/run/user/1000/bus"
	if got := d.Permission(); got != PermissionGranted {
		t.Errorf("Expected granted once bus appears, got %s", got)
	}

	// External revocation: the command disappears from PATH.
	d.lookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	if got := d.Permission(); got != PermissionUnsupported {
		t.Errorf("Expected unsupported after command vanishes, got %s", got)
	}
}

func TestDesktopSendArgs(t *testing.T) {
	d := NewDesktop("")

	var gotName string
	var gotArgs []string
	d.cmdFactory = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		gotName = name
		gotArgs = arg
		return exec.CommandContext(ctx, "true")
	}

	n := Notification{Title: "Standup", Body: "Due Mon 09:00", Tag: "task-1", RequireInteraction: true}
	if err := d.Send(context.Background(), n); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotName != "notify-send" {
		t.Errorf("Expected notify-send, got %s", gotName)
	}

	joined := strings.Join(gotArgs, " ")
	if !strings.Contains(joined, "x-canonical-private-synchronous:task-1") {
		t.Errorf("Expected dedup tag hint, got %v", gotArgs)
	}
	if !strings.Contains(joined, "--urgency critical") {
		t.Errorf("Expected critical urgency for require-interaction, got %v", gotArgs)
	}
	if gotArgs[len(gotArgs)-2] != "Standup" || gotArgs[len(gotArgs)-1] != "Due Mon 09:00" {
		t.Errorf("Expected title and body last, got %v", gotArgs)
	}
}
