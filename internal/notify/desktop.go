package notify

import (
	"context"
	"os"
	"os/exec"
	"sync"
)

const defaultSendCommand = "notify-send"

// Desktop sends native notifications by shelling out to notify-send.
//
// Desktop permission has no prompt the way a browser does, so the state
// machine is derived from the environment: the capability is supported
// when the command is on PATH, and granted when a session bus is
// reachable. Both probes are re-evaluated on every call, which is what
// lets the scheduler's periodic poll observe external revocation
// (command uninstalled, session bus gone).
type Desktop struct {
	command string

	mu        sync.Mutex
	requested bool

	// Injection points for tests.
	cmdFactory func(ctx context.Context, name string, arg ...string) *exec.Cmd
	lookPath   func(file string) (string, error)
	getenv     func(key string) string
}

// NewDesktop returns a desktop platform using the given send command,
// or notify-send when empty.
func NewDesktop(command string) *Desktop {
	if command == "" {
		command = defaultSendCommand
	}
	return &Desktop{
		command:    command,
		cmdFactory: exec.CommandContext,
		lookPath:   exec.LookPath,
		getenv:     os.Getenv,
	}
}

func (d *Desktop) Supported() bool {
	_, err := d.lookPath(d.command)
	return err == nil
}

func (d *Desktop) Permission() Permission {
	d.mu.Lock()
	requested := d.requested
	d.mu.Unlock()

	if !d.Supported() {
		return PermissionUnsupported
	}
	if !requested {
		return PermissionDefault
	}
	if d.sessionReachable() {
		return PermissionGranted
	}
	return PermissionDenied
}

// RequestPermission performs the environment probe. Once a terminal
// granted/denied answer exists it is an idempotent no-op returning the
// current state.
func (d *Desktop) RequestPermission(ctx context.Context) Permission {
	d.mu.Lock()
	d.requested = true
	d.mu.Unlock()
	return d.Permission()
}

func (d *Desktop) sessionReachable() bool {
	return d.getenv("DBUS_SESSION_BUS_ADDRESS") != "" || d.getenv("DISPLAY") != ""
}

// Send delivers one notification. The tag rides on the synchronous
// hint so repeated sends for the same task replace each other instead
// of stacking.
func (d *Desktop) Send(ctx context.Context, n Notification) error {
	args := []string{
		"--app-name", "nudge",
		"--hint", "string:x-canonical-private-synchronous:" + n.Tag,
	}
	if n.RequireInteraction {
		args = append(args, "--urgency", "critical")
	}
	args = append(args, n.Title, n.Body)

	return d.cmdFactory(ctx, d.command, args...).Run()
}
