// Package notify delivers task reminders, preferring an OS notification and
// falling back to a blocking alert.
package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/gen2brain/beeep"
)

const Title = "Task Reminder"

// Body is the reminder text for a task.
func Body(taskName string) string {
	return "It's time to start your task: " + taskName
}

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, title, body string) error

func (f Func) Notify(ctx context.Context, title, body string) error {
	return f(ctx, title, body)
}

type sender func(title, message string, icon any) error

// Desktop sends OS notifications through beeep (D-Bus or notify-send on
// Linux and the BSDs, Notification Center on macOS, toasts on Windows).
type Desktop struct {
	send sender
}

func (d *Desktop) Notify(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.send(title, body, ""); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}

var (
	lookPath = exec.LookPath
	getenv   = os.Getenv
	goos     = runtime.GOOS
)

// available reports whether the platform can show a desktop notification.
// On X11/Wayland systems that needs a session bus or notify-send.
func available() bool {
	switch goos {
	case "darwin", "windows":
		return true
	case "linux", "freebsd", "netbsd", "openbsd", "dragonfly":
		if getenv("DBUS_SESSION_BUS_ADDRESS") != "" {
			return true
		}
		_, err := lookPath("notify-send")
		return err == nil
	}
	return false
}

// Detect decides once whether desktop notifications can be used. It returns
// nil when they are disabled or the platform has no way to show them.
func Detect(enabled bool) Notifier {
	if !enabled || !available() {
		return nil
	}
	return &Desktop{send: beeep.Notify}
}

// Terminal is the blocking-alert fallback for non-interactive use: it rings
// the bell and prints the reminder.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Notify(_ context.Context, title, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintf(t.w, "\a%s: %s\n", title, body)
	return err
}

// Fallback tries primary first and uses secondary when primary is nil or
// fails.
func Fallback(primary, secondary Notifier) Notifier {
	if primary == nil {
		return secondary
	}
	return Func(func(ctx context.Context, title, body string) error {
		if err := primary.Notify(ctx, title, body); err != nil {
			if ferr := secondary.Notify(ctx, title, body); ferr != nil {
				return fmt.Errorf("notify: %v; fallback: %w", err, ferr)
			}
		}
		return nil
	})
}
