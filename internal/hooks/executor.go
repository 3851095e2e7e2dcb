package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/logging"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/platform"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/tmux"
)

var hookLog = logging.ForComponent(logging.CompHooks)

// Display width limits for notification text. Notification daemons clip or
// wrap long text unpredictably.
const (
	maxTitleWidth = 80
	maxBodyWidth  = 240
)

// CommandFunc runs an external program to completion.
type CommandFunc func(ctx context.Context, name string, args ...string) error

// StartFunc starts an external program and returns a function that waits
// for it to exit.
type StartFunc func(ctx context.Context, name string, args ...string) (wait func() error, err error)

// StatusFunc publishes the status value (the tmux option by default).
type StatusFunc func(ctx context.Context, value string) error

// Executor performs hook side effects synchronously. The relay never calls
// it directly; see Dispatcher.
type Executor struct {
	backend   platform.NotifyBackend
	run       CommandFunc
	start     StartFunc
	setStatus StatusFunc
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithCommandFunc replaces process execution.
func WithCommandFunc(fn CommandFunc) ExecutorOption {
	return func(e *Executor) { e.run = fn }
}

// WithStartFunc replaces process start for hooks run by a Dispatcher.
func WithStartFunc(fn StartFunc) ExecutorOption {
	return func(e *Executor) { e.start = fn }
}

// WithStatusFunc replaces the tmux status setter.
func WithStatusFunc(fn StatusFunc) ExecutorOption {
	return func(e *Executor) { e.setStatus = fn }
}

// WithNotifyBackend overrides the detected desktop notification program.
func WithNotifyBackend(b platform.NotifyBackend) ExecutorOption {
	return func(e *Executor) { e.backend = b }
}

// NewExecutor creates an Executor for the current platform.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		backend:   platform.Detect().NotifyBackend(),
		run:       runCommand,
		start:     startCommand,
		setStatus: tmux.SetStatus,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// startCommand starts name with output discarded. The process is killed
// when ctx is done.
func startCommand(ctx context.Context, name string, args ...string) (func() error, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return func() error {
		if err := cmd.Wait(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (output: %s)", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Notify shows a desktop notification.
func (e *Executor) Notify(ctx context.Context, n Notification) error {
	name, args, err := NotificationCommand(e.backend, n)
	if err != nil {
		return err
	}
	return e.run(ctx, name, args...)
}

// NotificationCommand builds the command line for backend.
func NotificationCommand(backend platform.NotifyBackend, n Notification) (string, []string, error) {
	title := runewidth.Truncate(n.Title, maxTitleWidth, "…")
	body := runewidth.Truncate(n.Body, maxBodyWidth, "…")

	switch backend {
	case platform.NotifyNotifySend:
		var args []string
		if n.Urgency != "" {
			args = append(args, "-u", n.Urgency)
		}
		if n.AppName != "" {
			args = append(args, "-a", n.AppName)
		}
		if n.Icon != "" {
			args = append(args, "-i", n.Icon)
		}
		args = append(args, title, body)
		return "notify-send", args, nil
	case platform.NotifyOSAScript:
		script := fmt.Sprintf(`display notification %q with title %q`, body, title)
		return "osascript", []string{"-e", script}, nil
	default:
		return "", nil, fmt.Errorf("desktop notifications not supported on %s", platform.Detect())
	}
}

// SetTmuxStatus publishes value without running the status-change hook.
func (e *Executor) SetTmuxStatus(ctx context.Context, value string) error {
	return e.setStatus(ctx, value)
}

// SetStatus publishes value and then runs hookTemplate, if any, with
// {status} replaced. Both steps are attempted; the first error is returned.
func (e *Executor) SetStatus(ctx context.Context, value, hookTemplate string) error {
	err := e.SetTmuxStatus(ctx, value)
	if hookTemplate != "" {
		if hookErr := e.RunHook(ctx, ExpandStatus(hookTemplate, value)); err == nil {
			err = hookErr
		}
	}
	return err
}

// StartHook starts command with sh -c and returns a function that waits
// for it. Output is discarded.
func (e *Executor) StartHook(ctx context.Context, command string) (func() error, error) {
	hookLog.Debug("hook_start", slog.String("command", command))
	return e.start(ctx, "sh", "-c", command)
}

// RunHook runs command with sh -c. Output is discarded.
func (e *Executor) RunHook(ctx context.Context, command string) error {
	if strings.TrimSpace(command) == "" {
		return nil
	}
	hookLog.Debug("hook_run", slog.String("command", command))
	return e.run(ctx, "sh", "-c", command)
}
