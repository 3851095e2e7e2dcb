//go:build !windows

package supervisor

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// SizeFunc reports the current size of the real terminal.
type SizeFunc func() (cols, rows int, err error)

// TerminalSize returns a SizeFunc for the terminal on f.
func TerminalSize(f *os.File) SizeFunc {
	fd := int(f.Fd())
	return func() (int, int, error) {
		return term.GetSize(fd)
	}
}

func setWinsize(fd uintptr, cols, rows uint16) error {
	return unix.IoctlSetWinsize(int(fd), unix.TIOCSWINSZ, &unix.Winsize{Col: cols, Row: rows})
}

// ResizeForwarder copies the real terminal size onto a PTY on every
// SIGWINCH.
type ResizeForwarder struct {
	fd   uintptr
	size SizeFunc
	sigs chan os.Signal
}

// NewResizeForwarder subscribes to SIGWINCH. Call Run to start forwarding.
func NewResizeForwarder(fd uintptr, size SizeFunc) *ResizeForwarder {
	r := &ResizeForwarder{
		fd:   fd,
		size: size,
		sigs: make(chan os.Signal, 1),
	}
	signal.Notify(r.sigs, syscall.SIGWINCH)
	return r
}

// Sync applies the current terminal size once. Errors are returned but
// callers treat them as best effort.
func (r *ResizeForwarder) Sync() error {
	cols, rows, err := r.size()
	if err != nil {
		return err
	}
	return setWinsize(r.fd, uint16(cols), uint16(rows))
}

// Run forwards resizes until ctx is done.
func (r *ResizeForwarder) Run(ctx context.Context) {
	defer signal.Stop(r.sigs)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.sigs:
			if err := r.Sync(); err != nil {
				relayLog.Debug("resize_failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ForwardResize runs a ResizeForwarder for fd. If the terminal size cannot
// be read at all, forwarding is disabled and it returns immediately.
func ForwardResize(ctx context.Context, fd uintptr, size SizeFunc) {
	if _, _, err := size(); err != nil {
		relayLog.Info("resize_forwarding_disabled", slog.String("error", err.Error()))
		return
	}
	NewResizeForwarder(fd, size).Run(ctx)
}
