//go:build !windows

package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// SessionOptions describes the program to run inside the PTY.
type SessionOptions struct {
	Path string
	Args []string

	// Env is the child environment; nil inherits ours.
	Env []string

	// SizeFrom is the terminal whose size the PTY starts with. If nil or its
	// size cannot be read, the PTY keeps the OS default.
	SizeFrom *os.File
}

// Session owns a PTY pair and the child attached to its subordinate side.
type Session struct {
	ptmx *os.File
	fd   uintptr
	cmd  *exec.Cmd

	waitOnce sync.Once
	code     int
}

// Open allocates a PTY and starts the child on it.
func Open(opts SessionOptions) (*Session, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("allocate pty: %w", err)
	}

	if opts.SizeFrom != nil {
		if ws, err := pty.GetsizeFull(opts.SizeFrom); err == nil {
			_ = pty.Setsize(ptmx, ws)
		}
	}

	cmd := exec.Command(opts.Path, opts.Args...)
	cmd.Env = opts.Env
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	// New session with the tty (fd 0 in the child) as controlling terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, fmt.Errorf("spawn %s: %w", opts.Path, err)
	}
	// The child holds its own copy; closing ours lets reads on the master
	// end once the child is gone.
	_ = tty.Close()

	fd, err := rawFd(ptmx)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = ptmx.Close()
		return nil, fmt.Errorf("allocate pty: %w", err)
	}

	relayLog.Info("child_spawned",
		slog.String("path", opts.Path),
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("args", len(opts.Args)))

	return &Session{ptmx: ptmx, fd: fd, cmd: cmd}, nil
}

// rawFd returns the descriptor without switching the file to blocking mode,
// which (*os.File).Fd would do.
func rawFd(f *os.File) (uintptr, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	if err := rc.Control(func(d uintptr) { fd = d }); err != nil {
		return 0, err
	}
	return fd, nil
}

// Fd returns the master descriptor for resize requests. It is borrowed and
// stays valid until Close.
func (s *Session) Fd() uintptr {
	return s.fd
}

// Split returns the master's read and write halves. Each must be used by a
// single goroutine.
func (s *Session) Split() (*os.File, *os.File) {
	return s.ptmx, s.ptmx
}

// Resize sets the PTY window size.
func (s *Session) Resize(cols, rows uint16) error {
	return setWinsize(s.fd, cols, rows)
}

// Signal delivers sig to the child.
func (s *Session) Signal(sig os.Signal) error {
	return s.cmd.Process.Signal(sig)
}

// Process returns the child process.
func (s *Session) Process() *os.Process {
	return s.cmd.Process
}

// Pid returns the child's process id.
func (s *Session) Pid() int {
	return s.cmd.Process.Pid
}

// Wait blocks until the child exits and returns its exit code, or 1 when
// there is none (killed by a signal). Safe to call more than once.
func (s *Session) Wait() int {
	s.waitOnce.Do(func() {
		s.code = exitCode(s.cmd.Wait())
	})
	return s.code
}

// Close releases the master side.
func (s *Session) Close() error {
	return s.ptmx.Close()
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return 1
}
