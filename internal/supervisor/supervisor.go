//go:build !windows

package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/config"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/hooks"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/monitor"
)

// DefaultDrainTimeout bounds the wait for remaining output after the child
// exits, in case a background process inherited the terminal.
const DefaultDrainTimeout = 5 * time.Second

// Options configures Run.
type Options struct {
	AgentPath string
	Args      []string

	Store *config.Store
	Sink  hooks.Sink

	// Stdin, Stdout and Stderr default to the process's own.
	Stdin  *os.File
	Stdout io.Writer
	Stderr io.Writer

	// InputDump and OutputDump mirror the raw streams when set.
	InputDump  io.Writer
	OutputDump io.Writer

	ReadTimeout  time.Duration
	DrainTimeout time.Duration
}

// Run supervises the agent and returns its exit code. A non-nil error means
// setup failed before any relaying started; the code is then 1.
//
// When stdin is a terminal the agent runs in a PTY with the relay and
// monitor attached. Otherwise it runs with inherited standard streams.
func Run(ctx context.Context, opts Options) (int, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Store == nil {
		opts.Store = config.NewStore("", nil)
	}

	if !term.IsTerminal(int(opts.Stdin.Fd())) {
		return runPiped(ctx, opts)
	}
	return runInteractive(ctx, opts)
}

// runPiped runs the agent without a PTY or monitor.
func runPiped(ctx context.Context, opts Options) (int, error) {
	cmd := exec.Command(opts.AgentPath, opts.Args...)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("spawn %s: %w", opts.AgentPath, err)
	}
	relayLog.Info("child_spawned_piped",
		slog.String("path", opts.AgentPath),
		slog.Int("pid", cmd.Process.Pid))

	// Ctrl+C already reaches the child through the shared process group.
	stop := relaySignals(ctx, cmd.Process, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	code := exitCode(cmd.Wait())
	relayLog.Info("child_exited", slog.Int("code", code))
	return code, nil
}

func runInteractive(ctx context.Context, opts Options) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess, err := Open(SessionOptions{
		Path:     opts.AgentPath,
		Args:     opts.Args,
		SizeFrom: opts.Stdin,
	})
	if err != nil {
		return 1, err
	}
	defer sess.Close()

	stdinFd := int(opts.Stdin.Fd())
	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		_ = sess.Signal(syscall.SIGKILL)
		sess.Wait()
		return 1, fmt.Errorf("enable raw mode: %w", err)
	}
	restore := func() { _ = term.Restore(stdinFd, oldState) }

	// The child has its own session, so signals aimed at us are passed on.
	stop := relaySignals(ctx, sess.Process(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	go ForwardResize(ctx, sess.Fd(), TerminalSize(opts.Stdin))

	vim := &monitor.VimModeCell{}
	cfg := opts.Store.Snapshot()
	mon := monitor.New(vim, monitor.Options{
		Detector:  newReloadingDetector(opts.Store),
		EnterBusy: cfg.Detection.EnterBusy(),
		ExitBusy:  cfg.Detection.ExitBusy(),
	})

	var sink hooks.Sink = opts.Sink
	if sink == nil {
		sink = discardSink{}
	}
	events := &eventHooks{sink: sink, store: opts.Store, mon: mon}
	events.started()

	ptyReader, ptyWriter := sess.Split()

	// Never joined: it may stay blocked reading stdin until the process exits.
	go InputLoop(opts.Stdin, ptyWriter, InputOptions{
		Vim:           vim,
		Dump:          opts.InputDump,
		OnIdleReset:   events.idleReset,
		OnEscInNormal: events.escInNormal,
	})

	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		OutputLoop(ptyReader, opts.Stdout, mon, OutputOptions{
			Dump:        opts.OutputDump,
			ReadTimeout: opts.ReadTimeout,
			OnBusy:      events.busy,
			OnIdle:      events.idle,
			OnVimMode:   events.vimMode,
		})
	}()

	code := sess.Wait()
	relayLog.Info("child_exited", slog.Int("pid", sess.Pid()), slog.Int("code", code))

	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}
	select {
	case <-outputDone:
	case <-time.After(drain):
		relayLog.Warn("output_drain_timeout", slog.Duration("timeout", drain))
	}

	restore()
	events.stopped()
	return code, nil
}

// relaySignals passes the given signals on to proc until the returned stop
// function is called.
func relaySignals(ctx context.Context, proc *os.Process, sigs ...os.Signal) func() {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case sig := <-ch:
				relayLog.Debug("signal_forwarded", slog.String("signal", sig.String()))
				_ = proc.Signal(sig)
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

type discardSink struct{}

func (discardSink) Notify(hooks.Notification) {}
func (discardSink) SetStatus(string, string)  {}
func (discardSink) RunHook(string)            {}
