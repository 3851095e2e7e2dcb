package hooks

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/logging"
)

// Dispatcher defaults.
const (
	DefaultQueueSize   = 64
	DefaultMaxHooks    = 4
	DefaultHookTimeout = 30 * time.Second

	// hookKillGrace is how long a killed hook may take to be reaped.
	hookKillGrace = time.Second
)

type taskKind int

const (
	taskNotify taskKind = iota
	taskStatus
	taskHook
)

func (k taskKind) String() string {
	switch k {
	case taskNotify:
		return "notify"
	case taskStatus:
		return "status"
	default:
		return "hook"
	}
}

type task struct {
	kind    taskKind
	n       Notification
	value   string
	command string
}

// DispatcherOptions configures a Dispatcher. Zero values select defaults.
type DispatcherOptions struct {
	QueueSize int
	MaxHooks  int64

	// NotifyInterval, when positive, drops notifications arriving sooner
	// than this after the previous one. Zero shows every notification.
	NotifyInterval time.Duration

	HookTimeout time.Duration
}

// Dispatcher is the asynchronous Sink used by the relay. Requests go into a
// bounded queue and never block the caller; a full queue drops the request.
// One worker executes requests in arrival order, including starting each
// shell hook process. Hooks then run concurrently, at most MaxHooks at a
// time; when all slots are busy the worker waits for one to free up.
type Dispatcher struct {
	exec        *Executor
	queue       chan task
	sem         *semaphore.Weighted
	limiter     *rate.Limiter // nil means unlimited
	hookTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // guards closed against concurrent sends
	closed bool

	worker sync.WaitGroup
	hooks  sync.WaitGroup
}

var _ Sink = (*Dispatcher)(nil)

// NewDispatcher starts a dispatcher backed by exec.
func NewDispatcher(exec *Executor, opts DispatcherOptions) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.MaxHooks <= 0 {
		opts.MaxHooks = DefaultMaxHooks
	}
	if opts.HookTimeout <= 0 {
		opts.HookTimeout = DefaultHookTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		exec:        exec,
		queue:       make(chan task, opts.QueueSize),
		sem:         semaphore.NewWeighted(opts.MaxHooks),
		hookTimeout: opts.HookTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	if opts.NotifyInterval > 0 {
		d.limiter = rate.NewLimiter(rate.Every(opts.NotifyInterval), 1)
	}
	d.worker.Add(1)
	go d.loop()
	return d
}

// Notify queues a desktop notification.
func (d *Dispatcher) Notify(n Notification) {
	d.enqueue(task{kind: taskNotify, n: n})
}

// SetStatus queues a status update followed by the status-change hook.
func (d *Dispatcher) SetStatus(value, hookTemplate string) {
	d.enqueue(task{kind: taskStatus, value: value, command: hookTemplate})
}

// RunHook queues a shell hook.
func (d *Dispatcher) RunHook(command string) {
	if strings.TrimSpace(command) == "" {
		return
	}
	d.enqueue(task{kind: taskHook, command: command})
}

func (d *Dispatcher) enqueue(t task) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- t:
	default:
		hookLog.Warn("hook_queue_full", slog.String("kind", t.kind.String()))
		logging.Aggregate(logging.CompHooks, "task_dropped", 1)
	}
}

func (d *Dispatcher) loop() {
	defer d.worker.Done()
	for t := range d.queue {
		d.execute(t)
	}
}

func (d *Dispatcher) execute(t task) {
	ctx, cancel := context.WithTimeout(d.ctx, d.hookTimeout)
	defer cancel()

	switch t.kind {
	case taskNotify:
		if d.limiter != nil && !d.limiter.Allow() {
			hookLog.Debug("notify_rate_limited", slog.String("title", t.n.Title))
			return
		}
		if err := d.exec.Notify(ctx, t.n); err != nil {
			hookLog.Debug("notify_failed", slog.String("error", err.Error()))
		}
	case taskStatus:
		if err := d.exec.SetTmuxStatus(ctx, t.value); err != nil {
			hookLog.Debug("status_failed",
				slog.String("status", t.value),
				slog.String("error", err.Error()))
		}
		if t.command != "" {
			d.startHook(ExpandStatus(t.command, t.value))
		}
	case taskHook:
		d.startHook(t.command)
	}
}

// startHook starts command on the worker goroutine, so hooks begin in
// queue order, and waits for it in the background.
func (d *Dispatcher) startHook(command string) {
	// Running hooks are killed at hookTimeout, so a slot frees within that.
	acquireCtx, cancelAcquire := context.WithTimeout(d.ctx, d.hookTimeout+hookKillGrace)
	err := d.sem.Acquire(acquireCtx, 1)
	cancelAcquire()
	if err != nil {
		hookLog.Warn("hook_dropped", slog.String("command", command), slog.String("error", err.Error()))
		logging.Aggregate(logging.CompHooks, "hook_dropped", 1)
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.hookTimeout)
	wait, err := d.exec.StartHook(ctx, command)
	if err != nil {
		cancel()
		d.sem.Release(1)
		hookLog.Debug("hook_failed", slog.String("command", command), slog.String("error", err.Error()))
		return
	}

	d.hooks.Add(1)
	go func() {
		defer d.hooks.Done()
		defer d.sem.Release(1)
		defer cancel()
		if err := wait(); err != nil {
			hookLog.Debug("hook_failed",
				slog.String("command", command),
				slog.String("error", err.Error()))
		}
	}()
}

// Close stops accepting requests and waits up to timeout for queued requests
// and running hooks to finish. Anything still running afterwards is killed.
// It reports whether everything finished in time.
func (d *Dispatcher) Close(timeout time.Duration) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return true
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.worker.Wait()
		d.hooks.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		d.cancel()
		return true
	case <-timer.C:
		hookLog.Warn("hook_flush_timeout", slog.Duration("timeout", timeout))
		d.cancel()
		return false
	}
}
