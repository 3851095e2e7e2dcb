package hooks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/platform"
)

// recorder captures executed commands and status updates in order.
type recorder struct {
	mu       sync.Mutex
	calls    []string
	statuses []string
	block    chan struct{} // when set, sh -c commands wait on it
	blockIf  string        // when set, only commands containing it wait
	fail     error
}

func (r *recorder) waitBlocked(ctx context.Context, name string, args []string) error {
	r.mu.Lock()
	block, only := r.block, r.blockIf
	r.mu.Unlock()

	if block == nil || name != "sh" || !strings.Contains(strings.Join(args, " "), only) {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *recorder) record(name string, args []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
}

func (r *recorder) run(ctx context.Context, name string, args ...string) error {
	r.record(name, args)
	if err := r.waitBlocked(ctx, name, args); err != nil {
		return err
	}
	return r.fail
}

// start records the call when the process would be started and blocks in
// the returned wait function.
func (r *recorder) start(ctx context.Context, name string, args ...string) (func() error, error) {
	r.record(name, args)
	return func() error {
		if err := r.waitBlocked(ctx, name, args); err != nil {
			return err
		}
		return r.fail
	}, nil
}

func (r *recorder) status(_ context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, value)
	return r.fail
}

func (r *recorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...), append([]string(nil), r.statuses...)
}

func newRecorded(backend platform.NotifyBackend) (*Executor, *recorder) {
	rec := &recorder{}
	return NewExecutor(
		WithCommandFunc(rec.run),
		WithStartFunc(rec.start),
		WithStatusFunc(rec.status),
		WithNotifyBackend(backend),
	), rec
}

func TestExpand(t *testing.T) {
	assert.Equal(t, "echo WAITING > /tmp/s", ExpandStatus("echo {status} > /tmp/s", StatusWaiting))
	assert.Equal(t, "echo  > /tmp/s", ExpandStatus("echo {status} > /tmp/s", StatusClear))
	assert.Equal(t, "printf NORMAL", ExpandVimMode("printf {vim_mode}", "NORMAL"))
	assert.Equal(t, "no placeholder", ExpandVimMode("no placeholder", "INSERT"))
}

func TestNotificationCommandNotifySend(t *testing.T) {
	name, args, err := NotificationCommand(platform.NotifyNotifySend, Notification{
		Title:   "Cursor Agent",
		Body:    "Done",
		Urgency: "normal",
		AppName: "cursor-wrapper",
		Icon:    "dialog-information",
	})
	require.NoError(t, err)
	assert.Equal(t, "notify-send", name)
	assert.Equal(t, []string{
		"-u", "normal", "-a", "cursor-wrapper", "-i", "dialog-information",
		"Cursor Agent", "Done",
	}, args)

	_, args, err = NotificationCommand(platform.NotifyNotifySend, Notification{Title: "T", Body: "B"})
	require.NoError(t, err)
	assert.Equal(t, []string{"T", "B"}, args)
}

func TestNotificationCommandOSAScript(t *testing.T) {
	name, args, err := NotificationCommand(platform.NotifyOSAScript, Notification{
		Title: `Say "hi"`,
		Body:  "Done",
	})
	require.NoError(t, err)
	assert.Equal(t, "osascript", name)
	assert.Equal(t, []string{"-e", `display notification "Done" with title "Say \"hi\""`}, args)
}

func TestNotificationCommandUnsupported(t *testing.T) {
	_, _, err := NotificationCommand(platform.NotifyNone, Notification{Title: "T"})
	assert.Error(t, err)
}

func TestNotificationTruncatesWideText(t *testing.T) {
	_, args, err := NotificationCommand(platform.NotifyNotifySend, Notification{
		Title: strings.Repeat("界", 100),
		Body:  "ok",
	})
	require.NoError(t, err)
	title := args[0]
	assert.True(t, strings.HasSuffix(title, "…"))
	assert.Less(t, len([]rune(title)), 100)
}

func TestExecutorSetStatusRunsHook(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)

	require.NoError(t, exec.SetStatus(context.Background(), StatusWaiting, "echo {status}"))

	calls, statuses := rec.snapshot()
	assert.Equal(t, []string{StatusWaiting}, statuses)
	assert.Equal(t, []string{"sh -c echo WAITING"}, calls)
}

func TestExecutorSetStatusWithoutHook(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)

	require.NoError(t, exec.SetStatus(context.Background(), StatusClear, ""))

	calls, statuses := rec.snapshot()
	assert.Equal(t, []string{""}, statuses)
	assert.Empty(t, calls)
}

func TestExecutorSetStatusReturnsFirstError(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	rec.fail = errors.New("no server running")

	err := exec.SetStatus(context.Background(), StatusIdle, "true")
	require.Error(t, err)

	calls, _ := rec.snapshot()
	assert.Len(t, calls, 1, "hook still runs after status failure")
}

func TestExecutorRunHookEmptyIsNoop(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)

	require.NoError(t, exec.RunHook(context.Background(), "   "))
	calls, _ := rec.snapshot()
	assert.Empty(t, calls)
}

func TestRunCommandReportsFailure(t *testing.T) {
	err := runCommand(context.Background(), "sh", "-c", "echo boom >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.NoError(t, runCommand(context.Background(), "sh", "-c", "exit 0"))
}

func TestStartCommand(t *testing.T) {
	wait, err := startCommand(context.Background(), "sh", "-c", "exit 0")
	require.NoError(t, err)
	assert.NoError(t, wait())

	wait, err = startCommand(context.Background(), "sh", "-c", "exit 3")
	require.NoError(t, err)
	assert.Error(t, wait())
}

func TestStartCommandKilledAtDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	wait, err := startCommand(ctx, "sh", "-c", "sleep 10")
	require.NoError(t, err)
	assert.Error(t, wait())
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDispatcherPreservesOrder(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	d := NewDispatcher(exec, DispatcherOptions{})

	d.SetStatus(StatusIdle, "")
	d.SetStatus(StatusInProgress, "")
	d.SetStatus(StatusWaiting, "")
	d.SetStatus(StatusClear, "")
	require.True(t, d.Close(2*time.Second))

	_, statuses := rec.snapshot()
	assert.Equal(t, []string{StatusIdle, StatusInProgress, StatusWaiting, StatusClear}, statuses)
}

func TestDispatcherRunsHooks(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	d := NewDispatcher(exec, DispatcherOptions{})

	d.RunHook("echo esc")
	d.RunHook("")
	d.SetStatus(StatusWaiting, "echo {status}")
	require.True(t, d.Close(2*time.Second))

	calls, _ := rec.snapshot()
	assert.Equal(t, []string{"sh -c echo esc", "sh -c echo WAITING"}, calls)
}

func TestDispatcherStartsHooksInQueueOrder(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	d := NewDispatcher(exec, DispatcherOptions{MaxHooks: 2})

	var want []string
	for i := 0; i < 10; i++ {
		mode := "INSERT"
		if i%2 == 1 {
			mode = "NORMAL"
		}
		d.RunHook("echo " + mode)
		want = append(want, "sh -c echo "+mode)
	}
	d.SetStatus(StatusWaiting, "echo {status}")
	want = append(want, "sh -c echo WAITING")
	require.True(t, d.Close(2*time.Second))

	calls, _ := rec.snapshot()
	assert.Equal(t, want, calls)
}

func TestDispatcherStatusHookWaitsForFreeSlot(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	rec.block = make(chan struct{})
	rec.blockIf = "vim"
	d := NewDispatcher(exec, DispatcherOptions{HookTimeout: 200 * time.Millisecond})

	for i := 0; i < DefaultMaxHooks; i++ {
		d.RunHook("slow vim hook")
	}
	d.SetStatus(StatusWaiting, "echo {status}")

	// The slow hooks are killed at the hook timeout, which frees slots.
	assert.Eventually(t, func() bool {
		calls, _ := rec.snapshot()
		return len(calls) == DefaultMaxHooks+1
	}, 3*time.Second, 10*time.Millisecond)
	require.True(t, d.Close(2*time.Second))

	calls, statuses := rec.snapshot()
	assert.Equal(t, []string{StatusWaiting}, statuses)
	assert.Equal(t, "sh -c echo WAITING", calls[len(calls)-1])
	for _, c := range calls[:DefaultMaxHooks] {
		assert.Equal(t, "sh -c slow vim hook", c)
	}
}

func TestDispatcherShowsEveryNotificationByDefault(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	d := NewDispatcher(exec, DispatcherOptions{})

	d.Notify(Notification{Title: "A", Body: "Done"})
	time.Sleep(1300 * time.Millisecond)
	d.Notify(Notification{Title: "B", Body: "Done"})
	require.True(t, d.Close(2*time.Second))

	calls, _ := rec.snapshot()
	assert.Equal(t, []string{"notify-send A Done", "notify-send B Done"}, calls)
}

func TestDispatcherNotifyIntervalIsOptIn(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	d := NewDispatcher(exec, DispatcherOptions{NotifyInterval: time.Hour})

	for i := 0; i < 5; i++ {
		d.Notify(Notification{Title: "Cursor Agent", Body: "Done"})
	}
	require.True(t, d.Close(2*time.Second))

	calls, _ := rec.snapshot()
	assert.Equal(t, []string{"notify-send Cursor Agent Done"}, calls)
}

func TestDispatcherNeverBlocksWhenFull(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	rec.block = make(chan struct{})
	d := NewDispatcher(exec, DispatcherOptions{QueueSize: 2, MaxHooks: 1})

	start := time.Now()
	for i := 0; i < 100; i++ {
		d.RunHook("sleep")
	}
	assert.Less(t, time.Since(start), time.Second)

	close(rec.block)
	require.True(t, d.Close(2*time.Second))

	calls, _ := rec.snapshot()
	assert.NotEmpty(t, calls)
	assert.Less(t, len(calls), 100, "excess requests are dropped")
}

func TestDispatcherCloseTimeoutCancelsHooks(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	rec.block = make(chan struct{})
	d := NewDispatcher(exec, DispatcherOptions{})

	d.RunHook("hang")
	assert.Eventually(t, func() bool {
		calls, _ := rec.snapshot()
		return len(calls) == 1
	}, time.Second, 10*time.Millisecond)

	assert.False(t, d.Close(50*time.Millisecond))
}

func TestDispatcherAfterCloseIsNoop(t *testing.T) {
	exec, rec := newRecorded(platform.NotifyNotifySend)
	d := NewDispatcher(exec, DispatcherOptions{})
	require.True(t, d.Close(time.Second))

	assert.NotPanics(t, func() {
		d.SetStatus(StatusIdle, "")
		d.Notify(Notification{})
		d.RunHook("echo")
	})
	assert.True(t, d.Close(time.Second))

	calls, statuses := rec.snapshot()
	assert.Empty(t, calls)
	assert.Empty(t, statuses)
}
