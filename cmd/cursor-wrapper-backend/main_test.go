package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/config"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/hooks"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/platform"
)

type fakeRunner struct {
	commands [][]string
	statuses []string
	err      error
}

func (f *fakeRunner) executor() *hooks.Executor {
	return hooks.NewExecutor(
		hooks.WithNotifyBackend(platform.NotifyNotifySend),
		hooks.WithCommandFunc(func(_ context.Context, name string, args ...string) error {
			f.commands = append(f.commands, append([]string{name}, args...))
			return f.err
		}),
		hooks.WithStatusFunc(func(_ context.Context, value string) error {
			f.statuses = append(f.statuses, value)
			return nil
		}),
	)
}

func runBackend(t *testing.T, f *fakeRunner, cfg *config.Config, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, cfg, f.executor(), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestNoFlagsPrintsUsage(t *testing.T) {
	f := &fakeRunner{}
	code, stdout, _ := runBackend(t, f, config.Default())
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "Usage: cursor-wrapper-backend")
	assert.Contains(t, stdout, "--status")
	assert.Empty(t, f.commands)
}

func TestHelp(t *testing.T) {
	code, stdout, _ := runBackend(t, &fakeRunner{}, config.Default(), "--help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "--notify")
}

func TestUnknownFlag(t *testing.T) {
	code, _, stderr := runBackend(t, &fakeRunner{}, config.Default(), "--bogus")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "bogus")
}

func TestNotifyUsesConfig(t *testing.T) {
	cfg := config.Default()
	cfg.General.NotificationTitle = "Agent"
	cfg.General.NotificationBody = "Finished"
	cfg.General.NotificationUrgency = "critical"

	f := &fakeRunner{}
	code, _, _ := runBackend(t, f, cfg, "--notify")
	assert.Equal(t, 0, code)
	require.Len(t, f.commands, 1)
	assert.Equal(t, []string{"notify-send", "-u", "critical", "Agent", "Finished"}, f.commands[0])
}

func TestNotifyFailure(t *testing.T) {
	f := &fakeRunner{err: errors.New("no notification daemon")}
	code, _, stderr := runBackend(t, f, config.Default(), "--notify")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "error: notify: no notification daemon")
}

func TestStatusRunsHook(t *testing.T) {
	cfg := config.Default()
	cfg.Hooks.StatusChange = "echo {status}"

	f := &fakeRunner{}
	code, _, _ := runBackend(t, f, cfg, "--status", "WAITING")
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"WAITING"}, f.statuses)
	require.Len(t, f.commands, 1)
	assert.Equal(t, []string{"sh", "-c", "echo WAITING"}, f.commands[0])
}

func TestEmptyStatusClears(t *testing.T) {
	f := &fakeRunner{}
	code, _, _ := runBackend(t, f, config.Default(), "--status=")
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{""}, f.statuses)
	assert.Empty(t, f.commands)
}

func TestNotifyAndStatusTogether(t *testing.T) {
	f := &fakeRunner{}
	code, _, _ := runBackend(t, f, config.Default(), "--notify", "--status", "IDLE")
	assert.Equal(t, 0, code)
	assert.Len(t, f.commands, 1)
	assert.Equal(t, []string{"IDLE"}, f.statuses)
}
