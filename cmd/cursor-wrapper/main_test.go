package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain points the config lookup at a scratch directory so tests never
// read or watch the user's real configuration.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "cursor-wrapper-test-")
	if err != nil {
		panic(err)
	}
	os.Setenv("XDG_CONFIG_HOME", dir)
	os.Setenv("HOME", dir)
	os.Unsetenv(envLogFile)
	os.Unsetenv(envOutputDump)
	os.Unsetenv(envInputDump)

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func TestFatalFormat(t *testing.T) {
	var buf bytes.Buffer
	code := fatalTo(&buf, errors.New("spawn /x: no such file"))
	assert.Equal(t, 1, code)
	assert.Equal(t, "error: spawn /x: no such file\n", buf.String())
}

func TestOpenDump(t *testing.T) {
	f, err := openDump("")
	require.NoError(t, err)
	assert.Nil(t, f)

	path := filepath.Join(t.TempDir(), "out.bin")
	f, err = openDump(path)
	require.NoError(t, err)
	require.NotNil(t, f)
	closeDump(f)
	assert.FileExists(t, path)

	_, err = openDump(filepath.Join(t.TempDir(), "missing", "out.bin"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create dump file")
}

func TestRunMissingAgent(t *testing.T) {
	t.Setenv("CURSOR_WRAPPER_AGENT_PATH", "/nonexistent/cursor-agent")
	assert.Equal(t, 1, run(nil))
}

func TestRunRelaysExitCode(t *testing.T) {
	t.Setenv("CURSOR_WRAPPER_AGENT_PATH", "/bin/sh")
	// go test gives us a non-terminal stdin, so this takes the piped path.
	assert.Equal(t, 5, run([]string{"-c", "exit 5"}))
}

func TestRunDumpFileFailureIsFatal(t *testing.T) {
	t.Setenv("CURSOR_WRAPPER_AGENT_PATH", "/bin/sh")
	dump := filepath.Join(t.TempDir(), "missing-dir", "dump.bin")
	t.Setenv(envOutputDump, dump)
	assert.Equal(t, 1, run([]string{"-c", "exit 0"}))
}
