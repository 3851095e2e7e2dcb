// Command cursor-wrapper runs cursor-agent inside a PTY, watches its output
// to tell when it is working, and reports state changes to tmux, desktop
// notifications and user hooks.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/config"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/hooks"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/logging"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/supervisor"
)

const (
	envLogFile       = "CURSOR_WRAPPER_LOG_FILE"
	envOutputDump    = "CURSOR_WRAPPER_DUMP_FILE"
	envInputDump     = "CURSOR_WRAPPER_INPUT_DUMP_FILE"
	hookCloseTimeout = 2 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) (code int) {
	cfg, cfgPath, cfgErr := config.Load()

	configDir, _ := config.Dir()
	logCfg := cfg.LogConfig(os.Getenv(envLogFile), configDir)
	logging.Init(logCfg)
	defer logging.Shutdown()

	log := logging.ForComponent(logging.CompSession)
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic", slog.Any("value", r))
			if logCfg.LogFile != "" {
				dumpPath := filepath.Join(filepath.Dir(logCfg.LogFile),
					fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
				if err := logging.DumpRingBuffer(dumpPath); err == nil {
					fmt.Fprintf(os.Stderr, "crash log written to %s\n", dumpPath)
				}
			}
			code = fatal(fmt.Errorf("panic: %v", r))
		}
	}()

	if cfgErr != nil {
		log.Error("config_load_failed", slog.String("error", cfgErr.Error()))
	}
	cfg.ReportUnknownKeys(cfgPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := config.NewStore(cfgPath, cfg)
	if cfgPath != "" {
		w, err := config.NewWatcher(store, func(c *config.Config) {
			log.Info("config_reloaded", slog.String("heuristic", c.Detection.Heuristic))
		})
		if err != nil {
			log.Warn("config_watch_failed", slog.String("error", err.Error()))
		} else {
			go w.Run(ctx)
		}
	}

	outDump, err := openDump(os.Getenv(envOutputDump))
	if err != nil {
		return fatal(err)
	}
	defer closeDump(outDump)
	inDump, err := openDump(os.Getenv(envInputDump))
	if err != nil {
		return fatal(err)
	}
	defer closeDump(inDump)

	agentPath, err := cfg.ResolveAgentPath()
	if err != nil {
		return fatal(err)
	}

	dispatcher := hooks.NewDispatcher(hooks.NewExecutor(), hooks.DispatcherOptions{
		NotifyInterval: cfg.General.NotificationMinInterval(),
	})
	defer func() {
		if !dispatcher.Close(hookCloseTimeout) {
			log.Warn("hooks_close_timeout", slog.Duration("timeout", hookCloseTimeout))
		}
	}()

	opts := supervisor.Options{
		AgentPath: agentPath,
		Args:      args,
		Store:     store,
		Sink:      dispatcher,
	}
	// Assigning a nil *os.File would make the interface non-nil.
	if outDump != nil {
		opts.OutputDump = outDump
	}
	if inDump != nil {
		opts.InputDump = inDump
	}

	code, err = supervisor.Run(ctx, opts)
	if err != nil {
		return fatal(err)
	}
	return code
}

// openDump creates the dump file at path, or returns nil when path is empty.
func openDump(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create dump file: %w", err)
	}
	return f, nil
}

func closeDump(f *os.File) {
	if f != nil {
		_ = f.Close()
	}
}

// fatal reports err and returns the exit code for setup failures.
func fatal(err error) int {
	return fatalTo(os.Stderr, err)
}

func fatalTo(w io.Writer, err error) int {
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
