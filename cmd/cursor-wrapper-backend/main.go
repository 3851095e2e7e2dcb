// Command cursor-wrapper-backend performs a single wrapper side effect on
// demand, using the same configuration as cursor-wrapper. It is handy for
// testing notification and status-hook settings from a shell.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/config"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/hooks"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/logging"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/supervisor"
)

const actionTimeout = 30 * time.Second

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	logging.Init(cfg.LogConfig(os.Getenv("CURSOR_WRAPPER_LOG_FILE"), configDir()))
	code := run(os.Args[1:], cfg, hooks.NewExecutor(), os.Stdout, os.Stderr)
	logging.Shutdown()
	os.Exit(code)
}

func configDir() string {
	dir, _ := config.Dir()
	return dir
}

func run(args []string, cfg *config.Config, exec *hooks.Executor, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("cursor-wrapper-backend", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	notify := fs.Bool("notify", false, "show the configured desktop notification")
	status := fs.String("status", "", "publish `value` as the wrapper status and run the status-change hook")

	fs.Usage = func() {
		fmt.Fprintln(stdout, "Usage: cursor-wrapper-backend [--notify] [--status <value>]")
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Flags:")
		fmt.Fprint(stdout, fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		return 1
	}
	if !*notify && !fs.Changed("status") {
		fs.Usage()
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	code := 0
	if *notify {
		if err := exec.Notify(ctx, supervisor.Notification(cfg)); err != nil {
			fmt.Fprintf(stderr, "error: notify: %v\n", err)
			code = 1
		}
	}
	if fs.Changed("status") {
		if err := exec.SetStatus(ctx, *status, cfg.Hooks.StatusChange); err != nil {
			fmt.Fprintf(stderr, "error: status: %v\n", err)
			code = 1
		}
	}
	return code
}
