package tmux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// StatusOption is the tmux user option that mirrors the agent status, for
// use in status-line formats such as #{@cursor-wrapper-status}.
const StatusOption = "@cursor-wrapper-status"

// InTmux reports whether the process runs inside a tmux client.
func InTmux() bool {
	return os.Getenv("TMUX") != ""
}

// StatusArgs returns the tmux arguments that set the status option, or unset
// it when value is empty so no stale status lingers.
func StatusArgs(value string) []string {
	if value == "" {
		return []string{"set-option", "-qu", StatusOption}
	}
	return []string{"set-option", "-q", StatusOption, value}
}

// SetStatus updates the status option on the current session. It is a no-op
// outside tmux.
func SetStatus(ctx context.Context, value string) error {
	if !InTmux() {
		return nil
	}
	cmd := exec.CommandContext(ctx, "tmux", StatusArgs(value)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("tmux set-option %s: %w (output: %s)",
			StatusOption, err, strings.TrimSpace(string(output)))
	}
	return nil
}
