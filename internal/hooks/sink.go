// Package hooks runs the side effects triggered by agent state changes:
// desktop notifications, the tmux status option and user shell hooks.
package hooks

import "strings"

// Status values published to tmux and the status-change hook.
const (
	StatusIdle       = "IDLE"
	StatusInProgress = "INPROGRESS"
	StatusWaiting    = "WAITING"
	StatusClear      = ""
)

// Notification is a desktop notification request.
type Notification struct {
	Title   string
	Body    string
	Urgency string // low, normal or critical
	AppName string // optional
	Icon    string // optional
}

// Sink receives hook requests from the relay. Implementations must return
// immediately; the work happens elsewhere and failures are never reported
// back.
type Sink interface {
	Notify(n Notification)
	SetStatus(value, hookTemplate string)
	RunHook(command string)
}

// ExpandStatus substitutes {status} in a status-change hook template.
func ExpandStatus(template, status string) string {
	return strings.ReplaceAll(template, "{status}", status)
}

// ExpandVimMode substitutes {vim_mode} in a vim-mode-change hook template.
func ExpandVimMode(template, mode string) string {
	return strings.ReplaceAll(template, "{vim_mode}", mode)
}
