package monitor

import "sync/atomic"

// AgentState is the inferred activity of the supervised program.
type AgentState string

const (
	StateIdle AgentState = "idle" // waiting for the user
	StateBusy AgentState = "busy" // spinner animation on screen
)

// VimMode is the inferred editing mode of the program's input field.
type VimMode int32

const (
	VimInsert VimMode = iota
	VimNormal
)

// String returns the form substituted for {vim_mode} in hooks.
func (m VimMode) String() string {
	if m == VimNormal {
		return "NORMAL"
	}
	return "INSERT"
}

// VimModeCell is the process-wide vim mode. The output monitor is the only
// writer; the input relay reads it to decide whether a lone ESC is a hook
// trigger. The zero value holds VimInsert.
type VimModeCell struct {
	v atomic.Int32
}

// Load returns the current mode.
func (c *VimModeCell) Load() VimMode {
	return VimMode(c.v.Load())
}

// Store replaces the current mode.
func (c *VimModeCell) Store(m VimMode) {
	c.v.Store(int32(m))
}
