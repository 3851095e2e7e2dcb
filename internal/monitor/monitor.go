package monitor

import (
	"regexp"
	"sync/atomic"
	"time"
)

// Default debounce thresholds. Entering Busy requires a sustained spinner;
// leaving it only needs a short silence.
const (
	DefaultEnterBusy = time.Second
	DefaultExitBusy  = 200 * time.Millisecond
)

// Cursor styling the agent's input box uses for the character under the
// cursor. One arbitrary byte sits between the two codes.
var (
	normalModeRe = regexp.MustCompile(`(?s)\x1b\[100m.\x1b\[49m`)
	insertModeRe = regexp.MustCompile(`(?s)\x1b\[7m.\x1b\[27m`)
)

// Options configures an OutputMonitor. Zero values select the defaults.
type Options struct {
	Detector  BusyDetector
	EnterBusy time.Duration
	ExitBusy  time.Duration

	// Now is the clock. It must be monotonic; time.Now is.
	Now func() time.Time
}

// ChunkResult describes what a single output chunk caused.
type ChunkResult struct {
	// EnteredBusy is set on the chunk that completes the enter debounce.
	EnteredBusy bool

	// VimModeChanged is non-nil when the chunk switched the vim mode.
	VimModeChanged *VimMode

	// Busy reports whether the chunk matched the busy predicate at all.
	Busy bool
}

// OutputMonitor classifies the output stream into Idle/Busy and tracks the
// vim mode. It is owned by the output relay goroutine and is not safe for
// concurrent use, except for RequestReset.
type OutputMonitor struct {
	vim      *VimModeCell
	detector BusyDetector
	now      func() time.Time

	enterBusy time.Duration
	exitBusy  time.Duration

	state        AgentState
	lastBusySeen time.Time
	busySince    time.Time // start of the current streak, valid when inStreak
	inStreak     bool
	lastVimMode  VimMode

	resetRequested atomic.Bool
}

// New creates a monitor in the Idle state that publishes vim mode changes to
// vim.
func New(vim *VimModeCell, opts Options) *OutputMonitor {
	if opts.Detector == nil {
		opts.Detector = DefaultDetector()
	}
	if opts.EnterBusy <= 0 {
		opts.EnterBusy = DefaultEnterBusy
	}
	if opts.ExitBusy <= 0 {
		opts.ExitBusy = DefaultExitBusy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &OutputMonitor{
		vim:          vim,
		detector:     opts.Detector,
		now:          opts.Now,
		enterBusy:    opts.EnterBusy,
		exitBusy:     opts.ExitBusy,
		state:        StateIdle,
		lastBusySeen: opts.Now(),
		lastVimMode:  vim.Load(),
	}
}

// State returns the current classification.
func (m *OutputMonitor) State() AgentState {
	return m.state
}

// ProcessChunk inspects one raw output chunk.
func (m *OutputMonitor) ProcessChunk(chunk []byte) ChunkResult {
	m.applyReset()

	res := ChunkResult{VimModeChanged: m.detectVimMode(chunk)}

	if !IsBusy(m.detector, chunk) {
		m.inStreak = false
		return res
	}

	res.Busy = true
	now := m.now()
	m.lastBusySeen = now
	if m.state == StateBusy {
		return res
	}

	if !m.inStreak {
		m.inStreak = true
		m.busySince = now
	}
	if now.Sub(m.busySince) >= m.enterBusy {
		m.state = StateBusy
		res.EnteredBusy = true
	}
	return res
}

// CheckTransition returns true exactly once when a Busy monitor has seen no
// busy chunk for longer than the exit threshold.
func (m *OutputMonitor) CheckTransition() bool {
	m.applyReset()

	if m.state != StateBusy {
		return false
	}
	if m.now().Sub(m.lastBusySeen) <= m.exitBusy {
		return false
	}
	m.state = StateIdle
	m.inStreak = false
	return true
}

// RequestReset asks the owner goroutine to force the monitor back to Idle
// and discard any streak in progress. Safe to call from any goroutine; it
// takes effect on the next ProcessChunk or CheckTransition.
func (m *OutputMonitor) RequestReset() {
	m.resetRequested.Store(true)
}

// ResetToIdle forces Idle immediately. Only the owner goroutine may call it.
func (m *OutputMonitor) ResetToIdle() {
	m.state = StateIdle
	m.inStreak = false
}

func (m *OutputMonitor) applyReset() {
	if m.resetRequested.CompareAndSwap(true, false) {
		m.ResetToIdle()
	}
}

// detectVimMode stores any detected mode into the shared cell and returns it
// only if it differs from the last one this monitor saw.
func (m *OutputMonitor) detectVimMode(chunk []byte) *VimMode {
	var mode VimMode
	switch {
	case normalModeRe.Match(chunk):
		mode = VimNormal
	case insertModeRe.Match(chunk):
		mode = VimInsert
	default:
		return nil
	}

	m.vim.Store(mode)
	if mode == m.lastVimMode {
		return nil
	}
	m.lastVimMode = mode
	return &mode
}
