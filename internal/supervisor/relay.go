package supervisor

import (
	"bytes"
	"io"
	"log/slog"
	"time"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/logging"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/monitor"
)

var relayLog = logging.ForComponent(logging.CompRelay)

const (
	chunkSize = 4096

	// DefaultReadTimeout is the output loop heartbeat: how long it waits
	// for output before re-checking the idle transition.
	DefaultReadTimeout = time.Second

	escByte = 0x1b
)

// idleResetSeq is Alt+I as sent by terminals (ESC i).
var idleResetSeq = []byte{escByte, 'i'}

// InputOptions configures InputLoop.
type InputOptions struct {
	// Vim is read to decide whether a lone ESC triggers OnEscInNormal.
	Vim *monitor.VimModeCell

	// Dump receives a copy of every chunk; write errors are ignored.
	Dump io.Writer

	// OnIdleReset is called for chunks containing Alt+I.
	OnIdleReset func()

	// OnEscInNormal is called for a chunk that is exactly one ESC byte
	// while the vim mode is Normal.
	OnEscInNormal func()
}

// InputLoop copies keystrokes from r to w unmodified until r ends or a write
// fails. Callbacks must not block.
func InputLoop(r io.Reader, w io.Writer, opts InputOptions) {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if opts.Dump != nil {
				_, _ = opts.Dump.Write(chunk)
			}
			inspectInput(chunk, opts)
			if _, werr := w.Write(chunk); werr != nil {
				relayLog.Debug("input_write_closed", slog.String("error", werr.Error()))
				return
			}
		}
		if err != nil {
			// EOF or a closed terminal ends input; not an error.
			relayLog.Debug("input_closed", slog.String("error", err.Error()))
			return
		}
		if n == 0 {
			return
		}
	}
}

func inspectInput(chunk []byte, opts InputOptions) {
	if opts.OnIdleReset != nil && bytes.Contains(chunk, idleResetSeq) {
		opts.OnIdleReset()
	}
	// Escape sequences (arrows, Alt+key) arrive as multi-byte reads; only a
	// single-byte read is a real ESC press.
	if opts.OnEscInNormal != nil && len(chunk) == 1 && chunk[0] == escByte &&
		opts.Vim != nil && opts.Vim.Load() == monitor.VimNormal {
		opts.OnEscInNormal()
	}
}

// OutputOptions configures OutputLoop.
type OutputOptions struct {
	// Dump receives a copy of every chunk; write errors are ignored.
	Dump io.Writer

	// ReadTimeout bounds each wait for output. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration

	OnBusy    func()
	OnIdle    func()
	OnVimMode func(monitor.VimMode)
}

type flusher interface {
	Flush() error
}

// OutputLoop copies output from r to w unmodified, classifying every chunk
// with m, until r ends or a write to w fails. The idle transition is checked
// after every chunk and after every ReadTimeout of silence. Callbacks run on
// this goroutine in chunk order and must not block.
func OutputLoop(r io.Reader, w io.Writer, m *monitor.OutputMonitor, opts OutputOptions) {
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	chunks := make(chan []byte)
	done := make(chan struct{})
	defer close(done)
	go readChunks(r, chunks, done)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				relayLog.Debug("output_closed")
				return
			}
			if !forwardOutput(chunk, w, m, opts) {
				return
			}
		case <-timer.C:
		}

		if m.CheckTransition() {
			relayLog.Info("state_change", slog.String("to", string(monitor.StateIdle)))
			if opts.OnIdle != nil {
				opts.OnIdle()
			}
		}
		timer.Reset(timeout)
	}
}

// forwardOutput handles one chunk and reports whether the loop continues.
func forwardOutput(chunk []byte, w io.Writer, m *monitor.OutputMonitor, opts OutputOptions) bool {
	res := m.ProcessChunk(chunk)
	logging.Aggregate(logging.CompRelay, "output_chunk", int64(len(chunk)))

	if res.EnteredBusy {
		relayLog.Info("state_change", slog.String("to", string(monitor.StateBusy)))
		if opts.OnBusy != nil {
			opts.OnBusy()
		}
	}
	if res.VimModeChanged != nil {
		relayLog.Debug("vim_mode_change", slog.String("mode", res.VimModeChanged.String()))
		if opts.OnVimMode != nil {
			opts.OnVimMode(*res.VimModeChanged)
		}
	}

	if _, err := w.Write(chunk); err != nil {
		relayLog.Debug("output_write_closed", slog.String("error", err.Error()))
		return false
	}
	if f, ok := w.(flusher); ok {
		_ = f.Flush()
	}
	if opts.Dump != nil {
		_, _ = opts.Dump.Write(chunk)
	}
	return true
}

// readChunks feeds r into out in chunks of up to chunkSize bytes, each in
// its own buffer, and closes out when r ends. It gives up when done closes.
func readChunks(r io.Reader, out chan<- []byte, done <-chan struct{}) {
	defer close(out)
	for {
		buf := make([]byte, chunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case out <- buf[:n]:
			case <-done:
				return
			}
		}
		if err != nil || n == 0 {
			return
		}
	}
}
