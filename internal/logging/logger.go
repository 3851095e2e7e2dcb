package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component names attached to every record from ForComponent loggers.
const (
	CompRelay   = "relay"
	CompMonitor = "monitor"
	CompHooks   = "hooks"
	CompConfig  = "config"
	CompSession = "session"
)

// Config holds logging configuration. Zero values select defaults.
type Config struct {
	// LogFile is the log file path. Empty discards all records.
	LogFile string

	// Level is "debug", "info" (default), "warn" or "error".
	Level string

	// Format is "json" (default) or "text".
	Format string

	// Rotation, passed to lumberjack.
	MaxSizeMB  int // default 10
	MaxBackups int // default 3
	MaxAgeDays int // default 7
	Compress   bool

	// RingBufferSize is the crash-dump tail in bytes (default 1MB).
	RingBufferSize int

	// AggregateIntervalSecs is the event summary window (default 30).
	AggregateIntervalSecs int
}

func (c *Config) applyDefaults() {
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 3
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 7
	}
	if c.RingBufferSize <= 0 {
		c.RingBufferSize = 1024 * 1024
	}
	if c.AggregateIntervalSecs <= 0 {
		c.AggregateIntervalSecs = 30
	}
}

// state is everything Init creates and Shutdown tears down.
type state struct {
	logger *slog.Logger
	ring   *RingBuffer
	agg    *Aggregator
	file   *lumberjack.Logger
}

var (
	globalMu sync.RWMutex
	global   *state

	discard = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

// Init installs the process-wide logger. Records carry the seconds elapsed
// since Init so a session can be read as a timeline.
func Init(cfg Config) {
	cfg.applyDefaults()

	s := &state{}
	if cfg.LogFile == "" {
		s.logger = discard
	} else {
		s.file = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		s.ring = NewRingBuffer(cfg.RingBufferSize)
		w := io.MultiWriter(s.file, s.ring)
		s.logger = slog.New(&elapsedHandler{
			inner: newHandler(w, cfg.Format, parseLevel(cfg.Level)),
			start: time.Now(),
		})
		s.agg = NewAggregator(s.logger, cfg.AggregateIntervalSecs)
		s.agg.Start()
	}

	globalMu.Lock()
	old := global
	global = s
	globalMu.Unlock()
	old.close()
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func current() *state {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

// Logger returns the global logger, or a discarding one before Init.
func Logger() *slog.Logger {
	if s := current(); s != nil {
		return s.logger
	}
	return discard
}

// ForComponent returns a logger tagged with component. It looks up the
// global handler on every record, so package-level loggers declared before
// Init still reach the log file.
func ForComponent(name string) *slog.Logger {
	return slog.New(&dynamicHandler{component: name})
}

type dynamicHandler struct {
	component string
	ops       []handlerOp // applied in order on top of the global handler
}

// handlerOp is one WithAttrs (attrs set) or WithGroup (group set) call.
type handlerOp struct {
	attrs []slog.Attr
	group string
}

func (h *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler().WithAttrs([]slog.Attr{slog.String("component", h.component)})
	for _, op := range h.ops {
		if op.group != "" {
			handler = handler.WithGroup(op.group)
		} else {
			handler = handler.WithAttrs(op.attrs)
		}
	}
	return handler.Handle(ctx, r)
}

func (h *dynamicHandler) with(op handlerOp) *dynamicHandler {
	ops := make([]handlerOp, 0, len(h.ops)+1)
	ops = append(ops, h.ops...)
	return &dynamicHandler{component: h.component, ops: append(ops, op)}
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	return h.with(handlerOp{attrs: attrs})
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.with(handlerOp{group: name})
}

// elapsedHandler adds an "elapsed" attribute in seconds since start.
type elapsedHandler struct {
	inner slog.Handler
	start time.Time
}

func (h *elapsedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *elapsedHandler) Handle(ctx context.Context, r slog.Record) error {
	r = r.Clone()
	r.AddAttrs(slog.Float64("elapsed", r.Time.Sub(h.start).Seconds()))
	return h.inner.Handle(ctx, r)
}

func (h *elapsedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &elapsedHandler{inner: h.inner.WithAttrs(attrs), start: h.start}
}

func (h *elapsedHandler) WithGroup(name string) slog.Handler {
	return &elapsedHandler{inner: h.inner.WithGroup(name), start: h.start}
}

// Aggregate counts a high-frequency event and adds amount (bytes relayed,
// for example) to its total for the current window.
func Aggregate(component, key string, amount int64, fields ...slog.Attr) {
	if s := current(); s != nil && s.agg != nil {
		s.agg.Record(component, key, amount, fields...)
	}
}

// DumpRingBuffer writes the recent log tail to path. It is a no-op when
// logging is disabled.
func DumpRingBuffer(path string) error {
	if s := current(); s != nil && s.ring != nil {
		return s.ring.DumpToFile(path)
	}
	return nil
}

// Shutdown flushes pending summaries and closes the log file.
func Shutdown() {
	globalMu.Lock()
	s := global
	global = nil
	globalMu.Unlock()
	s.close()
}

func (s *state) close() {
	if s == nil {
		return
	}
	if s.agg != nil {
		s.agg.Stop()
	}
	if s.file != nil {
		_ = s.file.Close()
	}
}
