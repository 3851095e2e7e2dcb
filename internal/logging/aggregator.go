package logging

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// summary accumulates one event kind over a window.
type summary struct {
	component string
	event     string
	count     int64
	total     int64
	fields    []slog.Attr // last non-empty context
}

// Aggregator turns high-rate events, such as every relayed chunk, into one
// "event_summary" record per event kind per window.
type Aggregator struct {
	logger *slog.Logger
	window time.Duration

	mu      sync.Mutex
	pending map[[2]string]*summary

	stop    chan struct{}
	stopped chan struct{}
}

// NewAggregator creates an aggregator with a window of intervalSecs seconds
// (30 if not positive). A nil logger drops everything.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:  logger,
		window:  time.Duration(intervalSecs) * time.Second,
		pending: make(map[[2]string]*summary),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins flushing once per window.
func (a *Aggregator) Start() {
	go func() {
		defer close(a.stopped)
		ticker := time.NewTicker(a.window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.flush()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop ends the flush loop and writes whatever is pending. Start must have
// been called.
func (a *Aggregator) Stop() {
	close(a.stop)
	<-a.stopped
	a.flush()
}

// Record counts one occurrence of event and adds amount to its total.
func (a *Aggregator) Record(component, event string, amount int64, fields ...slog.Attr) {
	key := [2]string{component, event}

	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.pending[key]
	if s == nil {
		s = &summary{component: component, event: event}
		a.pending[key] = s
	}
	s.count++
	s.total += amount
	if len(fields) > 0 {
		s.fields = fields
	}
}

// flush emits summaries ordered by component then event.
func (a *Aggregator) flush() {
	a.mu.Lock()
	batch := make([]*summary, 0, len(a.pending))
	for _, s := range a.pending {
		batch = append(batch, s)
	}
	clear(a.pending)
	a.mu.Unlock()

	if a.logger == nil || len(batch) == 0 {
		return
	}

	slices.SortFunc(batch, func(x, y *summary) int {
		return cmp.Or(cmp.Compare(x.component, y.component), cmp.Compare(x.event, y.event))
	})
	windowSecs := int(a.window / time.Second)
	for _, s := range batch {
		args := make([]any, 0, 5+len(s.fields))
		args = append(args,
			slog.String("component", s.component),
			slog.String("event", s.event),
			slog.Int64("count", s.count),
			slog.Int64("total", s.total),
			slog.Int("window_seconds", windowSecs))
		for _, f := range s.fields {
			args = append(args, f)
		}
		a.logger.Info("event_summary", args...)
	}
}
