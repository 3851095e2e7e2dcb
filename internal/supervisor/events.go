package supervisor

import (
	"log/slog"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/config"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/hooks"
	"github.com/tchow-twistedxcom/cursor-wrapper/internal/monitor"
)

// eventHooks maps relay events to hook requests. Each handler reads a fresh
// config snapshot so hot-reloaded hooks apply on the next event.
type eventHooks struct {
	sink  hooks.Sink
	store *config.Store
	mon   *monitor.OutputMonitor
}

func (h *eventHooks) started() {
	h.sink.SetStatus(hooks.StatusIdle, h.store.Snapshot().Hooks.StatusChange)
}

func (h *eventHooks) stopped() {
	h.sink.SetStatus(hooks.StatusClear, h.store.Snapshot().Hooks.StatusChange)
}

func (h *eventHooks) busy() {
	h.sink.SetStatus(hooks.StatusInProgress, h.store.Snapshot().Hooks.StatusChange)
}

func (h *eventHooks) idle() {
	cfg := h.store.Snapshot()
	h.sink.SetStatus(hooks.StatusWaiting, cfg.Hooks.StatusChange)
	h.sink.Notify(Notification(cfg))
}

func (h *eventHooks) vimMode(mode monitor.VimMode) {
	if tmpl := h.store.Snapshot().Hooks.VimModeChange; tmpl != "" {
		h.sink.RunHook(hooks.ExpandVimMode(tmpl, mode.String()))
	}
}

// idleReset runs on the input goroutine; the monitor applies the reset on
// its own goroutine.
func (h *eventHooks) idleReset() {
	h.sink.SetStatus(hooks.StatusIdle, h.store.Snapshot().Hooks.StatusChange)
	h.mon.RequestReset()
}

func (h *eventHooks) escInNormal() {
	if cmd := h.store.Snapshot().Hooks.EscInNormal; cmd != "" {
		h.sink.RunHook(cmd)
	}
}

// Notification builds the "done" notification from cfg.
func Notification(cfg *config.Config) hooks.Notification {
	return hooks.Notification{
		Title:   cfg.General.GetNotificationTitle(),
		Body:    cfg.General.GetNotificationBody(),
		Urgency: cfg.General.GetNotificationUrgency(),
		AppName: cfg.General.NotificationAppName,
		Icon:    cfg.General.NotificationIcon,
	}
}

// reloadingDetector recompiles the busy patterns whenever the config
// snapshot changes. Only the output goroutine uses it.
type reloadingDetector struct {
	store    *config.Store
	cfg      *config.Config
	compiled monitor.BusyDetector
}

func newReloadingDetector(store *config.Store) *reloadingDetector {
	d := &reloadingDetector{store: store}
	d.current()
	return d
}

func (d *reloadingDetector) Match(line string) bool {
	return d.current().Match(line)
}

func (d *reloadingDetector) current() monitor.BusyDetector {
	cfg := d.store.Snapshot()
	if cfg == d.cfg && d.compiled != nil {
		return d.compiled
	}
	d.cfg = cfg

	compiled, err := monitor.CompilePatterns(monitor.RawPatterns{
		Heuristic:    monitor.Heuristic(cfg.Detection.Heuristic),
		BusyPatterns: cfg.Detection.BusyPatterns,
	})
	if err != nil {
		relayLog.Warn("busy_detector_invalid", slog.String("error", err.Error()))
		if d.compiled == nil {
			d.compiled = monitor.DefaultDetector()
		}
		return d.compiled
	}
	d.compiled = compiled
	return d.compiled
}
