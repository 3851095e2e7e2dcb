package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/platform"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a Store when its config file changes on disk. The parent
// directory is watched so editors that replace the file via rename are
// picked up.
type Watcher struct {
	store   *Store
	dir     string
	name    string
	watcher *fsnotify.Watcher

	// onReload is called after each successful reload.
	onReload func(*Config)

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for store's file. Call Run to start it.
func NewWatcher(store *Store, onReload func(*Config)) (*Watcher, error) {
	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	if warning := platform.CheckFsnotifySupport(dir); warning != "" {
		configLog.Warn("config_watch_unreliable", slog.String("warning", warning))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	return &Watcher{
		store:    store,
		dir:      dir,
		name:     filepath.Base(store.Path()),
		watcher:  watcher,
		onReload: onReload,
	}, nil
}

// Run processes file events until ctx is done. Rapid bursts of events are
// coalesced into one reload.
func (w *Watcher) Run(ctx context.Context) {
	defer w.stopTimer()
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.name {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			configLog.Warn("config_watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	cfg, err := w.store.Reload()
	if err != nil {
		return
	}
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
