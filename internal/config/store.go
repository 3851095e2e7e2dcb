package config

import (
	"log/slog"
	"sync"
)

// Store holds the current config snapshot. Readers take a snapshot per
// decision and never hold the lock across blocking work.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// NewStore publishes cfg as the initial snapshot for the file at path.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	return &Store{path: path, cfg: cfg}
}

// Path returns the file the store reloads from.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the current config. Callers must not modify it.
func (s *Store) Snapshot() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Replace publishes a new snapshot.
func (s *Store) Replace(cfg *Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Reload re-reads the file. On a parse error the previous snapshot stays
// in place and the error is returned.
func (s *Store) Reload() (*Config, error) {
	cfg, err := LoadFile(s.path)
	if err != nil {
		configLog.Warn("config_reload_failed",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return s.Snapshot(), err
	}
	cfg.ReportUnknownKeys(s.path)
	s.Replace(cfg)
	configLog.Info("config_reloaded", slog.String("path", s.path))
	return cfg, nil
}
