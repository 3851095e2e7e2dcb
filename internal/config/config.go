// Package config loads the wrapper's TOML configuration and keeps a
// hot-reloadable snapshot of it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tchow-twistedxcom/cursor-wrapper/internal/logging"
)

var configLog = logging.ForComponent(logging.CompConfig)

const (
	// AppDirName is the directory under the user config dir.
	AppDirName = "cursor-wrapper"

	// FileName is the config file name inside AppDirName.
	FileName = "config.toml"

	// EnvAgentPath overrides the supervised program.
	EnvAgentPath = "CURSOR_WRAPPER_AGENT_PATH"

	// DefaultAgentPath is relative to the home directory.
	DefaultAgentPath = ".local/bin/cursor-agent"
)

// Config is the top-level config.toml layout. Values are treated as
// immutable once published through a Store.
type Config struct {
	General   GeneralSettings   `toml:"general"`
	Hooks     HookSettings      `toml:"hooks"`
	Detection DetectionSettings `toml:"detection"`
	Logs      LogSettings       `toml:"logs"`

	// UnknownKeys lists keys in the file that match no setting. LoadFile
	// fills it; ReportUnknownKeys logs it once logging is set up.
	UnknownKeys []string `toml:"-"`
}

// GeneralSettings controls the notification and the supervised program.
type GeneralSettings struct {
	NotificationTitle   string `toml:"notification-title"`
	NotificationBody    string `toml:"notification-body"`
	NotificationUrgency string `toml:"notification-urgency"`
	NotificationAppName string `toml:"notification-app-name"`
	NotificationIcon    string `toml:"notification-icon"`

	// NotificationMinIntervalMs drops notifications arriving sooner than
	// this after the previous one. Zero shows every notification.
	NotificationMinIntervalMs int `toml:"notification-min-interval-ms"`

	// AgentPath is the program to run. A leading ~/ expands to the home dir.
	AgentPath string `toml:"agent-path"`
}

// HookSettings holds user shell commands run with sh -c.
type HookSettings struct {
	// StatusChange runs after every status update; {status} is replaced.
	StatusChange string `toml:"status-change"`

	// EscInNormal runs when ESC is pressed alone in vim Normal mode.
	EscInNormal string `toml:"esc-in-normal"`

	// VimModeChange runs on vim mode changes; {vim_mode} is replaced.
	VimModeChange string `toml:"vim-mode-change"`
}

// DetectionSettings tunes busy detection.
type DetectionSettings struct {
	// Heuristic is "glyph" (default) or "dots".
	Heuristic string `toml:"heuristic"`

	// BusyPatterns are extra busy markers: plain substrings, or regexes
	// prefixed with "re:".
	BusyPatterns []string `toml:"busy-patterns"`

	EnterBusyMs int `toml:"enter-busy-ms"`
	ExitBusyMs  int `toml:"exit-busy-ms"`
}

// LogSettings configures the structured log. The log is written only when
// Debug is set or CURSOR_WRAPPER_LOG_FILE names a file.
type LogSettings struct {
	Debug      bool   `toml:"debug"`
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	MaxSizeMB  int    `toml:"max-size-mb"`
	MaxBackups int    `toml:"max-backups"`
	MaxAgeDays int    `toml:"max-age-days"`
	Compress   bool   `toml:"compress"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		General: GeneralSettings{
			NotificationTitle:   "Cursor Agent",
			NotificationBody:    "Done",
			NotificationUrgency: "normal",
		},
		Detection: DetectionSettings{
			Heuristic:   "glyph",
			EnterBusyMs: 1000,
			ExitBusyMs:  200,
		},
		Logs: LogSettings{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Dir returns the config directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(base, AppDirName), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// LoadFile reads path on top of the defaults. A missing file yields the
// defaults. On a parse error the defaults are returned together with the
// error so callers can report it and continue.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Default(), fmt.Errorf("%s parse error: %w", FileName, err)
	}

	for _, k := range meta.Undecoded() {
		cfg.UnknownKeys = append(cfg.UnknownKeys, k.String())
	}
	return cfg, nil
}

// Load reads the config from the default path.
func Load() (*Config, string, error) {
	path, err := Path()
	if err != nil {
		return Default(), "", err
	}
	cfg, err := LoadFile(path)
	return cfg, path, err
}

// ReportUnknownKeys logs UnknownKeys, if any, as a warning for path.
func (c *Config) ReportUnknownKeys(path string) {
	if len(c.UnknownKeys) == 0 {
		return
	}
	configLog.Warn("config_unknown_keys",
		slog.String("path", path),
		slog.String("keys", strings.Join(c.UnknownKeys, ",")))
}

// NotificationMinInterval returns the notification rate limit; zero means
// unlimited.
func (g GeneralSettings) NotificationMinInterval() time.Duration {
	if g.NotificationMinIntervalMs <= 0 {
		return 0
	}
	return time.Duration(g.NotificationMinIntervalMs) * time.Millisecond
}

// GetNotificationTitle returns the notification title, defaulting to "Cursor Agent".
func (g GeneralSettings) GetNotificationTitle() string {
	if g.NotificationTitle == "" {
		return "Cursor Agent"
	}
	return g.NotificationTitle
}

// GetNotificationBody returns the notification body, defaulting to "Done".
func (g GeneralSettings) GetNotificationBody() string {
	if g.NotificationBody == "" {
		return "Done"
	}
	return g.NotificationBody
}

// GetNotificationUrgency returns a notify-send urgency level. Unknown values
// fall back to "normal".
func (g GeneralSettings) GetNotificationUrgency() string {
	switch g.NotificationUrgency {
	case "low", "normal", "critical":
		return g.NotificationUrgency
	}
	return "normal"
}

// ResolveAgentPath picks the program to supervise: the environment
// override, then agent-path, then ~/.local/bin/cursor-agent.
func (c *Config) ResolveAgentPath() (string, error) {
	if p := os.Getenv(EnvAgentPath); p != "" {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		if c.General.AgentPath != "" && !strings.HasPrefix(c.General.AgentPath, "~/") {
			return c.General.AgentPath, nil
		}
		return "", fmt.Errorf("locate home dir: %w", err)
	}

	if p := c.General.AgentPath; p != "" {
		if rest, ok := strings.CutPrefix(p, "~/"); ok {
			return filepath.Join(home, rest), nil
		}
		return p, nil
	}
	return filepath.Join(home, DefaultAgentPath), nil
}

// EnterBusy returns the enter-busy debounce; zero means the built-in default.
func (d DetectionSettings) EnterBusy() time.Duration {
	if d.EnterBusyMs <= 0 {
		return 0
	}
	return time.Duration(d.EnterBusyMs) * time.Millisecond
}

// ExitBusy returns the exit-busy debounce; zero means the built-in default.
func (d DetectionSettings) ExitBusy() time.Duration {
	if d.ExitBusyMs <= 0 {
		return 0
	}
	return time.Duration(d.ExitBusyMs) * time.Millisecond
}

// LogConfig maps the [logs] section onto the logging package. logFile is
// the CURSOR_WRAPPER_LOG_FILE value; when it is empty and debug is on, the
// log goes next to the config file.
func (c *Config) LogConfig(logFile, configDir string) logging.Config {
	if logFile == "" && c.Logs.Debug && configDir != "" {
		logFile = filepath.Join(configDir, "debug.log")
	}
	return logging.Config{
		LogFile:    logFile,
		Level:      c.Logs.Level,
		Format:     c.Logs.Format,
		MaxSizeMB:  c.Logs.MaxSizeMB,
		MaxBackups: c.Logs.MaxBackups,
		MaxAgeDays: c.Logs.MaxAgeDays,
		Compress:   c.Logs.Compress,
	}
}
