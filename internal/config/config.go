// Package config loads the host configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config is the Treeline host configuration.
type Config struct {
	// DBPath is the SQLite database file. Defaults to treeline.db in
	// the config directory.
	DBPath string `toml:"db_path"`

	// PluginDir is the plugin search directory. Defaults to plugins/
	// in the config directory.
	PluginDir string `toml:"plugin_dir"`

	// WatchPlugins reloads plugins when their files change on disk.
	WatchPlugins bool `toml:"watch_plugins"`

	// Theme is "light" or "dark".
	Theme string `toml:"theme"`

	// Currency is the ISO 4217 display currency code.
	Currency string `toml:"currency"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// Validation errors.
var (
	ErrInvalidTheme    = errors.New("config: theme must be light or dark")
	ErrInvalidLogLevel = errors.New("config: log_level must be debug, info, warn, or error")
)

// Default returns the configuration used when no file exists.
func Default() Config {
	dir := DefaultDir()
	return Config{
		DBPath:       filepath.Join(dir, "treeline.db"),
		PluginDir:    filepath.Join(dir, "plugins"),
		WatchPlugins: true,
		Theme:        "light",
		Currency:     "USD",
		LogLevel:     "info",
	}
}

// DefaultDir returns the Treeline config directory.
func DefaultDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "treeline")
	}
	return "."
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.toml")
}

// Load reads configuration from path, filling unset fields with
// defaults. A missing file is not an error and yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	switch c.Theme {
	case "light", "dark":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTheme, c.Theme)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured log level to a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
