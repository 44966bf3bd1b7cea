package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Iron-Ham/stockroom/internal/event"
)

// Config represents the complete stockroom configuration
type Config struct {
	Bus      BusConfig      `mapstructure:"bus"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Simulate SimulateConfig `mapstructure:"simulate"`
}

// BusConfig controls event dispatch
type BusConfig struct {
	// FailurePolicy decides what a dispatch pass does when a listener fails.
	// Options: "fail_fast", "continue" (default: "fail_fast")
	FailurePolicy string `mapstructure:"failure_policy"`
}

// Policy returns the parsed failure policy, falling back to fail-fast for
// values Validate would reject.
func (b BusConfig) Policy() event.FailurePolicy {
	p, err := event.ParseFailurePolicy(b.FailurePolicy)
	if err != nil {
		return event.FailFast
	}
	return p
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Enabled writes logs to a rotated file in Dir (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory. If empty, defaults to "logs" under the config directory.
	// Supports ~ for home directory expansion.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// ResolveDir returns the log directory, applying the default and expanding ~.
func (l LoggingConfig) ResolveDir() string {
	if l.Dir == "" {
		return filepath.Join(ConfigDir(), "logs")
	}
	return expandHome(l.Dir)
}

// WatchConfig controls the drop-directory watcher
type WatchConfig struct {
	// DebounceMs is how long a manifest file must be quiet before it is read (default: 50)
	DebounceMs int `mapstructure:"debounce_ms"`
	// Extensions are the manifest file extensions to pick up (default: [".yaml", ".yml"])
	Extensions []string `mapstructure:"extensions"`
	// ScanExisting receives manifests already in the directory on start (default: true)
	ScanExisting bool `mapstructure:"scan_existing"`
}

// Debounce returns DebounceMs as a time.Duration
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// SimulateConfig controls the simulate command
type SimulateConfig struct {
	// ShowMetrics prints dispatch metrics after the run (default: false)
	ShowMetrics bool `mapstructure:"show_metrics"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			FailurePolicy: event.FailFast.String(),
		},
		Logging: LoggingConfig{
			Enabled:    false,
			Level:      "info",
			Dir:        "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Watch: WatchConfig{
			DebounceMs:   50,
			Extensions:   []string{".yaml", ".yml"},
			ScanExisting: true,
		},
		Simulate: SimulateConfig{
			ShowMetrics: false,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Bus defaults
	viper.SetDefault("bus.failure_policy", defaults.Bus.FailurePolicy)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Watch defaults
	viper.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)
	viper.SetDefault("watch.extensions", defaults.Watch.Extensions)
	viper.SetDefault("watch.scan_existing", defaults.Watch.ScanExisting)

	// Simulate defaults
	viper.SetDefault("simulate.show_metrics", defaults.Simulate.ShowMetrics)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stockroom")
	}
	// Fall back to ~/.config/stockroom
	home, err := os.UserHomeDir()
	if err != nil {
		return ".stockroom"
	}
	return filepath.Join(home, ".config", "stockroom")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
