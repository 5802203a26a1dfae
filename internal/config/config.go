package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// config.go loads, validates, and exposes application configuration.

var instance *Config

// ErrNotFound is returned when an explicitly requested config file is missing.
var ErrNotFound = errors.New("config file not found")

// Config holds the application configuration
type Config struct {
	Workers       int      `json:"workers" toml:"workers"`
	UpdatesPerSec int      `json:"updates_per_sec" toml:"updates_per_sec"`
	GraceMs       int      `json:"grace_ms" toml:"grace_ms"`
	Extensions    []string `json:"extensions" toml:"extensions"`

	// Per-item command
	Command      string `json:"command" toml:"command"`
	Attempts     int    `json:"attempts" toml:"attempts"`
	RetryDelayMs int    `json:"retry_delay_ms" toml:"retry_delay_ms"`

	// Discovery
	Watch        bool `json:"watch" toml:"watch"`
	WatchIdleSec int  `json:"watch_idle_sec" toml:"watch_idle_sec"`

	LogLevel string `json:"log_level" toml:"log_level"`
	LogDir   string `json:"log_dir" toml:"log_dir"`
	Lock     bool   `json:"lock" toml:"lock"`

	// Internal
	Path string `json:"-" toml:"-"` // Config file path
}

// defaults returns a Config with default values
func defaults() *Config {
	return &Config{
		Workers:       4,
		UpdatesPerSec: 3,
		GraceMs:       1000,
		Extensions:    []string{"mkv", "m4v", "mp4"},

		Command:      "",
		Attempts:     3,
		RetryDelayMs: 2000,

		Watch:        false,
		WatchIdleSec: 30,

		LogLevel: "info",
		LogDir:   ".",
		Lock:     true,
	}
}

// Default returns a validated default configuration.
func Default() *Config {
	cfg := defaults()
	_ = cfg.Validate()
	return cfg
}

// Load reads configuration from a JSON or TOML file. An empty configPath
// searches the usual locations and falls back to defaults when none exist.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, configPath)
		}
	}

	home, _ := os.UserHomeDir()
	paths := []string{
		configPath,
		"fanout.json",
		"fanout.toml",
		filepath.Join(home, ".config/fanout/config.json"),
		filepath.Join(home, ".config/fanout/config.toml"),
	}

	var configFile string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			configFile = p
			break
		}
	}

	if configFile == "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := decode(configFile, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Path = filepath.Dir(configFile)

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// Validate checks the configuration and normalises out-of-range values
func (c *Config) Validate() error {
	if c.Workers < 1 {
		c.Workers = 1
	}

	if c.UpdatesPerSec < 1 || c.UpdatesPerSec > 30 {
		c.UpdatesPerSec = 3
	}

	if c.GraceMs < 0 {
		c.GraceMs = 0
	}

	if c.Attempts < 1 {
		c.Attempts = 1
	}

	if c.RetryDelayMs < 0 {
		c.RetryDelayMs = 0
	}

	if c.WatchIdleSec < 1 {
		c.WatchIdleSec = 30
	}

	exts := make([]string, 0, len(c.Extensions))
	for _, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	if len(exts) == 0 {
		return fmt.Errorf("at least one file extension is required")
	}
	c.Extensions = exts

	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	case "":
		c.LogLevel = "info"
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	if c.LogDir == "" {
		c.LogDir = "."
	}

	return nil
}

// Get returns the singleton config instance
func Get() *Config {
	if instance == nil {
		return defaults()
	}
	return instance
}

// SetInstance sets the global config instance
func SetInstance(cfg *Config) {
	instance = cfg
}

// Grace returns the shutdown grace period
func (c *Config) Grace() time.Duration {
	if c.GraceMs == 0 {
		return -1
	}
	return time.Duration(c.GraceMs) * time.Millisecond
}

// RetryDelay returns the delay between command attempts
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// WatchIdle returns how long watch mode waits for new files before closing
func (c *Config) WatchIdle() time.Duration {
	return time.Duration(c.WatchIdleSec) * time.Second
}

// LockPath returns the run lock file location
func (c *Config) LockPath() string {
	return filepath.Join(c.LogDir, "fanout.lock")
}

// ReportFile returns the failure report location
func (c *Config) ReportFile() string {
	return filepath.Join(c.LogDir, "fanout-failed.json")
}
