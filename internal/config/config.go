// Package config handles configuration loading, validation, and management
// for clipguard.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Guard holds protection state machine timing.
	Guard GuardConfig `toml:"guard" json:"guard" yaml:"guard"`

	// Storage configuration for statistics persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Notify configuration for desktop notifications.
	Notify NotifyConfig `toml:"notify" json:"notify" yaml:"notify"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// GuardConfig holds every timing constant of the protection pipeline.
// None of these are compiled in: timeout constants that live in more than
// one place drift apart, so all four live here and nowhere else.
type GuardConfig struct {
	// PollIntervalMs is the clipboard poll interval in milliseconds.
	PollIntervalMs int `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`

	// TickIntervalMs is the watchdog/expiry check interval in milliseconds.
	TickIntervalMs int `toml:"tick_interval_ms" json:"tick_interval_ms" yaml:"tick_interval_ms"`

	// ConfirmTimeoutSec is how long a detected address waits for the user
	// before being auto-dismissed.
	ConfirmTimeoutSec int `toml:"confirm_timeout_sec" json:"confirm_timeout_sec" yaml:"confirm_timeout_sec"`

	// SessionDurationSec is how long a confirmed protection session lasts.
	SessionDurationSec int `toml:"session_duration_sec" json:"session_duration_sec" yaml:"session_duration_sec"`
}

// PollInterval returns the poll interval as a duration.
func (g GuardConfig) PollInterval() time.Duration {
	return time.Duration(g.PollIntervalMs) * time.Millisecond
}

// TickInterval returns the watchdog/expiry interval as a duration.
func (g GuardConfig) TickInterval() time.Duration {
	return time.Duration(g.TickIntervalMs) * time.Millisecond
}

// ConfirmTimeout returns the confirmation deadline as a duration.
func (g GuardConfig) ConfirmTimeout() time.Duration {
	return time.Duration(g.ConfirmTimeoutSec) * time.Second
}

// SessionDuration returns the protection session length as a duration.
func (g GuardConfig) SessionDuration() time.Duration {
	return time.Duration(g.SessionDurationSec) * time.Second
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Type is the storage backend type: "sqlite" or "memory".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the path to the statistics database file (for sqlite).
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout in milliseconds.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is the log output: "stdout", "stderr", or "file".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the path to the log file (when Output is "file").
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// Enabled determines whether the IPC server is started.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the path to the Unix socket.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// TimeoutSec is the per-connection read/write timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// NotifyConfig holds desktop notification configuration.
type NotifyConfig struct {
	// Enabled determines whether desktop notifications are sent.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// ShowAddresses includes full addresses in notification bodies.
	// When false only the coin name and a short address prefix appear.
	ShowAddresses bool `toml:"show_addresses" json:"show_addresses" yaml:"show_addresses"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := DataDir()

	return &Config{
		Version: Version,
		Guard: GuardConfig{
			PollIntervalMs:     5,
			TickIntervalMs:     100,
			ConfirmTimeoutSec:  10,
			SessionDurationSec: 120,
		},
		Storage: StorageConfig{
			Type:          "sqlite",
			Path:          filepath.Join(dir, "stats.db"),
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "stderr",
			FilePath: filepath.Join(dir, "clipguard.log"),
		},
		IPC: IPCConfig{
			Enabled:    true,
			SocketPath: defaultSocketPath(),
			TimeoutSec: 30,
		},
		Notify: NotifyConfig{
			Enabled:       true,
			ShowAddresses: false,
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.toml")
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
// Supports TOML, JSON, and YAML formats based on file extension.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Guard.PollIntervalMs <= 0 {
		return fmt.Errorf("guard.poll_interval_ms must be positive, got %d", c.Guard.PollIntervalMs)
	}
	if c.Guard.TickIntervalMs < c.Guard.PollIntervalMs {
		return fmt.Errorf("guard.tick_interval_ms (%d) must be >= guard.poll_interval_ms (%d)",
			c.Guard.TickIntervalMs, c.Guard.PollIntervalMs)
	}
	if c.Guard.ConfirmTimeoutSec <= 0 {
		return fmt.Errorf("guard.confirm_timeout_sec must be positive, got %d", c.Guard.ConfirmTimeoutSec)
	}
	if c.Guard.SessionDurationSec <= 0 {
		return fmt.Errorf("guard.session_duration_sec must be positive, got %d", c.Guard.SessionDurationSec)
	}
	switch c.Storage.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.type must be \"sqlite\" or \"memory\", got %q", c.Storage.Type)
	}
	if c.Storage.Type == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for sqlite storage")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	if c.IPC.Enabled && c.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socket_path is required when ipc is enabled")
	}
	return nil
}

// EnsureDirectories creates all necessary directories for the daemon.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.Path),
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.IPC.SocketPath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DataDir returns the base clipguard data directory.
// Uses platform-specific paths or the CLIPGUARD_DATA_DIR override.
func DataDir() string {
	if envDir := os.Getenv("CLIPGUARD_DATA_DIR"); envDir != "" {
		return envDir
	}

	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "clipguard")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "clipguard")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "clipguard")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "clipguard")
	}
}

// ApplyEnvOverrides applies environment variable overrides to the
// configuration. Variables are prefixed with CLIPGUARD_.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("CLIPGUARD_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CLIPGUARD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CLIPGUARD_LOG_PATH"); v != "" {
		c.Logging.FilePath = v
	}
	if v := os.Getenv("CLIPGUARD_SOCKET_PATH"); v != "" {
		c.IPC.SocketPath = v
	}
}

// Clone returns a copy of the configuration safe for concurrent use.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &Config{
		Version: c.Version,
		Guard:   c.Guard,
		Storage: c.Storage,
		Logging: c.Logging,
		IPC:     c.IPC,
		Notify:  c.Notify,
	}
}

func defaultSocketPath() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "clipguard", "clipguard.sock")
	case "linux":
		if xdgRuntime := os.Getenv("XDG_RUNTIME_DIR"); xdgRuntime != "" {
			return filepath.Join(xdgRuntime, "clipguard.sock")
		}
		return "/tmp/clipguard.sock"
	case "windows":
		return `\\.\pipe\clipguard`
	default:
		return "/tmp/clipguard.sock"
	}
}
