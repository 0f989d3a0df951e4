package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.Version != Version {
		t.Errorf("version = %d, want %d", cfg.Version, Version)
	}
	if got := cfg.Guard.PollInterval(); got != 5*time.Millisecond {
		t.Errorf("poll interval = %s, want 5ms", got)
	}
	if got := cfg.Guard.TickInterval(); got != 100*time.Millisecond {
		t.Errorf("tick interval = %s, want 100ms", got)
	}
	if got := cfg.Guard.ConfirmTimeout(); got != 10*time.Second {
		t.Errorf("confirm timeout = %s, want 10s", got)
	}
	if got := cfg.Guard.SessionDuration(); got != 120*time.Second {
		t.Errorf("session duration = %s, want 120s", got)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("storage type = %q, want sqlite", cfg.Storage.Type)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guard.PollIntervalMs != 5 {
		t.Errorf("poll_interval_ms = %d, want default 5", cfg.Guard.PollIntervalMs)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[guard]
poll_interval_ms = 10
tick_interval_ms = 200
confirm_timeout_sec = 15
session_duration_sec = 60

[storage]
type = "memory"

[logging]
level = "debug"
format = "json"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guard.PollInterval() != 10*time.Millisecond {
		t.Errorf("poll interval = %s, want 10ms", cfg.Guard.PollInterval())
	}
	if cfg.Guard.SessionDuration() != 60*time.Second {
		t.Errorf("session duration = %s, want 60s", cfg.Guard.SessionDuration())
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("storage type = %q, want memory", cfg.Storage.Type)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %q/%q, want debug/json", cfg.Logging.Level, cfg.Logging.Format)
	}
	// Unset sections keep their defaults.
	if !cfg.IPC.Enabled {
		t.Error("ipc.enabled should default to true")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
guard:
  poll_interval_ms: 20
  tick_interval_ms: 100
  confirm_timeout_sec: 10
  session_duration_sec: 120
storage:
  type: memory
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guard.PollIntervalMs != 20 {
		t.Errorf("poll_interval_ms = %d, want 20", cfg.Guard.PollIntervalMs)
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"guard": {"poll_interval_ms": 50, "tick_interval_ms": 100, "confirm_timeout_sec": 10, "session_duration_sec": 120}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Guard.PollIntervalMs != 50 {
		t.Errorf("poll_interval_ms = %d, want 50", cfg.Guard.PollIntervalMs)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[guard]
poll_interval_ms = 500
tick_interval_ms = 100
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for tick < poll")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero poll interval", func(c *Config) { c.Guard.PollIntervalMs = 0 }, false},
		{"negative poll interval", func(c *Config) { c.Guard.PollIntervalMs = -5 }, false},
		{"tick below poll", func(c *Config) { c.Guard.TickIntervalMs = 1 }, false},
		{"tick equals poll", func(c *Config) { c.Guard.TickIntervalMs = c.Guard.PollIntervalMs }, true},
		{"zero confirm timeout", func(c *Config) { c.Guard.ConfirmTimeoutSec = 0 }, false},
		{"zero session duration", func(c *Config) { c.Guard.SessionDurationSec = 0 }, false},
		{"unknown storage type", func(c *Config) { c.Storage.Type = "redis" }, false},
		{"memory storage without path", func(c *Config) { c.Storage.Type = "memory"; c.Storage.Path = "" }, true},
		{"sqlite without path", func(c *Config) { c.Storage.Path = "" }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, false},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, false},
		{"ipc enabled without socket", func(c *Config) { c.IPC.SocketPath = "" }, false},
		{"ipc disabled without socket", func(c *Config) { c.IPC.Enabled = false; c.IPC.SocketPath = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLIPGUARD_STORAGE_PATH", "/tmp/override.db")
	t.Setenv("CLIPGUARD_LOG_LEVEL", "debug")
	t.Setenv("CLIPGUARD_SOCKET_PATH", "/tmp/override.sock")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Storage.Path != "/tmp/override.db" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.IPC.SocketPath != "/tmp/override.sock" {
		t.Errorf("socket path = %q", cfg.IPC.SocketPath)
	}
}

func TestDataDirOverride(t *testing.T) {
	t.Setenv("CLIPGUARD_DATA_DIR", "/tmp/clipguard-test")
	if got := DataDir(); got != "/tmp/clipguard-test" {
		t.Errorf("DataDir() = %q, want /tmp/clipguard-test", got)
	}
}

func TestClone(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()

	clone.Guard.PollIntervalMs = 999
	if cfg.Guard.PollIntervalMs == 999 {
		t.Error("mutation of clone leaked into original")
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "data", "stats.db")
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "clipguard.log")
	cfg.IPC.SocketPath = filepath.Join(dir, "run", "clipguard.sock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, d := range []string{"data", "logs", "run"} {
		if _, err := os.Stat(filepath.Join(dir, d)); err != nil {
			t.Errorf("directory %s not created: %v", d, err)
		}
	}
}
