package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Bridge.CallTimeout != 30*time.Second {
		t.Errorf("expected default CallTimeout 30s, got %v", cfg.Bridge.CallTimeout)
	}
	if !cfg.Bridge.Mocks {
		t.Error("expected Mocks to default to true")
	}
	if cfg.Transfers.CleanupDelay != 3*time.Second {
		t.Errorf("expected default CleanupDelay 3s, got %v", cfg.Transfers.CleanupDelay)
	}
	if cfg.Passcode.MaxAttempts != 5 {
		t.Errorf("expected default MaxAttempts 5, got %d", cfg.Passcode.MaxAttempts)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	cfg := New()
	cfg.Bridge.SocketPath = "/tmp/custom.sock"
	cfg.Bridge.CallTimeout = 5 * time.Second
	cfg.Bridge.Mocks = false
	cfg.Transfers.CleanupDelay = 1500 * time.Millisecond
	cfg.Passcode.MaxAttempts = 3
	cfg.Logging.Level = "debug"
	cfg.Notifications.ShowLockout = false

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file was not created: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *loaded, *cfg)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.conf"))
	if err != nil {
		t.Fatalf("Load should not fail for a missing file: %v", err)
	}
	if *cfg != *New() {
		t.Error("expected defaults for a missing file")
	}
}

func TestLoad_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	content := "[transfers]\ncleanup_delay = 10s\n\n[passcode]\nmax_attempts = not-a-number\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transfers.CleanupDelay != 10*time.Second {
		t.Errorf("expected cleanup_delay 10s, got %v", cfg.Transfers.CleanupDelay)
	}
	if cfg.Passcode.MaxAttempts != 5 {
		t.Errorf("expected unparsable max_attempts to fall back to 5, got %d", cfg.Passcode.MaxAttempts)
	}
	if cfg.Bridge.CallTimeout != 30*time.Second {
		t.Errorf("expected untouched sections to keep defaults, got %v", cfg.Bridge.CallTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	cfg := New()
	cfg.Logging.Level = "warn"
	cfg.Passcode.MaxAttempts = 4
	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TELESTORE_LOG_LEVEL", "debug")
	t.Setenv("TELESTORE_CALL_TIMEOUT", "2s")
	t.Setenv("TELESTORE_MOCKS", "false")
	t.Setenv("TELESTORE_SOCKET_PATH", "/tmp/env.sock")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("expected env level debug, got %s", loaded.Logging.Level)
	}
	if loaded.Bridge.CallTimeout != 2*time.Second {
		t.Errorf("expected env call timeout 2s, got %v", loaded.Bridge.CallTimeout)
	}
	if loaded.Bridge.Mocks {
		t.Error("expected env to disable mocks")
	}
	if loaded.Bridge.SocketPath != "/tmp/env.sock" {
		t.Errorf("expected env socket path, got %s", loaded.Bridge.SocketPath)
	}
	if loaded.Passcode.MaxAttempts != 4 {
		t.Errorf("expected file value 4 to survive without env override, got %d", loaded.Passcode.MaxAttempts)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("TELESTORE_MAX_ATTEMPTS", "many")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.conf")); err == nil {
		t.Error("expected an error for an unparsable env override")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults", func(*Config) {}, nil},
		{"zero cleanup delay", func(c *Config) { c.Transfers.CleanupDelay = 0 }, nil},
		{"zero call timeout", func(c *Config) { c.Bridge.CallTimeout = 0 }, ErrInvalidCallTimeout},
		{"negative cleanup delay", func(c *Config) { c.Transfers.CleanupDelay = -time.Second }, ErrInvalidCleanupDelay},
		{"zero attempts", func(c *Config) { c.Passcode.MaxAttempts = 0 }, ErrInvalidMaxAttempts},
		{"too many attempts", func(c *Config) { c.Passcode.MaxAttempts = 101 }, ErrInvalidMaxAttempts},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }, ErrInvalidLogLevel},
		{"empty level", func(c *Config) { c.Logging.Level = "" }, ErrInvalidLogLevel},
		{"upper case level", func(c *Config) { c.Logging.Level = "DEBUG" }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	if filepath.Base(path) != FileName {
		t.Errorf("expected file name %s, got %s", FileName, path)
	}
	if filepath.Dir(LogDirectory()) != ConfigDirectory() {
		t.Errorf("log directory %s not under %s", LogDirectory(), ConfigDirectory())
	}
}
