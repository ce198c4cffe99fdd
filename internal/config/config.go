// Package config provides configuration management for Telestore.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"gopkg.in/ini.v1"

	"github.com/telestore/telestore/internal/constants"
)

// EnvPrefix prefixes every environment override, e.g. TELESTORE_LOG_LEVEL.
const EnvPrefix = "TELESTORE"

// Config is the client configuration.
//
// INI format:
//
//	[bridge]
//	socket_path = /run/user/1000/telestore/bridge.sock
//	call_timeout = 30s
//	mocks = true
//	forward_logs = true
//
//	[transfers]
//	cleanup_delay = 3s
//
//	[passcode]
//	max_attempts = 5
//	warn_weak = true
//
//	[logging]
//	level = info
//
//	[notifications]
//	enabled = true
//	show_transfer_complete = true
//	show_transfer_failed = true
//	show_lockout = true
type Config struct {
	Bridge        BridgeConfig
	Transfers     TransferConfig
	Passcode      PasscodeConfig
	Logging       LoggingConfig
	Notifications NotificationConfig
}

// BridgeConfig configures the connection to the backend.
type BridgeConfig struct {
	// SocketPath is the backend's socket. Empty means the platform default.
	SocketPath string

	// CallTimeout bounds each bridge call. Default: 30s
	CallTimeout time.Duration

	// Mocks serves canned responses for a few operations while no backend
	// is attached. Default: true
	Mocks bool

	// ForwardLogs sends bridge failures to the backend's log. Default: true
	ForwardLogs bool
}

// TransferConfig configures the transfer registry.
type TransferConfig struct {
	// CleanupDelay is how long a completed transfer stays listed. Default: 3s
	CleanupDelay time.Duration
}

// PasscodeConfig configures the lockout machine.
type PasscodeConfig struct {
	// MaxAttempts is the attempt budget restored after success or lockout
	// expiry. It should match the backend. Default: 5
	MaxAttempts int

	// WarnWeak logs a warning when a new passcode is easy to guess.
	WarnWeak bool
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string
}

// NotificationConfig contains settings for desktop notifications.
type NotificationConfig struct {
	Enabled              bool
	ShowTransferComplete bool
	ShowTransferFailed   bool
	ShowLockout          bool
}

// Validation errors
var (
	ErrInvalidCallTimeout  = errors.New("call_timeout must be positive")
	ErrInvalidCleanupDelay = errors.New("cleanup_delay must not be negative")
	ErrInvalidMaxAttempts  = errors.New("max_attempts must be between 1 and 100")
	ErrInvalidLogLevel     = errors.New("level must be one of trace, debug, info, warn, error")
)

// New creates a Config with default values.
func New() *Config {
	return &Config{
		Bridge: BridgeConfig{
			CallTimeout: constants.DefaultCallTimeout,
			Mocks:       true,
			ForwardLogs: true,
		},
		Transfers: TransferConfig{
			CleanupDelay: constants.TransferCleanupDelay,
		},
		Passcode: PasscodeConfig{
			MaxAttempts: constants.DefaultMaxPasscodeAttempts,
			WarnWeak:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Notifications: NotificationConfig{
			Enabled:              true,
			ShowTransferComplete: true,
			ShowTransferFailed:   true,
			ShowLockout:          true,
		},
	}
}

// Load reads the INI file at path and applies environment overrides. A
// missing file yields defaults. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	cfg := New()
	if path == "" {
		path = DefaultPath()
	}

	if _, err := os.Stat(path); err == nil {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) loadFile(path string) error {
	iniFile, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	bridgeSection := iniFile.Section("bridge")
	cfg.Bridge.SocketPath = bridgeSection.Key("socket_path").MustString(cfg.Bridge.SocketPath)
	cfg.Bridge.CallTimeout = bridgeSection.Key("call_timeout").MustDuration(cfg.Bridge.CallTimeout)
	cfg.Bridge.Mocks = bridgeSection.Key("mocks").MustBool(cfg.Bridge.Mocks)
	cfg.Bridge.ForwardLogs = bridgeSection.Key("forward_logs").MustBool(cfg.Bridge.ForwardLogs)

	transferSection := iniFile.Section("transfers")
	cfg.Transfers.CleanupDelay = transferSection.Key("cleanup_delay").MustDuration(cfg.Transfers.CleanupDelay)

	passcodeSection := iniFile.Section("passcode")
	cfg.Passcode.MaxAttempts = passcodeSection.Key("max_attempts").MustInt(cfg.Passcode.MaxAttempts)
	cfg.Passcode.WarnWeak = passcodeSection.Key("warn_weak").MustBool(cfg.Passcode.WarnWeak)

	cfg.Logging.Level = iniFile.Section("logging").Key("level").MustString(cfg.Logging.Level)

	notifySection := iniFile.Section("notifications")
	cfg.Notifications.Enabled = notifySection.Key("enabled").MustBool(cfg.Notifications.Enabled)
	cfg.Notifications.ShowTransferComplete = notifySection.Key("show_transfer_complete").MustBool(cfg.Notifications.ShowTransferComplete)
	cfg.Notifications.ShowTransferFailed = notifySection.Key("show_transfer_failed").MustBool(cfg.Notifications.ShowTransferFailed)
	cfg.Notifications.ShowLockout = notifySection.Key("show_lockout").MustBool(cfg.Notifications.ShowLockout)

	return nil
}

// envOverrides lists the settings that can be set from the environment.
// Fields are pre-filled from the config so unset variables keep their value.
type envOverrides struct {
	SocketPath    string        `split_words:"true"`
	CallTimeout   time.Duration `split_words:"true"`
	Mocks         bool
	ForwardLogs   bool          `split_words:"true"`
	CleanupDelay  time.Duration `split_words:"true"`
	MaxAttempts   int           `split_words:"true"`
	LogLevel      string        `split_words:"true"`
	Notifications bool
}

// ApplyEnv overrides settings from TELESTORE_* environment variables.
func (cfg *Config) ApplyEnv() error {
	env := envOverrides{
		SocketPath:    cfg.Bridge.SocketPath,
		CallTimeout:   cfg.Bridge.CallTimeout,
		Mocks:         cfg.Bridge.Mocks,
		ForwardLogs:   cfg.Bridge.ForwardLogs,
		CleanupDelay:  cfg.Transfers.CleanupDelay,
		MaxAttempts:   cfg.Passcode.MaxAttempts,
		LogLevel:      cfg.Logging.Level,
		Notifications: cfg.Notifications.Enabled,
	}
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("error processing env: %w", err)
	}

	cfg.Bridge.SocketPath = env.SocketPath
	cfg.Bridge.CallTimeout = env.CallTimeout
	cfg.Bridge.Mocks = env.Mocks
	cfg.Bridge.ForwardLogs = env.ForwardLogs
	cfg.Transfers.CleanupDelay = env.CleanupDelay
	cfg.Passcode.MaxAttempts = env.MaxAttempts
	cfg.Logging.Level = env.LogLevel
	cfg.Notifications.Enabled = env.Notifications
	return nil
}

// Save writes cfg to path as INI. Creates parent directories if they don't
// exist. The file is replaced atomically.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	bridgeSection, err := iniFile.NewSection("bridge")
	if err != nil {
		return fmt.Errorf("failed to create bridge section: %w", err)
	}
	bridgeSection.Key("socket_path").SetValue(cfg.Bridge.SocketPath)
	bridgeSection.Key("call_timeout").SetValue(cfg.Bridge.CallTimeout.String())
	bridgeSection.Key("mocks").SetValue(fmt.Sprintf("%t", cfg.Bridge.Mocks))
	bridgeSection.Key("forward_logs").SetValue(fmt.Sprintf("%t", cfg.Bridge.ForwardLogs))

	transferSection, err := iniFile.NewSection("transfers")
	if err != nil {
		return fmt.Errorf("failed to create transfers section: %w", err)
	}
	transferSection.Key("cleanup_delay").SetValue(cfg.Transfers.CleanupDelay.String())

	passcodeSection, err := iniFile.NewSection("passcode")
	if err != nil {
		return fmt.Errorf("failed to create passcode section: %w", err)
	}
	passcodeSection.Key("max_attempts").SetValue(fmt.Sprintf("%d", cfg.Passcode.MaxAttempts))
	passcodeSection.Key("warn_weak").SetValue(fmt.Sprintf("%t", cfg.Passcode.WarnWeak))

	loggingSection, err := iniFile.NewSection("logging")
	if err != nil {
		return fmt.Errorf("failed to create logging section: %w", err)
	}
	loggingSection.Key("level").SetValue(cfg.Logging.Level)

	notifySection, err := iniFile.NewSection("notifications")
	if err != nil {
		return fmt.Errorf("failed to create notifications section: %w", err)
	}
	notifySection.Key("enabled").SetValue(fmt.Sprintf("%t", cfg.Notifications.Enabled))
	notifySection.Key("show_transfer_complete").SetValue(fmt.Sprintf("%t", cfg.Notifications.ShowTransferComplete))
	notifySection.Key("show_transfer_failed").SetValue(fmt.Sprintf("%t", cfg.Notifications.ShowTransferFailed))
	notifySection.Key("show_lockout").SetValue(fmt.Sprintf("%t", cfg.Notifications.ShowLockout))

	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration.
func (cfg *Config) Validate() error {
	if cfg.Bridge.CallTimeout <= 0 {
		return ErrInvalidCallTimeout
	}
	if cfg.Transfers.CleanupDelay < 0 {
		return ErrInvalidCleanupDelay
	}
	if cfg.Passcode.MaxAttempts < 1 || cfg.Passcode.MaxAttempts > 100 {
		return ErrInvalidMaxAttempts
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Logging.Level))); err != nil || strings.TrimSpace(cfg.Logging.Level) == "" {
		return ErrInvalidLogLevel
	}
	return nil
}
