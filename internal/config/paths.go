package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// FileName is the config file name inside ConfigDirectory.
const FileName = "telestore.conf"

// ConfigDirectory returns the per-user configuration directory.
//
// Locations:
//   - Windows: %APPDATA%\Telestore
//   - Unix: ~/.config/telestore
func ConfigDirectory() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "telestore")
			}
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		return filepath.Join(appData, "Telestore")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "telestore")
		}
		return filepath.Join(homeDir, ".config", "telestore")
	}
	return filepath.Join(configDir, "telestore")
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(ConfigDirectory(), FileName)
}

// LogDirectory returns the directory for log files written with --log-file.
func LogDirectory() string {
	return filepath.Join(ConfigDirectory(), "logs")
}

// EnsureLogDirectory creates the log directory with owner-only access.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0700)
}
