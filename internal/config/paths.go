package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "onedrive-proxy"

// File names inside the config and data directories.
const (
	configFileName = "config.toml"
	sqliteFileName = "drives.db"
	boltFileName   = "drives.bolt"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/onedrive-proxy).
// On macOS, uses ~/Library/Application Support/onedrive-proxy per Apple guidelines.
// Other platforms fall back to ~/.config/onedrive-proxy.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".config", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for the drive
// record database.
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/onedrive-proxy).
// On macOS, config and data share one directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".local", "share", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// DefaultConfigPath returns the full path to the default config file.
// This is used as the fallback when neither ONEDRIVE_PROXY_CONFIG nor
// --config is specified.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// StorePath returns the database file for the configured embedded backend,
// defaulting to a file in DefaultDataDir.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}

	name := sqliteFileName
	if c.Store.Backend == "bolt" {
		name = boltFileName
	}

	return filepath.Join(DefaultDataDir(), name)
}
