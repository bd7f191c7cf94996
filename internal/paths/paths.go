// Package paths resolves the configuration and data directories of bigcsv.
// Each is chosen by precedence: command-line flag, then environment variable,
// then the platform default.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// appDir is the directory name used under the platform base directories.
const appDir = "bigcsv"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "BIGCSV_CONFIG_DIR"
	EnvDataDir   = "BIGCSV_DATA_DIR"
)

// ConfigFile is the configuration file name inside the config directory.
const ConfigFile = "config.yaml"

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/bigcsv (fallback ~/.config/bigcsv)
// macOS:   ~/Library/Application Support/bigcsv
// Windows: %APPDATA%/bigcsv
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir), nil
}

// DefaultDataDir returns the platform-specific default data directory, where
// the run ledger is kept.
//
// Linux:   $XDG_DATA_HOME/bigcsv (fallback ~/.local/share/bigcsv)
// macOS:   ~/Library/Application Support/bigcsv
// Windows: %APPDATA%/bigcsv
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir), nil
}

func xdgDir(env, homeRel string) (string, error) {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, homeRel, appDir), nil
}

// ResolveConfigDir returns the configuration directory: flag, then
// BIGCSV_CONFIG_DIR, then DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	return resolve(flag, "", EnvConfigDir, DefaultConfigDir)
}

// ResolveDataDir returns the data directory: flag, then the data_dir value
// from config.yaml, then BIGCSV_DATA_DIR, then DefaultDataDir().
func ResolveDataDir(flag, configValue string) (string, error) {
	return resolve(flag, configValue, EnvDataDir, DefaultDataDir)
}

func resolve(flag, configValue, env string, fallback func() (string, error)) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if v := os.Getenv(env); v != "" {
		return filepath.Abs(v)
	}
	return fallback()
}
