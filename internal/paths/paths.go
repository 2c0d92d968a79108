// Package paths resolves the configuration, data, and cache directories.
//
// Each directory follows the same precedence: command-line flag, then
// config.yaml where applicable, then a MEDTRACK_ environment variable, then
// the platform default.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppDirName is the directory name used under every platform root.
const AppDirName = "medtrack"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "MEDTRACK_CONFIG_DIR"
	EnvDataDir   = "MEDTRACK_DATA_DIR"
	EnvCacheDir  = "MEDTRACK_CACHE_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	userCacheDir  func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	userCacheDir:  os.UserCacheDir,
}

// xdgDir returns $env/medtrack, or ~/fallback/medtrack when env is unset.
func xdgDir(env string, fallback ...string) (string, error) {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, AppDirName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, fallback...), AppDirName)...), nil
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/medtrack (fallback ~/.config/medtrack)
// macOS:   ~/Library/Application Support/medtrack
// Windows: %APPDATA%/medtrack
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppDirName), nil
}

// DefaultDataDir returns the platform-specific default data directory.
//
// Linux:   $XDG_DATA_HOME/medtrack (fallback ~/.local/share/medtrack)
// macOS:   ~/Library/Application Support/medtrack
// Windows: %APPDATA%/medtrack
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
	// macOS and Windows: same as config dir.
	return DefaultConfigDir()
}

// DefaultCacheDir returns the platform cache directory for the offline
// asset cache.
func DefaultCacheDir() (string, error) {
	dir, err := platformDir.userCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppDirName, "assets"), nil
}

// firstAbs returns the first non-empty value made absolute, or "" when all
// are empty.
func firstAbs(values ...string) (string, error) {
	for _, v := range values {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	return "", nil
}

// ResolveConfigDir returns the configuration directory following the
// precedence chain: flag > MEDTRACK_CONFIG_DIR env > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	if dir, err := firstAbs(flag, os.Getenv(EnvConfigDir)); dir != "" || err != nil {
		return dir, err
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory following the precedence chain:
// flag > configYAMLValue > MEDTRACK_DATA_DIR env > DefaultDataDir().
func ResolveDataDir(flag, configYAMLValue string) (string, error) {
	if dir, err := firstAbs(flag, configYAMLValue, os.Getenv(EnvDataDir)); dir != "" || err != nil {
		return dir, err
	}
	return DefaultDataDir()
}

// ResolveCacheDir returns the asset cache directory following the
// precedence chain: configYAMLValue > MEDTRACK_CACHE_DIR env > DefaultCacheDir().
func ResolveCacheDir(configYAMLValue string) (string, error) {
	if dir, err := firstAbs(configYAMLValue, os.Getenv(EnvCacheDir)); dir != "" || err != nil {
		return dir, err
	}
	return DefaultCacheDir()
}
