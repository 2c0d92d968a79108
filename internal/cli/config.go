package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/medtrack/internal/assetcache"
	"github.com/mesh-intelligence/medtrack/internal/notify"
	"github.com/mesh-intelligence/medtrack/internal/sheets"
	"github.com/mesh-intelligence/medtrack/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "MEDTRACK"
)

// Config keys.
const (
	cfgKeyBackend          = "backend"
	cfgKeyDataDir          = "data_dir"
	cfgKeyQuotaBytes       = "quota_bytes"
	cfgKeyCacheAppName     = "cache.app_name"
	cfgKeyCacheVersion     = "cache.version"
	cfgKeyCacheOrigin      = "cache.origin"
	cfgKeyCacheDir         = "cache.dir"
	cfgKeyCacheStorage     = "cache.storage"
	cfgKeyCacheSkipWaiting = "cache.skip_waiting"
	cfgKeyCacheClaim       = "cache.clients_claim"
	cfgKeyNotifyCommand    = "notify.command"
	cfgKeySheetsURL        = "sheets.url"
	cfgKeySheetsTimeout    = "sheets.timeout"
	cfgKeySheetsRetries    = "sheets.max_retries"
)

// Cache storage kinds.
const (
	cacheStorageBadger = "badger"
	cacheStorageMemory = "memory"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# medtrack configuration

# Record store backend: json, sqlite, or memory
backend: json

# Data directory (optional; overridable by --data-dir flag)
# data_dir:

# Cap on bytes kept by the record store; 0 means no cap. A store already
# over the cap opens in memory with a warning.
quota_bytes: 0

# Offline asset cache used by "medtrack serve"
cache:
  app_name: medicine-health-tracker
  version: 1
  # origin: https://tracker.example.com
  storage: badger
  # dir:
  skip_waiting: false
  clients_claim: false

notify:
  command: notify-send

# Spreadsheet web app for "medtrack sync"
sheets:
  # url: https://script.google.com/macros/s/.../exec
  timeout: 30s
  max_retries: 3
`

// loadConfig reads config.yaml from configDir using Viper. It creates the
// config directory and a default config.yaml on first run. Environment
// variables prefixed MEDTRACK_ override file values.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendJSON)
	v.SetDefault(cfgKeyQuotaBytes, 0)
	v.SetDefault(cfgKeyCacheAppName, assetcache.DefaultAppName)
	v.SetDefault(cfgKeyCacheVersion, 1)
	v.SetDefault(cfgKeyCacheStorage, cacheStorageBadger)
	v.SetDefault(cfgKeyNotifyCommand, notify.DefaultCommand)
	v.SetDefault(cfgKeySheetsTimeout, sheets.DefaultTimeout)
	v.SetDefault(cfgKeySheetsRetries, sheets.DefaultMaxRetries)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does
// not exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// sheetsConfig reads the sync adapter settings.
func sheetsConfig(v *viper.Viper) sheets.Config {
	return sheets.Config{
		URL:        v.GetString(cfgKeySheetsURL),
		Timeout:    v.GetDuration(cfgKeySheetsTimeout),
		MaxRetries: v.GetInt(cfgKeySheetsRetries),
		RetryDelay: sheets.DefaultRetryDelay,
	}
}

// cacheTimeout bounds install fetches when serving.
const cacheTimeout = 30 * time.Second
