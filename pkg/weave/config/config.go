package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/weave/pkg/weave/retry"
)

// ConfigFileName is the base name of the config file.
const ConfigFileName = "config.yaml"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// CacheConfig selects the dedup cache backend.
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
}

// UploadConfig configures retries and chunk fan-out.
type UploadConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	ChunkConcurrency int           `mapstructure:"chunk_concurrency"`
}

// FeeConfig configures the platform fee transfer.
type FeeConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	CommunityTx string  `mapstructure:"community_tx"`
	Rate        float64 `mapstructure:"rate"`
}

// HistoryConfig configures the local deploy history.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Config represents the application configuration.
type Config struct {
	Gateway     string        `mapstructure:"gateway"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Concurrency int           `mapstructure:"concurrency"`
	Wallet      string        `mapstructure:"wallet"`
	Exclude     []string      `mapstructure:"exclude"`
	Cache       CacheConfig   `mapstructure:"cache"`
	Upload      UploadConfig  `mapstructure:"upload"`
	Fee         FeeConfig     `mapstructure:"fee"`
	History     HistoryConfig `mapstructure:"history"`
	Logging     LoggingConfig `mapstructure:"logging"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("gateway", DefaultGateway)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("wallet", "")
	v.SetDefault("exclude", []string{})

	v.SetDefault("cache.backend", DefaultCacheBackend)
	v.SetDefault("cache.dir", CacheDir())

	v.SetDefault("upload.max_attempts", DefaultMaxAttempts)
	v.SetDefault("upload.base_delay", DefaultBaseDelay)
	v.SetDefault("upload.max_delay", DefaultMaxDelay)
	v.SetDefault("upload.chunk_concurrency", DefaultChunkConcurrency)

	v.SetDefault("fee.enabled", true)
	v.SetDefault("fee.community_tx", DefaultCommunityTx)
	v.SetDefault("fee.rate", DefaultFeeRate)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", DefaultHistoryDir)
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"gateway": "info",
		"upload":  "info",
		"deploy":  "info",
		"cache":   "warn",
	})
}

// Configure points v at the config file (cfgFile when set, else the
// standard search path) and at WEAVE_ environment variables.
func Configure(v *viper.Viper, cfgFile string) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			v.AddConfigPath(filepath.Join(xdgConfigHome, "weave"))
		}
		if homeDir, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".config", "weave"))
		}
	}

	v.SetEnvPrefix("WEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// ReadIn reads the config file into v. A missing file is not an error.
func ReadIn(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/weave/config.yaml
//   - $HOME/.config/weave/config.yaml
//
// Environment variables are prefixed with WEAVE_ (e.g., WEAVE_GATEWAY).
func Load() (*Config, error) {
	v := viper.New()
	Configure(v, "")
	SetDefaults(v)
	if err := ReadIn(v); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var err error
	for _, p := range []*string{&cfg.Wallet, &cfg.Cache.Dir, &cfg.History.Path, &cfg.Logging.Path} {
		if *p, err = ExpandPath(*p); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid gateway %q: must be an http or https URL", c.Gateway)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	switch c.Cache.Backend {
	case "json", "badger":
	default:
		return fmt.Errorf("unknown cache backend %q (want json or badger)", c.Cache.Backend)
	}
	if c.Upload.MaxAttempts < 1 {
		return fmt.Errorf("upload.max_attempts must be at least 1, got %d", c.Upload.MaxAttempts)
	}
	if c.Fee.Rate < 0 || c.Fee.Rate > 1 {
		return fmt.Errorf("fee.rate must be between 0 and 1, got %g", c.Fee.Rate)
	}
	return nil
}

// RetryPolicy returns the upload retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Upload.MaxAttempts,
		BaseDelay:   c.Upload.BaseDelay,
		MaxDelay:    c.Upload.MaxDelay,
	}
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "weave"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "weave"), nil
}

// ConfigPath returns the path WriteDefault writes to.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// WriteDefault writes a default config file if none exists and returns
// its path. created is false when a file was already present.
func WriteDefault() (path string, created bool, err error) {
	path, err = ConfigPath()
	if err != nil {
		return "", false, err
	}

	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	} else if !os.IsNotExist(err) {
		return "", false, fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(defaultConfig()), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write default config: %w", err)
	}
	return path, true, nil
}

func defaultConfig() string {
	return fmt.Sprintf(`# Weave Configuration

# Gateway used for pricing, anchors, uploads and status lookups
gateway: %s

# Per-request timeout
timeout: %s

# Files prepared and uploaded at once
concurrency: %d

# JWK key file. Empty means use the wallet saved with "weave wallet save".
wallet: ""

# Glob patterns never deployed from a directory
exclude: []

# Dedup cache
cache:
  # json or badger
  backend: %s
  dir: %s

# Upload retries
upload:
  max_attempts: %d
  base_delay: %s
  max_delay: %s
  chunk_concurrency: %d

# Platform fee paid to a community token holder
fee:
  enabled: true
  community_tx: %s
  rate: %g

# Local deploy history
history:
  enabled: true
  path: %s
  retention_days: %d

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/weave/weave.log)
  path: ""
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    gateway: info
    upload: info
    deploy: info
    cache: warn
`, DefaultGateway, DefaultTimeout, DefaultConcurrency, DefaultCacheBackend, CacheDir(),
		DefaultMaxAttempts, DefaultBaseDelay, DefaultMaxDelay, DefaultChunkConcurrency,
		DefaultCommunityTx, DefaultFeeRate, DefaultHistoryDir, DefaultRetentionDays)
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/weave/ for the saved wallet.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "weave")
}

// StateDir returns $XDG_STATE_HOME/weave/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "weave")
}

// CacheDir returns $XDG_CACHE_HOME/weave/ for the dedup cache.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "weave")
}

// EnsureDirs creates the config, data, state and cache directories.
func EnsureDirs() error {
	configDir, err := ConfigDir()
	if err != nil {
		return err
	}
	for _, dir := range []string{configDir, DataDir(), StateDir(), CacheDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}
