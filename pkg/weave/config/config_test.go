package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway != DefaultGateway {
		t.Errorf("Gateway = %q, want %q", cfg.Gateway, DefaultGateway)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %s, want %s", cfg.Timeout, DefaultTimeout)
	}
	if cfg.Concurrency != DefaultConcurrency {
		t.Errorf("Concurrency = %d, want %d", cfg.Concurrency, DefaultConcurrency)
	}
	if cfg.Cache.Backend != "json" {
		t.Errorf("Cache.Backend = %q, want json", cfg.Cache.Backend)
	}
	if cfg.Upload.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Upload.MaxAttempts = %d, want %d", cfg.Upload.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Upload.BaseDelay != DefaultBaseDelay {
		t.Errorf("Upload.BaseDelay = %s, want %s", cfg.Upload.BaseDelay, DefaultBaseDelay)
	}
	if !cfg.Fee.Enabled || cfg.Fee.Rate != DefaultFeeRate || cfg.Fee.CommunityTx != DefaultCommunityTx {
		t.Errorf("Fee = %+v", cfg.Fee)
	}
	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want true")
	}
	wantHistory := filepath.Join(tempDir, ".config", "weave", ".history")
	if cfg.History.Path != wantHistory {
		t.Errorf("History.Path = %q, want %q", cfg.History.Path, wantHistory)
	}
	if cfg.Logging.Components["cache"] != "warn" {
		t.Errorf("Logging.Components[cache] = %q, want warn", cfg.Logging.Components["cache"])
	}
}

func TestLoad_FromFile(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, ".config", "weave")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	configContent := `
gateway: http://localhost:1984
timeout: 5s
concurrency: 2
wallet: ~/keys/wallet.json
exclude:
  - "*.map"
cache:
  backend: badger
upload:
  max_attempts: 3
  base_delay: 100ms
fee:
  enabled: false
`
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("HOME", tempDir)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Gateway != "http://localhost:1984" {
		t.Errorf("Gateway = %q", cfg.Gateway)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %s, want 5s", cfg.Timeout)
	}
	if cfg.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", cfg.Concurrency)
	}
	if cfg.Wallet != filepath.Join(tempDir, "keys", "wallet.json") {
		t.Errorf("Wallet = %q, want expanded path", cfg.Wallet)
	}
	if len(cfg.Exclude) != 1 || cfg.Exclude[0] != "*.map" {
		t.Errorf("Exclude = %v", cfg.Exclude)
	}
	if cfg.Cache.Backend != "badger" {
		t.Errorf("Cache.Backend = %q, want badger", cfg.Cache.Backend)
	}
	if cfg.Fee.Enabled {
		t.Error("Fee.Enabled = true, want false")
	}

	p := cfg.RetryPolicy()
	if p.MaxAttempts != 3 || p.BaseDelay != 100*time.Millisecond || p.MaxDelay != DefaultMaxDelay {
		t.Errorf("RetryPolicy() = %+v", p)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("WEAVE_GATEWAY", "http://127.0.0.1:1984")
	t.Setenv("WEAVE_CONCURRENCY", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway != "http://127.0.0.1:1984" {
		t.Errorf("Gateway = %q", cfg.Gateway)
	}
	if cfg.Concurrency != 9 {
		t.Errorf("Concurrency = %d, want 9", cfg.Concurrency)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	tempDir := t.TempDir()
	configDir := filepath.Join(tempDir, "weave")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte("gateway: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", tempDir)

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr string
	}{
		{"ftp gateway", "gateway", "ftp://example.com", "invalid gateway"},
		{"zero concurrency", "concurrency", 0, "concurrency"},
		{"unknown backend", "cache.backend", "redis", "cache backend"},
		{"zero attempts", "upload.max_attempts", 0, "max_attempts"},
		{"rate above one", "fee.rate", 1.5, "fee.rate"},
		{"zero timeout", "timeout", "0s", "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			v.Set(tt.key, tt.value)

			_, err := FromViper(v)
			if err == nil {
				t.Fatalf("FromViper() error = nil, want %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("FromViper() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tempDir)

	path, created, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if !created {
		t.Error("created = false on first write")
	}
	if path != filepath.Join(tempDir, "weave", "config.yaml") {
		t.Errorf("path = %q", path)
	}

	// The written file must load back to the defaults.
	v := viper.New()
	v.SetConfigFile(path)
	SetDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}
	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() error = %v", err)
	}
	if cfg.Upload.ChunkConcurrency != DefaultChunkConcurrency {
		t.Errorf("ChunkConcurrency = %d", cfg.Upload.ChunkConcurrency)
	}

	_, created, err = WriteDefault()
	if err != nil {
		t.Fatalf("second WriteDefault() error = %v", err)
	}
	if created {
		t.Error("created = true when file existed")
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/x")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x") {
		t.Errorf("ExpandPath(~/x) = %q", got)
	}
	if got, _ := ExpandPath("/abs"); got != "/abs" {
		t.Errorf("ExpandPath(/abs) = %q", got)
	}
}
