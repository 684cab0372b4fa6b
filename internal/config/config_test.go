package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlabs/voidbot/internal/domain"
)

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "monitor"
log_level = "debug"

[postgres]
database = "voidbot_test"

[verifier]
timeout = "5s"

[strategy.defaults]
max_positions = 3
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "voidbot_test", cfg.Postgres.Database)
	assert.Equal(t, 5*time.Second, cfg.Verifier.Timeout.Duration)
	assert.Equal(t, 3, cfg.Strategy.Defaults.MaxPositions)

	// Untouched fields keep their defaults.
	assert.Equal(t, "https://clob.polymarket.com", cfg.Polymarket.ClobHost)
	assert.Equal(t, 0.03, cfg.Strategy.Defaults.MinProfitMargin)
	assert.Equal(t, 137, cfg.Polymarket.ChainID)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOIDBOT_POSTGRES_DSN", "postgres://env-wins")
	t.Setenv("VOIDBOT_STRATEGY_MAX_POSITIONS", "7")
	t.Setenv("VOIDBOT_ARCHIVE_ENABLED", "true")
	t.Setenv("VOIDBOT_REDIS_DB", "not-a-number")
	t.Setenv("VOIDBOT_NOTIFY_EVENTS", "agent.error, order.failed")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "postgres://env-wins", cfg.Postgres.DSN)
	assert.Equal(t, 7, cfg.Strategy.Defaults.MaxPositions)
	assert.True(t, cfg.Archive.Enabled)
	// Malformed values are ignored, not fatal.
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, []string{"agent.error", "order.failed"}, cfg.Notify.Events)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Verifier.APIKey = "gsk_test"
		cfg.Crypto.MasterPassword = "hunter2"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults with secrets pass",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown mode",
			mutate:  func(c *Config) { c.Mode = "turbo" },
			wantErr: "unknown mode",
		},
		{
			name:    "agent mode requires verifier key",
			mutate:  func(c *Config) { c.Verifier.APIKey = "" },
			wantErr: "api_key is required",
		},
		{
			name:    "agent mode requires master password",
			mutate:  func(c *Config) { c.Crypto.MasterPassword = "" },
			wantErr: "master_password is required",
		},
		{
			name: "monitor mode needs no secrets",
			mutate: func(c *Config) {
				c.Mode = "monitor"
				c.Verifier.APIKey = ""
				c.Crypto.MasterPassword = ""
			},
		},
		{
			name:    "discount out of range",
			mutate:  func(c *Config) { c.Strategy.Defaults.MinDiscount = 1.2 },
			wantErr: "min_discount",
		},
		{
			name:    "bad signature type",
			mutate:  func(c *Config) { c.Polymarket.SignatureType = 9 },
			wantErr: "signature_type",
		},
		{
			name: "archive enabled needs bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = ""
			},
			wantErr: "bucket must not be empty",
		},
		{
			name:    "pool bounds",
			mutate:  func(c *Config) { c.Postgres.PoolMinConns = 99 },
			wantErr: "pool_min_conns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMergeParams(t *testing.T) {
	defaults := Defaults().Strategy.Defaults

	t.Run("zero override takes all defaults", func(t *testing.T) {
		got := MergeParams(defaults, domain.StrategyParams{})
		assert.Equal(t, defaults, got)
	})

	t.Run("set fields win, zero fields fall back", func(t *testing.T) {
		got := MergeParams(defaults, domain.StrategyParams{
			MaxPositionSizeUSD: 250,
			MaxPositions:       2,
		})
		assert.Equal(t, 250.0, got.MaxPositionSizeUSD)
		assert.Equal(t, 2, got.MaxPositions)
		assert.Equal(t, defaults.MinProfitMargin, got.MinProfitMargin)
		assert.Equal(t, defaults.MinDiscount, got.MinDiscount)
		assert.Equal(t, defaults.MinVolume24hUSD, got.MinVolume24hUSD)
		assert.Equal(t, defaults.SignalExpirySeconds, got.SignalExpirySeconds)
		assert.Equal(t, defaults.ScanIntervalSeconds, got.ScanIntervalSeconds)
	})
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Verifier.APIKey = "gsk_secret"
	cfg.Postgres.Password = "pgpass"
	cfg.Crypto.MasterPassword = "hunter2"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Verifier.APIKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Crypto.MasterPassword)
	// Empty secrets stay empty so the output is honest about what is unset.
	assert.Empty(t, red.Redis.Password)
	// Original is untouched.
	assert.Equal(t, "gsk_secret", cfg.Verifier.APIKey)
}
