// Package config defines the top-level configuration for the voidbot trading
// agent and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/voidlabs/voidbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VOIDBOT_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Verifier   VerifierConfig   `toml:"verifier"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Strategy   StrategyConfig   `toml:"strategy"`
	Executor   ExecutorConfig   `toml:"executor"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	Crypto     CryptoConfig     `toml:"crypto"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints and chain parameters.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host"`
	GammaHost     string `toml:"gamma_host"`
	WsHost        string `toml:"ws_host"`
	ChainID       int    `toml:"chain_id"`
	SignatureType int    `toml:"signature_type"`
}

// VerifierConfig holds the AI verification oracle parameters. The API is
// OpenAI-compatible chat completions; Groq is the default host.
type VerifierConfig struct {
	BaseURL     string   `toml:"base_url"`
	APIKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	Timeout     duration `toml:"timeout"`
	Temperature float64  `toml:"temperature"`
	// RateLimitPerMin throttles oracle calls across all agents.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// StrategyConfig holds the default oracle-latency strategy parameters.
// Per-agent overrides stored with the agent take precedence.
type StrategyConfig struct {
	Name     string                `toml:"name"`
	Defaults domain.StrategyParams `toml:"defaults"`
	// MarketCacheTTL bounds how long a fetched snapshot may be reused.
	MarketCacheTTL duration `toml:"market_cache_ttl"`
}

// ExecutorConfig holds order execution retry parameters.
type ExecutorConfig struct {
	MaxRetries     int      `toml:"max_retries"`
	BaseBackoff    duration `toml:"base_backoff"`
	TransientDelay duration `toml:"transient_delay"`
	SubmitTimeout  duration `toml:"submit_timeout"`
}

// ArchiveConfig holds terminal-record archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	BatchSize     int      `toml:"batch_size"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// CryptoConfig holds key-encryption parameters.
type CryptoConfig struct {
	// MasterPassword unlocks stored account private keys.
	MasterPassword string `toml:"master_password"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-subscriptions-clob.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
		},
		Verifier: VerifierConfig{
			BaseURL:         "https://api.groq.com/openai/v1",
			Model:           "llama-3.3-70b-versatile",
			Timeout:         duration{15 * time.Second},
			Temperature:     0.1,
			RateLimitPerMin: 30,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "voidbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "voidbot-archive",
			ForcePathStyle: true,
		},
		Strategy: StrategyConfig{
			Name: "oracle_latency",
			Defaults: domain.StrategyParams{
				MinProfitMargin:           0.03,
				MinDiscount:               0.01,
				MaxPriceThreshold:         0.97,
				MinHoursSinceEnd:          1.0,
				MaxHoursSinceEnd:          72.0,
				MinLiquidityUSD:           1000.0,
				MinVolume24hUSD:           5000.0,
				AIConfidenceThreshold:     0.7,
				MaxPositionSizeUSD:        100.0,
				MaxPositions:              10,
				MaxSlippage:               0.02,
				SignalExpirySeconds:       300,
				CooldownAfterTradeSeconds: 60,
				ScanIntervalSeconds:       300,
				MarketBatchSize:           100,
			},
			MarketCacheTTL: duration{2 * time.Minute},
		},
		Executor: ExecutorConfig{
			MaxRetries:     3,
			BaseBackoff:    duration{time.Second},
			TransientDelay: duration{500 * time.Millisecond},
			SubmitTimeout:  duration{30 * time.Second},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{6 * time.Hour},
			BatchSize:     500,
		},
		Notify: NotifyConfig{
			Events: []string{"signal.verified", "order.submitted", "order.failed", "agent.error"},
		},
		Mode:     "agent",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"agent":   true,
	"monitor": true,
	"migrate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: agent, monitor, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType != 1 && c.Polymarket.SignatureType != 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 1 (EOA) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	// Verifier credentials are required in agent mode.
	if strings.ToLower(c.Mode) == "agent" {
		if c.Verifier.APIKey == "" {
			errs = append(errs, "verifier: api_key is required for agent mode")
		}
		if c.Crypto.MasterPassword == "" {
			errs = append(errs, "crypto: master_password is required for agent mode")
		}
	}
	if c.Verifier.BaseURL == "" {
		errs = append(errs, "verifier: base_url must not be empty")
	}
	if c.Verifier.Model == "" {
		errs = append(errs, "verifier: model must not be empty")
	}
	if c.Verifier.Timeout.Duration <= 0 {
		errs = append(errs, "verifier: timeout must be > 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 settings are only checked when archival is on.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
	}

	// Strategy defaults
	errs = append(errs, validateStrategyParams(c.Strategy.Defaults)...)

	// Executor
	if c.Executor.MaxRetries < 0 {
		errs = append(errs, "executor: max_retries must be >= 0")
	}
	if c.Executor.BaseBackoff.Duration <= 0 {
		errs = append(errs, "executor: base_backoff must be > 0")
	}
	if c.Executor.SubmitTimeout.Duration <= 0 {
		errs = append(errs, "executor: submit_timeout must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// validateStrategyParams checks the oracle-latency parameter invariants shared
// by config defaults and per-agent overrides.
func validateStrategyParams(p domain.StrategyParams) []string {
	var errs []string
	if p.MinProfitMargin <= 0 {
		errs = append(errs, "strategy: min_profit_margin must be > 0")
	}
	if p.MinDiscount <= 0 || p.MinDiscount >= 1 {
		errs = append(errs, "strategy: min_discount must be in (0,1)")
	}
	if p.MaxPriceThreshold <= 0 || p.MaxPriceThreshold > 1 {
		errs = append(errs, "strategy: max_price_threshold must be in (0,1]")
	}
	if p.MinVolume24hUSD < 0 {
		errs = append(errs, "strategy: min_volume_24h_usd must be >= 0")
	}
	if p.SignalExpirySeconds < 0 {
		errs = append(errs, "strategy: signal_expiry_seconds must be >= 0")
	}
	if p.MinHoursSinceEnd < 0 {
		errs = append(errs, "strategy: min_hours_since_end must be >= 0")
	}
	if p.MaxHoursSinceEnd < p.MinHoursSinceEnd {
		errs = append(errs, "strategy: max_hours_since_end must be >= min_hours_since_end")
	}
	if p.AIConfidenceThreshold < 0 || p.AIConfidenceThreshold > 1 {
		errs = append(errs, "strategy: ai_confidence_threshold must be in [0,1]")
	}
	if p.MaxPositionSizeUSD <= 0 {
		errs = append(errs, "strategy: max_position_size_usd must be > 0")
	}
	if p.MaxPositions < 1 {
		errs = append(errs, "strategy: max_positions must be >= 1")
	}
	if p.MaxSlippage < 0 || p.MaxSlippage >= 1 {
		errs = append(errs, "strategy: max_slippage must be in [0,1)")
	}
	if p.ScanIntervalSeconds < 1 {
		errs = append(errs, "strategy: scan_interval_seconds must be >= 1")
	}
	if p.MarketBatchSize < 1 {
		errs = append(errs, "strategy: market_batch_size must be >= 1")
	}
	return errs
}

// MergeParams fills the zero-valued fields of override from defaults.
// Agents store only the tunables an operator changed.
func MergeParams(defaults, override domain.StrategyParams) domain.StrategyParams {
	out := override
	if out.MinProfitMargin == 0 {
		out.MinProfitMargin = defaults.MinProfitMargin
	}
	if out.MinDiscount == 0 {
		out.MinDiscount = defaults.MinDiscount
	}
	if out.MaxPriceThreshold == 0 {
		out.MaxPriceThreshold = defaults.MaxPriceThreshold
	}
	if out.MinHoursSinceEnd == 0 {
		out.MinHoursSinceEnd = defaults.MinHoursSinceEnd
	}
	if out.MaxHoursSinceEnd == 0 {
		out.MaxHoursSinceEnd = defaults.MaxHoursSinceEnd
	}
	if out.MinLiquidityUSD == 0 {
		out.MinLiquidityUSD = defaults.MinLiquidityUSD
	}
	if out.MinVolume24hUSD == 0 {
		out.MinVolume24hUSD = defaults.MinVolume24hUSD
	}
	if out.AIConfidenceThreshold == 0 {
		out.AIConfidenceThreshold = defaults.AIConfidenceThreshold
	}
	if out.MaxPositionSizeUSD == 0 {
		out.MaxPositionSizeUSD = defaults.MaxPositionSizeUSD
	}
	if out.MaxPositions == 0 {
		out.MaxPositions = defaults.MaxPositions
	}
	if out.MaxSlippage == 0 {
		out.MaxSlippage = defaults.MaxSlippage
	}
	if out.SignalExpirySeconds == 0 {
		out.SignalExpirySeconds = defaults.SignalExpirySeconds
	}
	if out.CooldownAfterTradeSeconds == 0 {
		out.CooldownAfterTradeSeconds = defaults.CooldownAfterTradeSeconds
	}
	if out.ScanIntervalSeconds == 0 {
		out.ScanIntervalSeconds = defaults.ScanIntervalSeconds
	}
	if out.MarketBatchSize == 0 {
		out.MarketBatchSize = defaults.MarketBatchSize
	}
	return out
}

// ValidateParams exposes the strategy invariant checks for per-agent
// overrides loaded from the database.
func ValidateParams(p domain.StrategyParams) error {
	if errs := validateStrategyParams(p); len(errs) > 0 {
		return fmt.Errorf("strategy params invalid:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
