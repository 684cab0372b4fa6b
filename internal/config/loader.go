package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VOIDBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VOIDBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "VOIDBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "VOIDBOT_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "VOIDBOT_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "VOIDBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "VOIDBOT_POLYMARKET_SIGNATURE_TYPE")

	// ── Verifier ──
	setStr(&cfg.Verifier.BaseURL, "VOIDBOT_VERIFIER_BASE_URL")
	setStr(&cfg.Verifier.APIKey, "VOIDBOT_VERIFIER_API_KEY")
	setStr(&cfg.Verifier.APIKey, "GROQ_API_KEY") // compatibility alias
	setStr(&cfg.Verifier.Model, "VOIDBOT_VERIFIER_MODEL")
	setDuration(&cfg.Verifier.Timeout, "VOIDBOT_VERIFIER_TIMEOUT")
	setFloat64(&cfg.Verifier.Temperature, "VOIDBOT_VERIFIER_TEMPERATURE")
	setInt(&cfg.Verifier.RateLimitPerMin, "VOIDBOT_VERIFIER_RATE_LIMIT_PER_MIN")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "VOIDBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "VOIDBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VOIDBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VOIDBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VOIDBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VOIDBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VOIDBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VOIDBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VOIDBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "VOIDBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "VOIDBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VOIDBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VOIDBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VOIDBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VOIDBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VOIDBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "VOIDBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VOIDBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "VOIDBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "VOIDBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VOIDBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "VOIDBOT_S3_FORCE_PATH_STYLE")

	// ── Strategy defaults ──
	setStr(&cfg.Strategy.Name, "VOIDBOT_STRATEGY_NAME")
	setFloat64(&cfg.Strategy.Defaults.MinProfitMargin, "VOIDBOT_STRATEGY_MIN_PROFIT_MARGIN")
	setFloat64(&cfg.Strategy.Defaults.MinDiscount, "VOIDBOT_STRATEGY_MIN_DISCOUNT")
	setFloat64(&cfg.Strategy.Defaults.MaxPriceThreshold, "VOIDBOT_STRATEGY_MAX_PRICE_THRESHOLD")
	setFloat64(&cfg.Strategy.Defaults.MinHoursSinceEnd, "VOIDBOT_STRATEGY_MIN_HOURS_SINCE_END")
	setFloat64(&cfg.Strategy.Defaults.MaxHoursSinceEnd, "VOIDBOT_STRATEGY_MAX_HOURS_SINCE_END")
	setFloat64(&cfg.Strategy.Defaults.MinLiquidityUSD, "VOIDBOT_STRATEGY_MIN_LIQUIDITY_USD")
	setFloat64(&cfg.Strategy.Defaults.MinVolume24hUSD, "VOIDBOT_STRATEGY_MIN_VOLUME_24H_USD")
	setFloat64(&cfg.Strategy.Defaults.AIConfidenceThreshold, "VOIDBOT_STRATEGY_AI_CONFIDENCE_THRESHOLD")
	setFloat64(&cfg.Strategy.Defaults.MaxPositionSizeUSD, "VOIDBOT_STRATEGY_MAX_POSITION_SIZE_USD")
	setInt(&cfg.Strategy.Defaults.MaxPositions, "VOIDBOT_STRATEGY_MAX_POSITIONS")
	setFloat64(&cfg.Strategy.Defaults.MaxSlippage, "VOIDBOT_STRATEGY_MAX_SLIPPAGE")
	setInt(&cfg.Strategy.Defaults.SignalExpirySeconds, "VOIDBOT_STRATEGY_SIGNAL_EXPIRY_SECONDS")
	setInt(&cfg.Strategy.Defaults.CooldownAfterTradeSeconds, "VOIDBOT_STRATEGY_COOLDOWN_AFTER_TRADE_SECONDS")
	setInt(&cfg.Strategy.Defaults.ScanIntervalSeconds, "VOIDBOT_STRATEGY_SCAN_INTERVAL_SECONDS")
	setInt(&cfg.Strategy.Defaults.MarketBatchSize, "VOIDBOT_STRATEGY_MARKET_BATCH_SIZE")
	setDuration(&cfg.Strategy.MarketCacheTTL, "VOIDBOT_STRATEGY_MARKET_CACHE_TTL")

	// ── Executor ──
	setInt(&cfg.Executor.MaxRetries, "VOIDBOT_EXECUTOR_MAX_RETRIES")
	setDuration(&cfg.Executor.BaseBackoff, "VOIDBOT_EXECUTOR_BASE_BACKOFF")
	setDuration(&cfg.Executor.TransientDelay, "VOIDBOT_EXECUTOR_TRANSIENT_DELAY")
	setDuration(&cfg.Executor.SubmitTimeout, "VOIDBOT_EXECUTOR_SUBMIT_TIMEOUT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "VOIDBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "VOIDBOT_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "VOIDBOT_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.BatchSize, "VOIDBOT_ARCHIVE_BATCH_SIZE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VOIDBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VOIDBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VOIDBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "VOIDBOT_NOTIFY_EVENTS")

	// ── Crypto ──
	setStr(&cfg.Crypto.MasterPassword, "VOIDBOT_CRYPTO_MASTER_PASSWORD")

	// ── Top-level ──
	setStr(&cfg.Mode, "VOIDBOT_MODE")
	setStr(&cfg.LogLevel, "VOIDBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
