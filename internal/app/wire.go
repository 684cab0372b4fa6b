package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voidlabs/voidbot/internal/agent"
	s3blob "github.com/voidlabs/voidbot/internal/blob/s3"
	"github.com/voidlabs/voidbot/internal/cache/redis"
	"github.com/voidlabs/voidbot/internal/config"
	"github.com/voidlabs/voidbot/internal/crypto"
	"github.com/voidlabs/voidbot/internal/domain"
	"github.com/voidlabs/voidbot/internal/executor"
	"github.com/voidlabs/voidbot/internal/notify"
	"github.com/voidlabs/voidbot/internal/platform/polymarket"
	"github.com/voidlabs/voidbot/internal/store/postgres"
	"github.com/voidlabs/voidbot/internal/strategy"
	"github.com/voidlabs/voidbot/internal/verify"
)

// Dependencies bundles everything the application modes need. Wire builds it
// and the returned cleanup function tears it down in reverse order.
type Dependencies struct {
	// Stores
	Agents    domain.AgentStore
	Accounts  domain.AccountStore
	Signals   domain.SignalStore
	Orders    domain.OrderStore
	Positions domain.PositionStore
	Processed domain.ProcessedMarketStore
	Tx        domain.Transactor
	PG        *postgres.Client

	// Redis-backed infrastructure
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Bus         domain.EventBus

	// Market data and execution
	Source     domain.MarketSource
	Transports *polymarket.Factory
	Oracle     strategy.VerificationOracle
	Engine     *executor.Engine
	Fills      *executor.FillHandler

	// Side services
	Archiver *s3blob.Archiver
	Notifier *notify.Notifier
	Relay    *notify.Relay
}

// needsRedis reports whether the mode uses cache, locks and the event bus.
func needsRedis(mode string) bool {
	return mode == "agent" || mode == "monitor"
}

// Wire constructs the concrete dependency graph for the configured mode.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// Postgres: every mode needs it.
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations || cfg.Mode == "migrate" {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.PG = pgClient
	deps.Agents = postgres.NewAgentStore(pgClient)
	deps.Accounts = postgres.NewAccountStore(pgClient)
	deps.Signals = postgres.NewSignalStore(pgClient)
	deps.Orders = postgres.NewOrderStore(pgClient)
	deps.Positions = postgres.NewPositionStore(pgClient)
	deps.Processed = postgres.NewProcessedMarketStore(pgClient)
	deps.Tx = pgClient

	if cfg.Mode == "migrate" {
		return deps, cleanup, nil
	}

	// Redis.
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient, cfg.Verifier.RateLimitPerMin, time.Minute)

		bus := redis.NewEventBus(redisClient)
		closers = append(closers, func() { _ = bus.Close() })
		deps.Bus = bus
	}

	// Market data with a circuit breaker in front of Gamma.
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	deps.Source = polymarket.NewBreakerSource(gamma, logger)

	// Verification oracle, throttled through the shared rate limiter.
	groq := verify.NewGroqOracle(cfg.Verifier, logger)
	deps.Oracle = groq
	if deps.RateLimiter != nil && cfg.Verifier.RateLimitPerMin > 0 {
		deps.Oracle = verify.NewLimited(groq, deps.RateLimiter)
	}

	// Execution.
	vault, err := crypto.NewKeyVault(cfg.Crypto.MasterPassword)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: key vault: %w", err)
	}
	deps.Transports = polymarket.NewFactory(cfg.Polymarket, deps.Accounts, vault, logger)

	policy := executor.Policy{
		MaxAttempts:    cfg.Executor.MaxRetries,
		BaseBackoff:    cfg.Executor.BaseBackoff.Duration,
		TransientDelay: cfg.Executor.TransientDelay.Duration,
	}
	if policy.MaxAttempts <= 0 {
		policy = executor.DefaultPolicy()
	}
	deps.Engine = executor.NewEngine(deps.Orders, deps.Transports, deps.Bus, policy, logger)
	deps.Fills = executor.NewFillHandler(deps.Orders, deps.Positions, deps.Tx, deps.Bus, logger)

	// Archival to object storage.
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         true,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.Signals,
			deps.Orders,
			s3blob.ArchiverConfig{
				RetentionDays: cfg.Archive.RetentionDays,
				Interval:      cfg.Archive.Interval.Duration,
				BatchSize:     cfg.Archive.BatchSize,
			},
			logger,
		)
	}

	// Notifications.
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 && deps.Bus != nil {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
		deps.Relay = notify.NewRelay(deps.Bus, deps.Notifier, logger)
	}

	return deps, cleanup, nil
}

// runnerFactory builds per-agent runners with merged strategy parameters.
func runnerFactory(cfg *config.Config, deps *Dependencies, logger *slog.Logger, detectOnly bool) agent.RunnerFactory {
	return func(a *domain.Agent) *agent.Runner {
		a.Config = config.MergeParams(cfg.Strategy.Defaults, a.Config)

		strat := strategy.NewOracleLatency(a.Config, deps.Oracle, logger)
		risk := strategy.NewRiskManager(a.Config, deps.Positions, logger)

		r := agent.NewRunner(a, agent.RunnerDeps{
			Strategy:  strat,
			Risk:      risk,
			Engine:    deps.Engine,
			Source:    deps.Source,
			Cache:     deps.MarketCache,
			CacheTTL:  cfg.Strategy.MarketCacheTTL.Duration,
			Agents:    deps.Agents,
			Signals:   deps.Signals,
			Processed: deps.Processed,
			Tx:        deps.Tx,
			Bus:       deps.Bus,
		}, logger)
		if detectOnly {
			r = r.DetectOnly()
		}
		return r
	}
}
