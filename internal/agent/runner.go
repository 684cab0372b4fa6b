// Package agent runs the autonomous trading pipeline: scanning markets,
// detecting and verifying signals, sizing and executing orders.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/voidlabs/voidbot/internal/domain"
	"github.com/voidlabs/voidbot/internal/strategy"
)

// maxConsecutiveFailures is how many cycles may fail in a row before the
// runner gives up and the agent is marked errored.
const maxConsecutiveFailures = 3

// errorBackoff is how long the loop waits after a failed cycle before
// trying again, instead of the regular scan interval.
const errorBackoff = time.Minute

// OrderExecutor is the slice of the execution engine the runner needs.
type OrderExecutor interface {
	ExecuteOrder(ctx context.Context, accountID string, req domain.OrderRequest) (domain.OrderResult, error)
}

// Runner drives one agent's scan loop. It owns no lifecycle state; the
// orchestrator starts it, cancels it and records the outcome.
type Runner struct {
	agent      *domain.Agent
	strat      strategy.Strategy
	risk       *strategy.RiskManager
	engine     OrderExecutor
	source     domain.MarketSource
	cache      domain.MarketCache
	cacheTTL   time.Duration
	agents     domain.AgentStore
	signals    domain.SignalStore
	processed  domain.ProcessedMarketStore
	tx         domain.Transactor
	bus        domain.EventBus
	now        strategy.NowFunc
	detectOnly bool
	logger     *slog.Logger
}

// RunnerDeps bundles the collaborators shared by every runner.
type RunnerDeps struct {
	Strategy  strategy.Strategy
	Risk      *strategy.RiskManager
	Engine    OrderExecutor
	Source    domain.MarketSource
	Cache     domain.MarketCache
	CacheTTL  time.Duration
	Agents    domain.AgentStore
	Signals   domain.SignalStore
	Processed domain.ProcessedMarketStore
	Tx        domain.Transactor
	Bus       domain.EventBus
}

// NewRunner creates a Runner for one agent.
func NewRunner(a *domain.Agent, deps RunnerDeps, logger *slog.Logger) *Runner {
	return &Runner{
		agent:     a,
		strat:     deps.Strategy,
		risk:      deps.Risk,
		engine:    deps.Engine,
		source:    deps.Source,
		cache:     deps.Cache,
		cacheTTL:  deps.CacheTTL,
		agents:    deps.Agents,
		signals:   deps.Signals,
		processed: deps.Processed,
		tx:        deps.Tx,
		bus:       deps.Bus,
		now:       time.Now,
		logger: logger.With(
			slog.String("component", "runner"),
			slog.String("agent_id", a.ID),
		),
	}
}

// WithNow overrides the clock for tests.
func (r *Runner) WithNow(now strategy.NowFunc) *Runner {
	r.now = now
	return r
}

// DetectOnly makes the runner verify signals without trading. Monitor mode.
func (r *Runner) DetectOnly() *Runner {
	r.detectOnly = true
	return r
}

// Run executes scan cycles until ctx is done, refreshing the agent's lock
// lease before each cycle. It returns nil on cancellation and an error only
// after too many consecutive cycle failures.
func (r *Runner) Run(ctx context.Context, lease domain.Unlocker) error {
	interval := time.Duration(r.agent.Config.ScanIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lockTTL := 2 * interval

	failures := 0
	runCycle := func() error {
		if lease != nil {
			if err := lease.Refresh(ctx, lockTTL); err != nil {
				return fmt.Errorf("agent: lock lost: %w", err)
			}
		}
		if err := r.Cycle(ctx); err != nil {
			failures++
			r.logger.ErrorContext(ctx, "scan cycle failed",
				slog.String("error", err.Error()),
				slog.Int("consecutive_failures", failures),
			)
			if failures >= maxConsecutiveFailures {
				return fmt.Errorf("agent: %d consecutive cycle failures: %w", failures, err)
			}
			r.markErrored(ctx, err)
			return nil
		}
		if r.agent.Status == domain.AgentError {
			r.markRecovered(ctx)
		}
		failures = 0
		return nil
	}

	if err := runCycle(); err != nil && ctx.Err() == nil {
		return err
	}

	for {
		wait := interval
		if failures > 0 {
			wait = errorBackoff
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if err := runCycle(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// markErrored records a failed cycle on the agent so the error is visible
// while the loop keeps retrying.
func (r *Runner) markErrored(ctx context.Context, cause error) {
	r.agent.ErrorMessage = cause.Error()
	if r.agent.Status != domain.AgentError {
		if err := r.agent.Transition(domain.AgentError, r.now()); err != nil {
			return
		}
	}
	if err := r.agents.Update(ctx, r.agent); err != nil {
		r.logger.WarnContext(ctx, "record agent error", slog.String("error", err.Error()))
	}
}

// markRecovered moves the agent back to running after a good cycle.
func (r *Runner) markRecovered(ctx context.Context) {
	if err := r.agent.Transition(domain.AgentRunning, r.now()); err != nil {
		return
	}
	if err := r.agents.Update(ctx, r.agent); err != nil {
		r.logger.WarnContext(ctx, "record agent recovery", slog.String("error", err.Error()))
	}
}

// Cycle runs one full scan: fetch markets, detect signals, then verify,
// size and execute each one. A failure on one signal never blocks the rest.
func (r *Runner) Cycle(ctx context.Context) error {
	started := r.now()

	markets, err := r.fetchMarkets(ctx)
	if err != nil {
		return err
	}

	fresh, err := r.unprocessed(ctx, markets)
	if err != nil {
		return err
	}

	sigs, err := r.strat.Detect(ctx, r.agent.ID, fresh)
	if err != nil {
		return fmt.Errorf("agent: detect: %w", err)
	}

	for _, sig := range sigs {
		if err := r.signals.Create(ctx, sig); err != nil {
			r.logger.ErrorContext(ctx, "persist signal failed",
				slog.String("market_id", sig.MarketID),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.publish(ctx, domain.EventSignalDetected, map[string]string{
			"signal_id": sig.ID,
			"market_id": sig.MarketID,
			"outcome":   string(sig.PredictedOutcome),
			"margin":    fmt.Sprintf("%.4f", sig.ProfitMargin),
		})
		if err := r.processSignal(ctx, sig); err != nil {
			r.logger.ErrorContext(ctx, "signal processing failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	// Every scanned market is marked so the next cycle skips it, signal or
	// not.
	for _, m := range fresh {
		if err := r.processed.Mark(ctx, r.agent.ID, m.ID, r.now()); err != nil {
			r.logger.WarnContext(ctx, "mark processed failed",
				slog.String("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	r.recordHeartbeat(ctx)

	r.logger.InfoContext(ctx, "scan cycle complete",
		slog.Int("markets", len(markets)),
		slog.Int("unprocessed", len(fresh)),
		slog.Int("signals", len(sigs)),
		slog.Duration("elapsed", r.now().Sub(started)),
	)
	return nil
}

// fetchMarkets lists active markets from the source and caches each
// snapshot for the verification re-price.
func (r *Runner) fetchMarkets(ctx context.Context) ([]domain.MarketSnapshot, error) {
	batch := r.agent.Config.MarketBatchSize
	if batch <= 0 {
		batch = 100
	}
	markets, err := r.source.ListMarkets(ctx, domain.MarketFilter{
		ActiveOnly: true,
		Limit:      batch,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: list markets: %w", err)
	}

	if r.cache != nil {
		for i := range markets {
			if err := r.cache.Set(ctx, &markets[i], r.cacheTTL); err != nil {
				r.logger.DebugContext(ctx, "cache market failed",
					slog.String("market_id", markets[i].ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return markets, nil
}

// unprocessed filters out markets this agent already evaluated.
func (r *Runner) unprocessed(ctx context.Context, markets []domain.MarketSnapshot) ([]domain.MarketSnapshot, error) {
	out := markets[:0:0]
	for _, m := range markets {
		seen, err := r.processed.IsProcessed(ctx, r.agent.ID, m.ID)
		if err != nil {
			return nil, fmt.Errorf("agent: check processed %s: %w", m.ID, err)
		}
		if !seen {
			out = append(out, m)
		}
	}
	return out, nil
}

// processSignal carries one detected signal through verification, risk
// checks, sizing and execution.
func (r *Runner) processSignal(ctx context.Context, sig *domain.Signal) error {
	fresh, err := r.source.GetMarket(ctx, sig.MarketID)
	if err != nil {
		return fmt.Errorf("agent: refetch market %s: %w", sig.MarketID, err)
	}

	if err := r.strat.Verify(ctx, sig, fresh); err != nil {
		return fmt.Errorf("agent: verify: %w", err)
	}
	if err := r.signals.Update(ctx, sig); err != nil {
		return fmt.Errorf("agent: update signal: %w", err)
	}
	r.publishSignalStatus(ctx, sig)

	if sig.Status != domain.SignalVerified {
		return nil
	}
	if r.detectOnly {
		return nil
	}

	ok, reason, err := r.risk.WithinLimits(ctx, r.agent.AccountID)
	if err != nil {
		return fmt.Errorf("agent: risk check: %w", err)
	}
	if !ok {
		r.logger.InfoContext(ctx, "trade blocked by risk limits",
			slog.String("signal_id", sig.ID),
			slog.String("reason", reason),
		)
		return nil
	}

	notional, err := r.risk.PositionSize(ctx, r.agent.AccountID, sig.Confidence)
	if err != nil {
		return fmt.Errorf("agent: position size: %w", err)
	}

	reqs, err := r.strat.GenerateOrders(sig, fresh, notional)
	if err != nil {
		return fmt.Errorf("agent: generate orders: %w", err)
	}
	if len(reqs) == 0 {
		return nil
	}

	for _, req := range reqs {
		result, err := r.engine.ExecuteOrder(ctx, r.agent.AccountID, req)
		if err != nil {
			if errors.Is(err, domain.ErrDuplicateOrder) {
				r.logger.WarnContext(ctx, "duplicate order suppressed",
					slog.String("signal_id", sig.ID),
					slog.String("order_id", result.OrderID),
				)
				continue
			}
			return fmt.Errorf("agent: execute order: %w", err)
		}
		if !result.Success {
			r.logger.WarnContext(ctx, "order rejected",
				slog.String("signal_id", sig.ID),
				slog.String("order_id", result.OrderID),
				slog.String("error", result.Error),
			)
			continue
		}

		err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
			if terr := sig.Transition(domain.SignalExecuted, r.now()); terr != nil {
				return terr
			}
			return r.signals.Update(ctx, sig)
		})
		if err != nil {
			return fmt.Errorf("agent: mark signal executed: %w", err)
		}
		r.risk.RecordTrade()
	}
	return nil
}

// recordHeartbeat stamps LastCycleAt so operators can see the agent is
// alive.
func (r *Runner) recordHeartbeat(ctx context.Context) {
	t := r.now()
	r.agent.LastCycleAt = &t
	r.agent.UpdatedAt = t
	if err := r.agents.Update(ctx, r.agent); err != nil {
		r.logger.WarnContext(ctx, "heartbeat update failed",
			slog.String("error", err.Error()),
		)
	}
}

func (r *Runner) publishSignalStatus(ctx context.Context, sig *domain.Signal) {
	var t domain.EventType
	switch sig.Status {
	case domain.SignalVerified:
		t = domain.EventSignalVerified
	case domain.SignalExpired:
		t = domain.EventSignalExpired
	case domain.SignalRejected:
		t = domain.EventSignalRejected
	default:
		return
	}
	r.publish(ctx, t, map[string]string{
		"signal_id":  sig.ID,
		"market_id":  sig.MarketID,
		"confidence": fmt.Sprintf("%.2f", sig.Confidence),
		"source":     sig.VerificationSource,
	})
}

func (r *Runner) publish(ctx context.Context, t domain.EventType, payload map[string]string) {
	if r.bus == nil {
		return
	}
	if err := r.bus.Publish(ctx, domain.NewEvent(t, r.agent.ID, payload)); err != nil {
		r.logger.WarnContext(ctx, "event publish failed",
			slog.String("event", string(t)),
			slog.String("error", err.Error()),
		)
	}
}
