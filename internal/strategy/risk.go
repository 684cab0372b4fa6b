package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voidlabs/voidbot/internal/domain"
)

// RiskManager gates executions against position count, capital exposure and
// the post-trade cooldown.
type RiskManager struct {
	params    domain.StrategyParams
	positions domain.PositionStore
	now       NowFunc
	logger    *slog.Logger

	lastTradeAt time.Time
}

// NewRiskManager creates a RiskManager for one agent's account.
func NewRiskManager(params domain.StrategyParams, positions domain.PositionStore, logger *slog.Logger) *RiskManager {
	return &RiskManager{
		params:    params,
		positions: positions,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "risk")),
	}
}

// WithNow overrides the clock. Test hook.
func (r *RiskManager) WithNow(now NowFunc) *RiskManager {
	r.now = now
	return r
}

// RecordTrade starts the cooldown window.
func (r *RiskManager) RecordTrade() {
	r.lastTradeAt = r.now()
}

// WithinLimits reports whether the account may open another position, with a
// human-readable reason when it may not.
func (r *RiskManager) WithinLimits(ctx context.Context, accountID string) (bool, string, error) {
	if cd := time.Duration(r.params.CooldownAfterTradeSeconds) * time.Second; cd > 0 && !r.lastTradeAt.IsZero() {
		if since := r.now().Sub(r.lastTradeAt); since < cd {
			return false, fmt.Sprintf("cooldown active for %s", (cd - since).Round(time.Second)), nil
		}
	}
	open, err := r.positions.ListOpenByAccount(ctx, accountID)
	if err != nil {
		return false, "", fmt.Errorf("list open positions: %w", err)
	}
	if len(open) >= r.params.MaxPositions {
		return false, fmt.Sprintf("max positions reached (%d/%d)", len(open), r.params.MaxPositions), nil
	}
	return true, "", nil
}

// PositionSize computes the USD notional for a signal: confidence-scaled base
// size, capped by the remaining account capacity and floored at zero.
func (r *RiskManager) PositionSize(ctx context.Context, accountID string, confidence float64) (float64, error) {
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	base := r.params.MaxPositionSizeUSD * confidence

	open, err := r.positions.ListOpenByAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("list open positions: %w", err)
	}
	var deployed float64
	for _, p := range open {
		deployed += p.CurrentValue()
	}
	remaining := r.params.MaxPositionSizeUSD*float64(r.params.MaxPositions) - deployed

	size := base
	if remaining < size {
		size = remaining
	}
	if size < 0 {
		size = 0
	}
	r.logger.Debug("position sized",
		slog.Float64("base", base),
		slog.Float64("deployed", deployed),
		slog.Float64("final", size))
	return size, nil
}
