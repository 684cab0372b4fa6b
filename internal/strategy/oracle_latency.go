package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voidlabs/voidbot/internal/domain"
)

// neutralConfidence is assigned when the verification oracle cannot be
// reached. It deliberately sits below the usual confidence threshold so an
// unverifiable signal is rejected rather than traded blind.
const neutralConfidence = 0.5

// OracleLatency exploits the settlement lag between a real-world event
// finishing and the on-chain oracle resolving the market. Inside that window
// the winning side often still trades below 1.0; buying it captures the
// discount when the oracle pays out.
type OracleLatency struct {
	params domain.StrategyParams
	oracle VerificationOracle
	now    NowFunc
	logger *slog.Logger
}

// NewOracleLatency creates the strategy with the given per-agent parameters.
func NewOracleLatency(params domain.StrategyParams, oracle VerificationOracle, logger *slog.Logger) *OracleLatency {
	return &OracleLatency{
		params: params,
		oracle: oracle,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("strategy", "oracle_latency")),
	}
}

// WithNow overrides the clock. Test hook.
func (o *OracleLatency) WithNow(now NowFunc) *OracleLatency {
	o.now = now
	return o
}

// Name returns the strategy identifier.
func (o *OracleLatency) Name() string { return "oracle_latency" }

// Detect scans the snapshots and emits at most one signal per market: the
// outcome with the larger settlement discount, YES on an exact tie.
func (o *OracleLatency) Detect(ctx context.Context, agentID string, markets []domain.MarketSnapshot) ([]*domain.Signal, error) {
	now := o.now()
	var signals []*domain.Signal
	for i := range markets {
		if err := ctx.Err(); err != nil {
			return signals, err
		}
		m := markets[i]
		sig, ok := o.evaluate(agentID, m, now)
		if !ok {
			continue
		}
		o.logger.Info("signal detected",
			slog.String("market_id", m.ID),
			slog.String("outcome", string(sig.PredictedOutcome)),
			slog.Float64("entry_price", sig.EntryPrice),
			slog.Float64("profit_margin", sig.ProfitMargin))
		signals = append(signals, sig)
	}
	return signals, nil
}

// evaluate applies the detection filters to one snapshot.
func (o *OracleLatency) evaluate(agentID string, m domain.MarketSnapshot, now time.Time) (*domain.Signal, bool) {
	// Both sides must still be on offer; closed, resolution-pending and
	// resolved books cannot be entered.
	if m.Status != domain.MarketStatusActive {
		return nil, false
	}
	hours, ok := m.HoursSinceEnd(now)
	if !ok {
		return nil, false
	}
	if hours < o.params.MinHoursSinceEnd || hours > o.params.MaxHoursSinceEnd {
		return nil, false
	}
	if m.LiquidityUSD < o.params.MinLiquidityUSD {
		return nil, false
	}
	if m.Volume24hUSD < o.params.MinVolume24hUSD {
		return nil, false
	}

	best, ok := o.pickOutcome(m)
	if !ok {
		return nil, false
	}
	price := m.Price(best)
	return &domain.Signal{
		ID:               uuid.NewString(),
		AgentID:          agentID,
		MarketID:         m.ID,
		PredictedOutcome: best,
		EntryPrice:       price,
		ExpectedPayout:   1.0,
		ProfitMargin:     margin(price),
		Status:           domain.SignalDetected,
		DetectedAt:       now,
	}, true
}

// pickOutcome returns the qualifying outcome with the larger discount
// (1 - price). YES wins an exact tie.
func (o *OracleLatency) pickOutcome(m domain.MarketSnapshot) (domain.Outcome, bool) {
	yesOK := o.qualifies(m.YesPrice)
	noOK := o.qualifies(m.NoPrice)
	switch {
	case yesOK && noOK:
		if (1 - m.NoPrice) > (1 - m.YesPrice) {
			return domain.OutcomeNo, true
		}
		return domain.OutcomeYes, true
	case yesOK:
		return domain.OutcomeYes, true
	case noOK:
		return domain.OutcomeNo, true
	default:
		return "", false
	}
}

// qualifies reports whether a single outcome price clears the entry filters.
// Only the side trading above even money can be the settlement favorite; the
// cheap side's discount is longshot risk, not oracle lag. The discount
// (1 - price) and the profit margin are separate thresholds: the discount
// gates raw settlement edge, the margin gates return on capital.
func (o *OracleLatency) qualifies(price float64) bool {
	if price <= 0.5 || price >= o.params.MaxPriceThreshold {
		return false
	}
	if 1-price < o.params.MinDiscount {
		return false
	}
	return margin(price) >= o.params.MinProfitMargin
}

// margin is the profit fraction of buying at price and settling at 1.0.
func margin(price float64) float64 {
	return (1 - price) / price
}

// Verify re-prices the signal against a fresh snapshot and consults the
// oracle. The signal leaves in VERIFIED, EXPIRED or REJECTED state. Oracle
// failures never abort the cycle; they degrade to neutral confidence.
func (o *OracleLatency) Verify(ctx context.Context, sig *domain.Signal, fresh domain.MarketSnapshot) error {
	now := o.now()
	log := o.logger.With(slog.String("signal_id", sig.ID), slog.String("market_id", sig.MarketID))

	if fresh.Status != domain.MarketStatusActive {
		log.Info("signal expired, market no longer active", slog.String("market_status", string(fresh.Status)))
		return sig.Transition(domain.SignalExpired, now)
	}
	if o.params.SignalExpirySeconds > 0 {
		age := now.Sub(sig.DetectedAt)
		if age > time.Duration(o.params.SignalExpirySeconds)*time.Second {
			log.Info("signal expired, too old to verify", slog.Duration("age", age))
			return sig.Transition(domain.SignalExpired, now)
		}
	}

	price := fresh.Price(sig.PredictedOutcome)
	if price <= 0 || margin(price) < o.params.MinProfitMargin {
		log.Info("signal expired on re-price", slog.Float64("fresh_price", price))
		return sig.Transition(domain.SignalExpired, now)
	}
	sig.EntryPrice = price
	sig.ProfitMargin = margin(price)

	verdict, err := o.oracle.Assess(ctx, fresh, sig)
	if err != nil {
		log.Warn("verification oracle unavailable, using neutral confidence", slog.String("error", err.Error()))
		verdict = Verdict{Confidence: neutralConfidence, Reasoning: "oracle unavailable", Source: "fallback"}
	}
	sig.Confidence = verdict.Confidence
	sig.VerificationSource = verdict.Source
	sig.Reasoning = verdict.Reasoning

	if verdict.Confidence < o.params.AIConfidenceThreshold {
		log.Info("signal rejected by verification",
			slog.Float64("confidence", verdict.Confidence),
			slog.Float64("threshold", o.params.AIConfidenceThreshold))
		return sig.Transition(domain.SignalRejected, now)
	}

	log.Info("signal verified", slog.Float64("confidence", verdict.Confidence))
	return sig.Transition(domain.SignalVerified, now)
}

// GenerateOrders turns a verified signal into a single FAK buy. The limit
// price carries the slippage allowance but never crosses 1.0; size is the
// approved notional divided by that limit.
func (o *OracleLatency) GenerateOrders(sig *domain.Signal, fresh domain.MarketSnapshot, notionalUSD float64) ([]domain.OrderRequest, error) {
	if sig.Status != domain.SignalVerified {
		return nil, fmt.Errorf("%w: signal %s is %s, want %s", domain.ErrInvalidOrder, sig.ID, sig.Status, domain.SignalVerified)
	}
	if notionalUSD <= 0 {
		return nil, nil
	}
	limit := sig.EntryPrice * (1 + o.params.MaxSlippage)
	if limit >= 1 {
		limit = 0.99
	}
	size := notionalUSD / limit
	return []domain.OrderRequest{{
		MarketID:  sig.MarketID,
		TokenID:   fresh.TokenID(sig.PredictedOutcome),
		Outcome:   sig.PredictedOutcome,
		Side:      domain.OrderSideBuy,
		OrderType: domain.OrderTypeFAK,
		Price:     limit,
		Size:      size,
		SignalID:  sig.ID,
	}}, nil
}
