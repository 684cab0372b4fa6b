package strategy

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidlabs/voidbot/internal/domain"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testParams() domain.StrategyParams {
	return domain.StrategyParams{
		MinProfitMargin:       0.03,
		MinDiscount:           0.01,
		MaxPriceThreshold:     0.97,
		MinHoursSinceEnd:      1,
		MaxHoursSinceEnd:      72,
		MinLiquidityUSD:       1000,
		MinVolume24hUSD:       5000,
		AIConfidenceThreshold: 0.7,
		MaxPositionSizeUSD:    100,
		MaxPositions:          10,
		MaxSlippage:           0.02,
		SignalExpirySeconds:   300,
		ScanIntervalSeconds:   300,
		MarketBatchSize:       100,
	}
}

type stubOracle struct {
	verdict Verdict
	err     error
	calls   int
}

func (s *stubOracle) Assess(_ context.Context, _ domain.MarketSnapshot, _ *domain.Signal) (Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

func snapshot(yes, no, liquidity float64, endedAgo time.Duration) domain.MarketSnapshot {
	end := testNow.Add(-endedAgo)
	return domain.MarketSnapshot{
		ID:           "mkt-1",
		Question:     "Did the event happen?",
		YesTokenID:   "tok-yes",
		NoTokenID:    "tok-no",
		YesPrice:     yes,
		NoPrice:      no,
		LiquidityUSD: liquidity,
		Volume24hUSD: 25_000,
		EndTime:      &end,
		Status:       domain.MarketStatusActive,
		FetchedAt:    testNow,
	}
}

func newTestStrategy(oracle VerificationOracle) *OracleLatency {
	return NewOracleLatency(testParams(), oracle, slog.New(slog.DiscardHandler)).
		WithNow(func() time.Time { return testNow })
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		market      domain.MarketSnapshot
		wantSignal  bool
		wantOutcome domain.Outcome
		wantPrice   float64
	}{
		{
			name:        "discounted likely winner inside window",
			market:      snapshot(0.92, 0.08, 50_000, 5*time.Hour),
			wantSignal:  true,
			wantOutcome: domain.OutcomeYes,
			wantPrice:   0.92,
		},
		{
			name:        "NO side discounted deeper",
			market:      snapshot(0.995, 0.90, 50_000, 5*time.Hour),
			wantSignal:  true,
			wantOutcome: domain.OutcomeNo,
			wantPrice:   0.90,
		},
		{
			name:        "exact tie goes to YES",
			market:      snapshot(0.95, 0.95, 50_000, 5*time.Hour),
			wantSignal:  true,
			wantOutcome: domain.OutcomeYes,
			wantPrice:   0.95,
		},
		{
			name:       "even odds, no favorite",
			market:     snapshot(0.5, 0.5, 50_000, 5*time.Hour),
			wantSignal: false,
		},
		{
			name:       "too early after event end",
			market:     snapshot(0.92, 0.08, 50_000, 30*time.Minute),
			wantSignal: false,
		},
		{
			name:       "window expired",
			market:     snapshot(0.92, 0.08, 50_000, 80*time.Hour),
			wantSignal: false,
		},
		{
			name:       "price above threshold",
			market:     snapshot(0.985, 0.015, 50_000, 5*time.Hour),
			wantSignal: false,
		},
		{
			name:       "price at threshold boundary",
			market:     snapshot(0.975, 0.025, 50_000, 5*time.Hour),
			wantSignal: false,
		},
		{
			name:       "illiquid market",
			market:     snapshot(0.92, 0.08, 500, 5*time.Hour),
			wantSignal: false,
		},
		{
			name: "no end time",
			market: func() domain.MarketSnapshot {
				m := snapshot(0.92, 0.08, 50_000, 5*time.Hour)
				m.EndTime = nil
				return m
			}(),
			wantSignal: false,
		},
		{
			name: "thin 24h volume",
			market: func() domain.MarketSnapshot {
				m := snapshot(0.92, 0.08, 50_000, 5*time.Hour)
				m.Volume24hUSD = 100
				return m
			}(),
			wantSignal: false,
		},
		{
			name: "already resolved",
			market: func() domain.MarketSnapshot {
				m := snapshot(0.92, 0.08, 50_000, 5*time.Hour)
				m.Status = domain.MarketStatusResolved
				return m
			}(),
			wantSignal: false,
		},
		{
			name: "closed market",
			market: func() domain.MarketSnapshot {
				m := snapshot(0.92, 0.08, 50_000, 5*time.Hour)
				m.Status = domain.MarketStatusClosed
				return m
			}(),
			wantSignal: false,
		},
		{
			name: "resolution pending",
			market: func() domain.MarketSnapshot {
				m := snapshot(0.92, 0.08, 50_000, 5*time.Hour)
				m.Status = domain.MarketStatusResolutionPending
				return m
			}(),
			wantSignal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strat := newTestStrategy(&stubOracle{})
			sigs, err := strat.Detect(context.Background(), "agent-1", []domain.MarketSnapshot{tt.market})
			require.NoError(t, err)

			if !tt.wantSignal {
				assert.Empty(t, sigs)
				return
			}
			require.Len(t, sigs, 1)
			sig := sigs[0]
			assert.Equal(t, domain.SignalDetected, sig.Status)
			assert.Equal(t, tt.wantOutcome, sig.PredictedOutcome)
			assert.Equal(t, tt.wantPrice, sig.EntryPrice)
			assert.Equal(t, 1.0, sig.ExpectedPayout)
			assert.InDelta(t, (1-tt.wantPrice)/tt.wantPrice, sig.ProfitMargin, 1e-9)
			assert.Equal(t, "agent-1", sig.AgentID)
			assert.NotEmpty(t, sig.ID)
		})
	}
}

func TestDetectOneSignalPerMarket(t *testing.T) {
	strat := newTestStrategy(&stubOracle{})
	// Both sides qualify; exactly one signal must come out.
	sigs, err := strat.Detect(context.Background(), "agent-1",
		[]domain.MarketSnapshot{snapshot(0.92, 0.94, 50_000, 5*time.Hour)})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	// YES has the deeper discount here.
	assert.Equal(t, domain.OutcomeYes, sigs[0].PredictedOutcome)
}

func TestDetectMarginFloor(t *testing.T) {
	// 0.96 clears the discount floor but returns only 4.2% on capital,
	// short of a 5% margin requirement.
	params := testParams()
	params.MinProfitMargin = 0.05
	strat := NewOracleLatency(params, &stubOracle{}, slog.New(slog.DiscardHandler)).
		WithNow(func() time.Time { return testNow })

	sigs, err := strat.Detect(context.Background(), "agent-1",
		[]domain.MarketSnapshot{snapshot(0.96, 0.04, 50_000, 5*time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestDetectDiscountThresholdIndependentOfMargin(t *testing.T) {
	// A 4% discount clears the 3% margin floor but not a 5% discount floor;
	// the two thresholds must act separately.
	params := testParams()
	params.MinDiscount = 0.05
	strat := NewOracleLatency(params, &stubOracle{}, slog.New(slog.DiscardHandler)).
		WithNow(func() time.Time { return testNow })

	sigs, err := strat.Detect(context.Background(), "agent-1",
		[]domain.MarketSnapshot{snapshot(0.96, 0.04, 50_000, 5*time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, sigs)

	// Deepening the discount past the floor brings the signal back.
	sigs, err = strat.Detect(context.Background(), "agent-1",
		[]domain.MarketSnapshot{snapshot(0.94, 0.06, 50_000, 5*time.Hour)})
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, 0.94, sigs[0].EntryPrice)
}

func TestVerify(t *testing.T) {
	detected := func() *domain.Signal {
		return &domain.Signal{
			ID:               "sig-1",
			AgentID:          "agent-1",
			MarketID:         "mkt-1",
			PredictedOutcome: domain.OutcomeYes,
			EntryPrice:       0.92,
			ExpectedPayout:   1.0,
			ProfitMargin:     (1 - 0.92) / 0.92,
			Status:           domain.SignalDetected,
			DetectedAt:       testNow.Add(-time.Minute),
		}
	}

	t.Run("high confidence verifies", func(t *testing.T) {
		oracle := &stubOracle{verdict: Verdict{Confidence: 0.85, Reasoning: "event concluded", Source: "groq"}}
		strat := newTestStrategy(oracle)
		sig := detected()

		require.NoError(t, strat.Verify(context.Background(), sig, snapshot(0.93, 0.07, 50_000, 5*time.Hour)))

		assert.Equal(t, domain.SignalVerified, sig.Status)
		assert.Equal(t, 0.85, sig.Confidence)
		assert.Equal(t, "groq", sig.VerificationSource)
		// Entry re-priced from the fresh snapshot.
		assert.Equal(t, 0.93, sig.EntryPrice)
		assert.Equal(t, 1, oracle.calls)
	})

	t.Run("margin gone on fresh price expires without oracle call", func(t *testing.T) {
		oracle := &stubOracle{verdict: Verdict{Confidence: 0.9}}
		strat := newTestStrategy(oracle)
		sig := detected()

		require.NoError(t, strat.Verify(context.Background(), sig, snapshot(0.99, 0.01, 50_000, 5*time.Hour)))

		assert.Equal(t, domain.SignalExpired, sig.Status)
		assert.NotNil(t, sig.ExpiredAt)
		assert.Zero(t, oracle.calls)
	})

	t.Run("market no longer active expires without oracle call", func(t *testing.T) {
		oracle := &stubOracle{verdict: Verdict{Confidence: 0.9}}
		strat := newTestStrategy(oracle)
		sig := detected()

		fresh := snapshot(0.93, 0.07, 50_000, 5*time.Hour)
		fresh.Status = domain.MarketStatusResolutionPending
		require.NoError(t, strat.Verify(context.Background(), sig, fresh))

		assert.Equal(t, domain.SignalExpired, sig.Status)
		assert.Zero(t, oracle.calls)
	})

	t.Run("stale signal expires without oracle call", func(t *testing.T) {
		oracle := &stubOracle{verdict: Verdict{Confidence: 0.9}}
		strat := newTestStrategy(oracle)
		sig := detected()
		sig.DetectedAt = testNow.Add(-10 * time.Minute)

		require.NoError(t, strat.Verify(context.Background(), sig, snapshot(0.93, 0.07, 50_000, 5*time.Hour)))

		assert.Equal(t, domain.SignalExpired, sig.Status)
		assert.Zero(t, oracle.calls)
	})

	t.Run("low confidence rejects", func(t *testing.T) {
		oracle := &stubOracle{verdict: Verdict{Confidence: 0.4, Reasoning: "outcome unclear", Source: "groq"}}
		strat := newTestStrategy(oracle)
		sig := detected()

		require.NoError(t, strat.Verify(context.Background(), sig, snapshot(0.92, 0.08, 50_000, 5*time.Hour)))

		assert.Equal(t, domain.SignalRejected, sig.Status)
		assert.Equal(t, 0.4, sig.Confidence)
	})

	t.Run("oracle failure degrades to neutral confidence", func(t *testing.T) {
		oracle := &stubOracle{err: errors.New("timeout")}
		strat := newTestStrategy(oracle)
		sig := detected()

		require.NoError(t, strat.Verify(context.Background(), sig, snapshot(0.92, 0.08, 50_000, 5*time.Hour)))

		// Neutral 0.5 sits below the 0.7 threshold, so the signal is rejected
		// rather than traded blind, and the cycle keeps going.
		assert.Equal(t, domain.SignalRejected, sig.Status)
		assert.Equal(t, 0.5, sig.Confidence)
		assert.Equal(t, "fallback", sig.VerificationSource)
	})
}

func TestGenerateOrders(t *testing.T) {
	verified := &domain.Signal{
		ID:               "sig-1",
		MarketID:         "mkt-1",
		PredictedOutcome: domain.OutcomeYes,
		EntryPrice:       0.92,
		Status:           domain.SignalVerified,
	}
	strat := newTestStrategy(&stubOracle{})
	fresh := snapshot(0.92, 0.08, 50_000, 5*time.Hour)

	t.Run("single FAK buy with slippage allowance", func(t *testing.T) {
		orders, err := strat.GenerateOrders(verified, fresh, 85)
		require.NoError(t, err)
		require.Len(t, orders, 1)

		o := orders[0]
		assert.Equal(t, domain.OrderSideBuy, o.Side)
		assert.Equal(t, domain.OrderTypeFAK, o.OrderType)
		assert.Equal(t, "tok-yes", o.TokenID)
		assert.Equal(t, "sig-1", o.SignalID)
		assert.InDelta(t, 0.92*1.02, o.Price, 1e-9)
		assert.InDelta(t, 85/(0.92*1.02), o.Size, 1e-9)
	})

	t.Run("limit price never crosses one", func(t *testing.T) {
		sig := *verified
		sig.EntryPrice = 0.99
		orders, err := strat.GenerateOrders(&sig, fresh, 50)
		require.NoError(t, err)
		require.Len(t, orders, 1)
		assert.Less(t, orders[0].Price, 1.0)
	})

	t.Run("zero notional yields no orders", func(t *testing.T) {
		orders, err := strat.GenerateOrders(verified, fresh, 0)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("unverified signal refused", func(t *testing.T) {
		sig := *verified
		sig.Status = domain.SignalDetected
		_, err := strat.GenerateOrders(&sig, fresh, 50)
		assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	})
}
