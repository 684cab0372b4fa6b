// Package strategy implements signal detection, verification and order
// generation for the oracle-latency trading pipeline.
package strategy

import (
	"context"
	"time"

	"github.com/voidlabs/voidbot/internal/domain"
)

// Strategy defines the contract for trading strategies run by the agent.
type Strategy interface {
	Name() string
	// Detect scans a batch of market snapshots and returns new signals.
	Detect(ctx context.Context, agentID string, markets []domain.MarketSnapshot) ([]*domain.Signal, error)
	// Verify re-checks a detected signal against a fresh snapshot and the
	// verification oracle, transitioning it to VERIFIED, EXPIRED or REJECTED.
	Verify(ctx context.Context, sig *domain.Signal, fresh domain.MarketSnapshot) error
	// GenerateOrders turns a verified signal into order requests given the
	// risk-approved notional in USD.
	GenerateOrders(sig *domain.Signal, fresh domain.MarketSnapshot, notionalUSD float64) ([]domain.OrderRequest, error)
}

// Verdict is the oracle's assessment of a signal.
type Verdict struct {
	Confidence float64 // [0,1]
	Reasoning  string
	Source     string
}

// VerificationOracle estimates the probability that the predicted outcome of
// a signal is correct. Implementations live outside this package; the
// strategy only needs the assessment.
type VerificationOracle interface {
	Assess(ctx context.Context, m domain.MarketSnapshot, s *domain.Signal) (Verdict, error)
}

// NowFunc abstracts time.Now for deterministic tests.
type NowFunc func() time.Time
