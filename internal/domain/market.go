package domain

import (
	"context"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive            MarketStatus = "active"
	MarketStatusClosed            MarketStatus = "closed"
	MarketStatusResolutionPending MarketStatus = "resolution_pending"
	MarketStatusResolved          MarketStatus = "resolved"
)

// Outcome identifies one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// MarketSnapshot is a read-only view of a binary prediction market at one
// point in time. It is fetched fresh each scan cycle, never mutated, and
// superseded by the next fetch.
type MarketSnapshot struct {
	ID           string
	Question     string
	Slug         string
	Category     string
	YesTokenID   string
	NoTokenID    string
	YesPrice     float64 // [0,1]
	NoPrice      float64 // [0,1]
	LiquidityUSD float64
	Volume24hUSD float64
	EndTime      *time.Time
	Status       MarketStatus
	FetchedAt    time.Time
}

// Price returns the current price for the given outcome.
func (m MarketSnapshot) Price(o Outcome) float64 {
	if o == OutcomeYes {
		return m.YesPrice
	}
	return m.NoPrice
}

// TokenID returns the outcome token id for the given outcome.
func (m MarketSnapshot) TokenID(o Outcome) string {
	if o == OutcomeYes {
		return m.YesTokenID
	}
	return m.NoTokenID
}

// HoursSinceEnd returns the hours elapsed since the market's end time at the
// reference instant now, or false if the market has no end time.
func (m MarketSnapshot) HoursSinceEnd(now time.Time) (float64, bool) {
	if m.EndTime == nil {
		return 0, false
	}
	return now.Sub(*m.EndTime).Hours(), true
}

// MarketFilter narrows which markets a MarketSource returns.
type MarketFilter struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

// MarketSource provides market snapshots from an external data API. It is
// called once per scan cycle; implementations must honour ctx deadlines.
type MarketSource interface {
	ListMarkets(ctx context.Context, filter MarketFilter) ([]MarketSnapshot, error)
	GetMarket(ctx context.Context, id string) (MarketSnapshot, error)
}
