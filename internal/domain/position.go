package domain

import "time"

// Position is the accumulated exposure of one account on one market token
// side. At most one open position exists per (account, market, side).
type Position struct {
	ID            string
	AccountID     string
	MarketID      string
	TokenID       string
	Side          Outcome
	Size          float64 // shares currently held
	AvgEntryPrice float64
	CurrentPrice  float64
	RealizedPnl   float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
}

// CurrentValue is the mark-to-market notional of the position.
func (p *Position) CurrentValue() float64 {
	return p.Size * p.CurrentPrice
}

// UnrealizedPnl is the gain against the average entry.
func (p *Position) UnrealizedPnl() float64 {
	return p.Size * (p.CurrentPrice - p.AvgEntryPrice)
}

// IsClosed reports whether the position has been fully exited.
func (p *Position) IsClosed() bool {
	return p.ClosedAt != nil
}

// ApplyFill folds one execution into the position. Buys grow size and move
// the average entry; sells shrink size and realise pnl against the average.
func (p *Position) ApplyFill(side OrderSide, price, size float64, now time.Time) {
	switch side {
	case OrderSideBuy:
		total := p.Size + size
		if total > 0 {
			p.AvgEntryPrice = (p.AvgEntryPrice*p.Size + price*size) / total
		}
		p.Size = total
	case OrderSideSell:
		p.RealizedPnl += size * (price - p.AvgEntryPrice)
		p.Size -= size
		if p.Size <= 0 {
			p.Size = 0
			closed := now
			p.ClosedAt = &closed
		}
	}
	p.CurrentPrice = price
	p.UpdatedAt = now
}
