package domain

import (
	"context"
	"time"
)

// ListOpts pages list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// AgentStore persists agents.
type AgentStore interface {
	Create(ctx context.Context, a *Agent) error
	Get(ctx context.Context, id string) (*Agent, error)
	Update(ctx context.Context, a *Agent) error
	List(ctx context.Context, opts ListOpts) ([]*Agent, error)
	ListByStatus(ctx context.Context, status AgentStatus) ([]*Agent, error)
}

// AccountStore persists trading accounts.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Get(ctx context.Context, id string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	List(ctx context.Context, opts ListOpts) ([]*Account, error)
}

// SignalStore persists detected signals.
type SignalStore interface {
	Create(ctx context.Context, s *Signal) error
	Get(ctx context.Context, id string) (*Signal, error)
	Update(ctx context.Context, s *Signal) error
	ListByAgent(ctx context.Context, agentID string, opts ListOpts) ([]*Signal, error)
	ListByStatus(ctx context.Context, status SignalStatus, opts ListOpts) ([]*Signal, error)
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Signal, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByExternalID(ctx context.Context, externalID string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]*Order, error)
	// GetActiveBySignal returns the non-terminal order for (account, signal),
	// or ErrNotFound. Backs execution idempotency.
	GetActiveBySignal(ctx context.Context, accountID, signalID string) (*Order, error)
	ListByStatus(ctx context.Context, status OrderStatus, opts ListOpts) ([]*Order, error)
	ListOpenByAccount(ctx context.Context, accountID string) ([]*Order, error)
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Order, error)
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, p *Position) error
	Get(ctx context.Context, id string) (*Position, error)
	GetOpen(ctx context.Context, accountID, marketID string, side Outcome) (*Position, error)
	Update(ctx context.Context, p *Position) error
	ListOpenByAccount(ctx context.Context, accountID string) ([]*Position, error)
}

// ProcessedMarketStore records markets an agent has already evaluated so a
// restart does not re-signal them.
type ProcessedMarketStore interface {
	Mark(ctx context.Context, agentID, marketID string, at time.Time) error
	IsProcessed(ctx context.Context, agentID, marketID string) (bool, error)
	CountByAgent(ctx context.Context, agentID string) (int, error)
}

// Transactor runs fn inside a database transaction. Stores resolve the
// transaction from the context, so calls inside fn share one unit of work.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
