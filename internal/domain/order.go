package domain

import (
	"context"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeGTD OrderType = "GTD" // Good-Till-Date
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// OrderStatus tracks the order lifecycle. Legal transitions:
//
//	PENDING   -> SUBMITTED | REJECTED
//	SUBMITTED -> PARTIAL | FILLED | CANCELLED | REJECTED | EXPIRED
//	PARTIAL   -> FILLED | CANCELLED | EXPIRED
//
// FILLED, CANCELLED, REJECTED and EXPIRED are terminal.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderSubmitted OrderStatus = "submitted"
	OrderPartial   OrderStatus = "partial"
	OrderFilled    OrderStatus = "filled"
	OrderCancelled OrderStatus = "cancelled"
	OrderRejected  OrderStatus = "rejected"
	OrderExpired   OrderStatus = "expired"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:   {OrderSubmitted, OrderRejected},
	OrderSubmitted: {OrderPartial, OrderFilled, OrderCancelled, OrderRejected, OrderExpired},
	OrderPartial:   {OrderFilled, OrderCancelled, OrderExpired},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, t := range orderTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status has no outgoing edges.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// OrderRequest is the ephemeral instruction produced by the order generator.
// It is not persisted directly; the execution engine turns it into an Order.
type OrderRequest struct {
	MarketID  string
	TokenID   string
	Outcome   Outcome
	Side      OrderSide
	OrderType OrderType
	Price     float64 // limit price, already slippage-adjusted
	Size      float64 // shares
	SignalID  string  // optional
}

// Order is the persisted record of a submission attempt against the exchange.
type Order struct {
	ID              string
	AccountID       string
	MarketID        string
	SignalID        string // empty when not signal-driven
	ExternalOrderID string // set once the exchange accepts the order
	TokenID         string
	Outcome         Outcome
	Side            OrderSide
	OrderType       OrderType
	Price           float64
	Size            float64
	FilledSize      float64
	AvgFillPrice    float64
	Status          OrderStatus
	ErrorMessage    string
	Attempts        int
	LatencyMs       int64
	CreatedAt       time.Time
	SubmittedAt     *time.Time
	FilledAt        *time.Time
	CancelledAt     *time.Time
}

// OrderResult summarises one execution engine run for a request.
type OrderResult struct {
	Success         bool
	OrderID         string
	ExternalOrderID string
	Status          OrderStatus
	Error           string
	Attempts        int
	LatencyMs       int64
}

// OrderSpec is the wire-level order handed to the transport for submission.
type OrderSpec struct {
	TokenID   string
	Side      OrderSide
	OrderType OrderType
	Price     float64
	Size      float64
}

// Submission is the transport's answer to a successful submit.
type Submission struct {
	ExternalOrderID string
	AcceptedPrice   float64
}

// OrderTransport submits and cancels orders against an external exchange for
// one account. Errors must be classifiable: rate limiting surfaces as
// ErrRateLimited, unrecoverable balance problems as ErrInsufficientFunds.
type OrderTransport interface {
	Submit(ctx context.Context, spec OrderSpec) (Submission, error)
	Cancel(ctx context.Context, externalOrderID string) error
	CancelAll(ctx context.Context) (int, error)
}

// TransportFactory builds (and caches) an OrderTransport per account.
type TransportFactory interface {
	ForAccount(ctx context.Context, accountID string) (OrderTransport, error)
}

// Fill is a trade execution reported by the exchange for one of our orders.
type Fill struct {
	ExternalOrderID string
	TokenID         string
	Side            OrderSide
	Price           float64
	Size            float64
	Timestamp       time.Time
}
