package domain

import "errors"

// Sentinel errors shared across stores, transports and engines. Callers
// classify failures with errors.Is; wrapping with %w preserves context.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidOrder      = errors.New("invalid order")
	ErrDuplicateOrder    = errors.New("duplicate order for signal")

	ErrLockHeld      = errors.New("lock held by another runner")
	ErrAgentRunning  = errors.New("agent already running")
	ErrAgentStopped  = errors.New("agent not running")
	ErrMarketClosed  = errors.New("market closed")
	ErrSourceTripped = errors.New("market source unavailable")
)
