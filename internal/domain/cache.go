package domain

import (
	"context"
	"time"
)

// MarketCache keeps recently fetched market snapshots with a TTL so repeated
// scans inside one interval do not hammer the upstream API.
type MarketCache interface {
	Get(ctx context.Context, marketID string) (*MarketSnapshot, error)
	Set(ctx context.Context, m *MarketSnapshot, ttl time.Duration) error
	Invalidate(ctx context.Context, marketID string) error
}

// RateLimiter throttles calls against a named resource.
type RateLimiter interface {
	// Allow reports whether one more call under key is permitted right now.
	Allow(ctx context.Context, key string) (bool, error)
	// Wait blocks until a call is permitted or the context is done.
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed mutual exclusion. Acquire returns
// ErrLockHeld when another holder owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Unlocker, error)
}

// Unlocker releases a held lock.
type Unlocker interface {
	Unlock(ctx context.Context) error
	// Refresh extends the lock's TTL while long work is in flight.
	Refresh(ctx context.Context, ttl time.Duration) error
}
