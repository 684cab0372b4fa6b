package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voidlabs/voidbot/internal/domain"
)

// MarketCache implements domain.MarketCache using JSON-serialised snapshots
// under per-market string keys with a caller-chosen TTL.
//
// Key schema:
//
//	mkt:{marketID} - JSON MarketSnapshot
type MarketCache struct {
	rdb *redis.Client
}

// NewMarketCache creates a MarketCache backed by the given Client.
func NewMarketCache(c *Client) *MarketCache {
	return &MarketCache{rdb: c.Underlying()}
}

func marketKey(id string) string { return "mkt:" + id }

// Get retrieves a cached snapshot. It returns domain.ErrNotFound when the
// key is missing or has expired.
func (mc *MarketCache) Get(ctx context.Context, marketID string) (*domain.MarketSnapshot, error) {
	data, err := mc.rdb.Get(ctx, marketKey(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get market %s: %w", marketID, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("redis: unmarshal market %s: %w", marketID, err)
	}
	return &snap, nil
}

// Set stores a snapshot with the given TTL.
func (mc *MarketCache) Set(ctx context.Context, m *domain.MarketSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.ID, err)
	}
	if err := mc.rdb.Set(ctx, marketKey(m.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.ID, err)
	}
	return nil
}

// Invalidate drops a cached snapshot. Missing keys are not an error.
func (mc *MarketCache) Invalidate(ctx context.Context, marketID string) error {
	if err := mc.rdb.Del(ctx, marketKey(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", marketID, err)
	}
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
