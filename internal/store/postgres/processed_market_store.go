package postgres

import (
	"context"
	"fmt"
	"time"
)

// ProcessedMarketStore implements domain.ProcessedMarketStore using
// PostgreSQL.
type ProcessedMarketStore struct {
	client *Client
}

// NewProcessedMarketStore creates a ProcessedMarketStore backed by the given
// client.
func NewProcessedMarketStore(client *Client) *ProcessedMarketStore {
	return &ProcessedMarketStore{client: client}
}

// Mark records that the agent has evaluated the market. Marking twice is a
// no-op.
func (s *ProcessedMarketStore) Mark(ctx context.Context, agentID, marketID string, at time.Time) error {
	_, err := s.client.db(ctx).Exec(ctx,
		`INSERT INTO processed_markets (agent_id, market_id, processed_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (agent_id, market_id) DO NOTHING`,
		agentID, marketID, at)
	if err != nil {
		return fmt.Errorf("postgres: mark processed market: %w", err)
	}
	return nil
}

// IsProcessed reports whether the agent already evaluated the market.
func (s *ProcessedMarketStore) IsProcessed(ctx context.Context, agentID, marketID string) (bool, error) {
	var exists bool
	err := s.client.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM processed_markets
			WHERE agent_id = $1 AND market_id = $2
		)`,
		agentID, marketID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check processed market: %w", err)
	}
	return exists, nil
}

// CountByAgent returns how many markets the agent has processed.
func (s *ProcessedMarketStore) CountByAgent(ctx context.Context, agentID string) (int, error) {
	var n int
	err := s.client.db(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM processed_markets WHERE agent_id = $1`,
		agentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count processed markets: %w", err)
	}
	return n, nil
}
