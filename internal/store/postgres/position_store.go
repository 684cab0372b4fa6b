package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voidlabs/voidbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	client *Client
}

// NewPositionStore creates a PositionStore backed by the given client.
func NewPositionStore(client *Client) *PositionStore {
	return &PositionStore{client: client}
}

const positionCols = `id, account_id, market_id, token_id, side, size,
	avg_entry_price, current_price, realized_pnl, created_at, updated_at,
	closed_at`

// Create inserts a new position. The uniq_positions_open index rejects a
// second open position for the same (account, market, side).
func (s *PositionStore) Create(ctx context.Context, p *domain.Position) error {
	const query = `
		INSERT INTO positions (` + positionCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.client.db(ctx).Exec(ctx, query,
		p.ID, p.AccountID, p.MarketID, p.TokenID, string(p.Side),
		p.Size, p.AvgEntryPrice, p.CurrentPrice, p.RealizedPnl,
		p.CreatedAt, p.UpdatedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Get returns a position by ID.
func (s *PositionStore) Get(ctx context.Context, id string) (*domain.Position, error) {
	row := s.client.db(ctx).QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1`, id)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
	}
	return p, err
}

// GetOpen returns the open position for (account, market, side), or
// ErrNotFound.
func (s *PositionStore) GetOpen(ctx context.Context, accountID, marketID string, side domain.Outcome) (*domain.Position, error) {
	row := s.client.db(ctx).QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE account_id = $1 AND market_id = $2 AND side = $3
		   AND closed_at IS NULL`,
		accountID, marketID, string(side))
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: open position %s/%s: %w", marketID, side, domain.ErrNotFound)
	}
	return p, err
}

// Update persists the mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p *domain.Position) error {
	const query = `
		UPDATE positions SET
			size = $2, avg_entry_price = $3, current_price = $4,
			realized_pnl = $5, updated_at = $6, closed_at = $7
		WHERE id = $1`

	tag, err := s.client.db(ctx).Exec(ctx, query,
		p.ID, p.Size, p.AvgEntryPrice, p.CurrentPrice,
		p.RealizedPnl, p.UpdatedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpenByAccount returns the account's open positions.
func (s *PositionStore) ListOpenByAccount(ctx context.Context, accountID string) ([]*domain.Position, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE account_id = $1 AND closed_at IS NULL
		 ORDER BY created_at ASC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var side string
	err := row.Scan(
		&p.ID, &p.AccountID, &p.MarketID, &p.TokenID, &side, &p.Size,
		&p.AvgEntryPrice, &p.CurrentPrice, &p.RealizedPnl,
		&p.CreatedAt, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Side = domain.Outcome(side)
	return &p, nil
}
