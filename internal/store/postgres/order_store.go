package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voidlabs/voidbot/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	client *Client
}

// NewOrderStore creates an OrderStore backed by the given client.
func NewOrderStore(client *Client) *OrderStore {
	return &OrderStore{client: client}
}

const orderCols = `id, account_id, market_id, signal_id, external_order_id,
	token_id, outcome, side, order_type, price, size, filled_size,
	avg_fill_price, status, error_message, attempts, latency_ms,
	created_at, submitted_at, filled_at, cancelled_at`

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o *domain.Order) error {
	const query = `
		INSERT INTO orders (` + orderCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := s.client.db(ctx).Exec(ctx, query,
		o.ID, o.AccountID, o.MarketID, nullIfEmpty(o.SignalID),
		o.ExternalOrderID, o.TokenID, string(o.Outcome), string(o.Side),
		string(o.OrderType), o.Price, o.Size, o.FilledSize, o.AvgFillPrice,
		string(o.Status), o.ErrorMessage, o.Attempts, o.LatencyMs,
		o.CreatedAt, o.SubmittedAt, o.FilledAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// Get returns an order by ID.
func (s *OrderStore) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := s.client.db(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: order %s: %w", id, domain.ErrNotFound)
	}
	return o, err
}

// GetByExternalID returns the order carrying the exchange's order ID.
func (s *OrderStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Order, error) {
	row := s.client.db(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE external_order_id = $1`, externalID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: order by external id %s: %w", externalID, domain.ErrNotFound)
	}
	return o, err
}

// Update persists the mutable fields of an order.
func (s *OrderStore) Update(ctx context.Context, o *domain.Order) error {
	const query = `
		UPDATE orders SET
			external_order_id = $2, price = $3, filled_size = $4,
			avg_fill_price = $5, status = $6, error_message = $7,
			attempts = $8, latency_ms = $9, submitted_at = $10,
			filled_at = $11, cancelled_at = $12
		WHERE id = $1`

	tag, err := s.client.db(ctx).Exec(ctx, query,
		o.ID, o.ExternalOrderID, o.Price, o.FilledSize, o.AvgFillPrice,
		string(o.Status), o.ErrorMessage, o.Attempts, o.LatencyMs,
		o.SubmittedAt, o.FilledAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByAccount returns the account's orders, newest first.
func (s *OrderStore) ListByAccount(ctx context.Context, accountID string, opts domain.ListOpts) ([]*domain.Order, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		accountID, limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by account: %w", err)
	}
	return scanOrders(rows)
}

// GetActiveBySignal returns the non-terminal order for (account, signal). The
// partial unique index uniq_orders_active_signal guarantees at most one row.
func (s *OrderStore) GetActiveBySignal(ctx context.Context, accountID, signalID string) (*domain.Order, error) {
	row := s.client.db(ctx).QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE account_id = $1 AND signal_id = $2
		   AND status NOT IN ('filled', 'cancelled', 'rejected', 'expired')`,
		accountID, signalID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: active order for signal %s: %w", signalID, domain.ErrNotFound)
	}
	return o, err
}

// ListByStatus returns orders in the given status, oldest first.
func (s *OrderStore) ListByStatus(ctx context.Context, status domain.OrderStatus, opts domain.ListOpts) ([]*domain.Order, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT $2 OFFSET $3`,
		string(status), limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by status: %w", err)
	}
	return scanOrders(rows)
}

// ListOpenByAccount returns the account's non-terminal orders.
func (s *OrderStore) ListOpenByAccount(ctx context.Context, accountID string) ([]*domain.Order, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE account_id = $1
		   AND status NOT IN ('filled', 'cancelled', 'rejected', 'expired')
		 ORDER BY created_at ASC`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open orders: %w", err)
	}
	return scanOrders(rows)
}

// ListTerminalBefore returns terminal orders created before cutoff, for
// archival.
func (s *OrderStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE status IN ('filled', 'cancelled', 'rejected', 'expired')
		   AND created_at < $1
		 ORDER BY created_at ASC
		 LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal orders: %w", err)
	}
	return scanOrders(rows)
}

// DeleteByIDs removes orders after archival.
func (s *OrderStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.client.db(ctx).Exec(ctx,
		`DELETE FROM orders WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete orders: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var signalID *string
	var outcome, side, orderType, status string
	err := row.Scan(
		&o.ID, &o.AccountID, &o.MarketID, &signalID, &o.ExternalOrderID,
		&o.TokenID, &outcome, &side, &orderType, &o.Price, &o.Size,
		&o.FilledSize, &o.AvgFillPrice, &status, &o.ErrorMessage,
		&o.Attempts, &o.LatencyMs, &o.CreatedAt, &o.SubmittedAt,
		&o.FilledAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	if signalID != nil {
		o.SignalID = *signalID
	}
	o.Outcome = domain.Outcome(outcome)
	o.Side = domain.OrderSide(side)
	o.OrderType = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

func scanOrders(rows pgx.Rows) ([]*domain.Order, error) {
	defer rows.Close()
	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// nullIfEmpty maps the empty string to SQL NULL for nullable UUID columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
