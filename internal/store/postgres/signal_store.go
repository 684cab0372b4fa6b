package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voidlabs/voidbot/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	client *Client
}

// NewSignalStore creates a SignalStore backed by the given client.
func NewSignalStore(client *Client) *SignalStore {
	return &SignalStore{client: client}
}

const signalCols = `id, agent_id, market_id, predicted_outcome, entry_price,
	expected_payout, profit_margin, confidence, verification_source,
	reasoning, status, detected_at, executed_at, expired_at`

// Create inserts a new signal.
func (s *SignalStore) Create(ctx context.Context, sig *domain.Signal) error {
	const query = `
		INSERT INTO signals (` + signalCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.client.db(ctx).Exec(ctx, query,
		sig.ID, sig.AgentID, sig.MarketID, string(sig.PredictedOutcome),
		sig.EntryPrice, sig.ExpectedPayout, sig.ProfitMargin,
		sig.Confidence, sig.VerificationSource, sig.Reasoning,
		string(sig.Status), sig.DetectedAt, sig.ExecutedAt, sig.ExpiredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create signal %s: %w", sig.ID, err)
	}
	return nil
}

// Get returns a signal by ID.
func (s *SignalStore) Get(ctx context.Context, id string) (*domain.Signal, error) {
	row := s.client.db(ctx).QueryRow(ctx,
		`SELECT `+signalCols+` FROM signals WHERE id = $1`, id)
	sig, err := scanSignal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: signal %s: %w", id, domain.ErrNotFound)
	}
	return sig, err
}

// Update persists the mutable fields of a signal.
func (s *SignalStore) Update(ctx context.Context, sig *domain.Signal) error {
	const query = `
		UPDATE signals SET
			entry_price = $2, profit_margin = $3, confidence = $4,
			verification_source = $5, reasoning = $6, status = $7,
			executed_at = $8, expired_at = $9
		WHERE id = $1`

	tag, err := s.client.db(ctx).Exec(ctx, query,
		sig.ID, sig.EntryPrice, sig.ProfitMargin, sig.Confidence,
		sig.VerificationSource, sig.Reasoning, string(sig.Status),
		sig.ExecutedAt, sig.ExpiredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update signal %s: %w", sig.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByAgent returns the agent's signals, newest first.
func (s *SignalStore) ListByAgent(ctx context.Context, agentID string, opts domain.ListOpts) ([]*domain.Signal, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+signalCols+` FROM signals
		 WHERE agent_id = $1
		 ORDER BY detected_at DESC
		 LIMIT $2 OFFSET $3`,
		agentID, limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals by agent: %w", err)
	}
	return scanSignals(rows)
}

// ListByStatus returns signals in the given status, oldest first.
func (s *SignalStore) ListByStatus(ctx context.Context, status domain.SignalStatus, opts domain.ListOpts) ([]*domain.Signal, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+signalCols+` FROM signals
		 WHERE status = $1
		 ORDER BY detected_at ASC
		 LIMIT $2 OFFSET $3`,
		string(status), limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals by status: %w", err)
	}
	return scanSignals(rows)
}

// ListTerminalBefore returns terminal signals detected before cutoff, for
// archival.
func (s *SignalStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Signal, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+signalCols+` FROM signals
		 WHERE status IN ('executed', 'expired', 'rejected')
		   AND detected_at < $1
		 ORDER BY detected_at ASC
		 LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal signals: %w", err)
	}
	return scanSignals(rows)
}

// DeleteByIDs removes signals after archival.
func (s *SignalStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.client.db(ctx).Exec(ctx,
		`DELETE FROM signals WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSignal(row pgx.Row) (*domain.Signal, error) {
	var sig domain.Signal
	var outcome, status string
	err := row.Scan(
		&sig.ID, &sig.AgentID, &sig.MarketID, &outcome, &sig.EntryPrice,
		&sig.ExpectedPayout, &sig.ProfitMargin, &sig.Confidence,
		&sig.VerificationSource, &sig.Reasoning, &status,
		&sig.DetectedAt, &sig.ExecutedAt, &sig.ExpiredAt,
	)
	if err != nil {
		return nil, err
	}
	sig.PredictedOutcome = domain.Outcome(outcome)
	sig.Status = domain.SignalStatus(status)
	return &sig, nil
}

func scanSignals(rows pgx.Rows) ([]*domain.Signal, error) {
	defer rows.Close()
	var out []*domain.Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// limitOf applies the default page size.
func limitOf(opts domain.ListOpts) int {
	if opts.Limit <= 0 {
		return 100
	}
	return opts.Limit
}
