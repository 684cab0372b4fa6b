package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voidlabs/voidbot/internal/domain"
)

// AgentStore implements domain.AgentStore using PostgreSQL. Strategy params
// live in a JSONB column so new tunables do not need a migration.
type AgentStore struct {
	client *Client
}

// NewAgentStore creates an AgentStore backed by the given client.
func NewAgentStore(client *Client) *AgentStore {
	return &AgentStore{client: client}
}

const agentCols = `id, account_id, name, status, strategy_name, config,
	error_message, created_at, updated_at, started_at, stopped_at,
	last_cycle_at`

// Create inserts a new agent.
func (s *AgentStore) Create(ctx context.Context, a *domain.Agent) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("postgres: marshal agent config: %w", err)
	}

	const query = `
		INSERT INTO agents (` + agentCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = s.client.db(ctx).Exec(ctx, query,
		a.ID, a.AccountID, a.Name, string(a.Status), a.StrategyName, cfg,
		a.ErrorMessage, a.CreatedAt, a.UpdatedAt,
		a.StartedAt, a.StoppedAt, a.LastCycleAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create agent %s: %w", a.ID, err)
	}
	return nil
}

// Get returns an agent by ID.
func (s *AgentStore) Get(ctx context.Context, id string) (*domain.Agent, error) {
	row := s.client.db(ctx).QueryRow(ctx,
		`SELECT `+agentCols+` FROM agents WHERE id = $1`, id)
	a, err := scanAgent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: agent %s: %w", id, domain.ErrNotFound)
	}
	return a, err
}

// Update persists the mutable fields of an agent.
func (s *AgentStore) Update(ctx context.Context, a *domain.Agent) error {
	cfg, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("postgres: marshal agent config: %w", err)
	}

	const query = `
		UPDATE agents SET
			name = $2, status = $3, strategy_name = $4, config = $5,
			error_message = $6, updated_at = $7, started_at = $8,
			stopped_at = $9, last_cycle_at = $10
		WHERE id = $1`

	tag, err := s.client.db(ctx).Exec(ctx, query,
		a.ID, a.Name, string(a.Status), a.StrategyName, cfg,
		a.ErrorMessage, a.UpdatedAt, a.StartedAt, a.StoppedAt, a.LastCycleAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update agent %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns agents, oldest first.
func (s *AgentStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Agent, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+agentCols+` FROM agents
		 ORDER BY created_at ASC
		 LIMIT $1 OFFSET $2`,
		limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents: %w", err)
	}
	return scanAgents(rows)
}

// ListByStatus returns every agent in the given status. Used at startup to
// resume agents that were running before a restart.
func (s *AgentStore) ListByStatus(ctx context.Context, status domain.AgentStatus) ([]*domain.Agent, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+agentCols+` FROM agents
		 WHERE status = $1
		 ORDER BY created_at ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("postgres: list agents by status: %w", err)
	}
	return scanAgents(rows)
}

func scanAgent(row pgx.Row) (*domain.Agent, error) {
	var a domain.Agent
	var status string
	var cfg []byte
	err := row.Scan(
		&a.ID, &a.AccountID, &a.Name, &status, &a.StrategyName, &cfg,
		&a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt,
		&a.StartedAt, &a.StoppedAt, &a.LastCycleAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.AgentStatus(status)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &a.Config); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal agent config: %w", err)
		}
	}
	return &a, nil
}

func scanAgents(rows pgx.Rows) ([]*domain.Agent, error) {
	defer rows.Close()
	var out []*domain.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
