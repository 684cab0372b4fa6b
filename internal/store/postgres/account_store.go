package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voidlabs/voidbot/internal/domain"
)

// AccountStore implements domain.AccountStore using PostgreSQL.
type AccountStore struct {
	client *Client
}

// NewAccountStore creates an AccountStore backed by the given client.
func NewAccountStore(client *Client) *AccountStore {
	return &AccountStore{client: client}
}

const accountCols = `id, name, wallet_address, encrypted_private_key,
	api_key, api_secret, api_passphrase, status, created_at, updated_at`

// Create inserts a new account.
func (s *AccountStore) Create(ctx context.Context, a *domain.Account) error {
	const query = `
		INSERT INTO accounts (` + accountCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.client.db(ctx).Exec(ctx, query,
		a.ID, a.Name, a.WalletAddress, a.EncryptedPrivateKey,
		a.APIKey, a.APISecret, a.APIPassphrase,
		string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create account %s: %w", a.ID, err)
	}
	return nil
}

// Get returns an account by ID.
func (s *AccountStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	row := s.client.db(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("postgres: account %s: %w", id, domain.ErrNotFound)
	}
	return a, err
}

// Update persists the mutable fields of an account.
func (s *AccountStore) Update(ctx context.Context, a *domain.Account) error {
	const query = `
		UPDATE accounts SET
			name = $2, api_key = $3, api_secret = $4, api_passphrase = $5,
			status = $6, updated_at = $7
		WHERE id = $1`

	tag, err := s.client.db(ctx).Exec(ctx, query,
		a.ID, a.Name, a.APIKey, a.APISecret, a.APIPassphrase,
		string(a.Status), a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update account %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns accounts, oldest first.
func (s *AccountStore) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Account, error) {
	rows, err := s.client.db(ctx).Query(ctx,
		`SELECT `+accountCols+` FROM accounts
		 ORDER BY created_at ASC
		 LIMIT $1 OFFSET $2`,
		limitOf(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list accounts: %w", err)
	}
	defer rows.Close()

	var out []*domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var status string
	err := row.Scan(
		&a.ID, &a.Name, &a.WalletAddress, &a.EncryptedPrivateKey,
		&a.APIKey, &a.APISecret, &a.APIPassphrase,
		&status, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = domain.AccountStatus(status)
	return &a, nil
}
