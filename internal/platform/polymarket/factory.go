package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voidlabs/voidbot/internal/config"
	"github.com/voidlabs/voidbot/internal/crypto"
	"github.com/voidlabs/voidbot/internal/domain"
)

// Factory builds one authenticated ClobClient per account and caches it.
// Account private keys stay encrypted in the store; they are unsealed here,
// used to construct the signer, and never leave this package.
type Factory struct {
	cfg      config.PolymarketConfig
	accounts domain.AccountStore
	vault    *crypto.KeyVault
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]*ClobClient
}

// NewFactory creates a transport factory.
func NewFactory(cfg config.PolymarketConfig, accounts domain.AccountStore, vault *crypto.KeyVault, logger *slog.Logger) *Factory {
	return &Factory{
		cfg:      cfg,
		accounts: accounts,
		vault:    vault,
		logger:   logger.With(slog.String("component", "polymarket.factory")),
		cache:    map[string]*ClobClient{},
	}
}

// ForAccount returns the transport for accountID, building and
// authenticating it on first use.
func (f *Factory) ForAccount(ctx context.Context, accountID string) (domain.OrderTransport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.cache[accountID]; ok {
		return client, nil
	}

	account, err := f.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	if account.Status != domain.AccountActive {
		return nil, fmt.Errorf("account %s is %s: %w", accountID, account.Status, domain.ErrUnauthorized)
	}

	keyHex, err := f.vault.Open(account.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("unseal key for account %s: %w", accountID, err)
	}
	signer, err := crypto.NewSigner(string(keyHex), f.cfg.ChainID)
	if err != nil {
		return nil, fmt.Errorf("build signer for account %s: %w", accountID, err)
	}

	var hmacAuth *crypto.HMACAuth
	if account.APIKey != "" {
		hmacAuth = &crypto.HMACAuth{
			Key:        account.APIKey,
			Secret:     account.APISecret,
			Passphrase: account.APIPassphrase,
		}
	}
	client := NewClobClient(f.cfg.ClobHost, signer, hmacAuth, f.cfg.SignatureType)
	if hmacAuth == nil {
		if err := client.DeriveAPIKey(ctx); err != nil {
			return nil, fmt.Errorf("derive api key for account %s: %w", accountID, err)
		}
		f.logger.Info("derived api key", slog.String("account_id", accountID))
	}

	f.cache[accountID] = client
	return client, nil
}

// Stream opens a user-channel fill stream for the account's credentials.
func (f *Factory) Stream(ctx context.Context, accountID string, handler FillHandler) (*UserStream, error) {
	transport, err := f.ForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	client := transport.(*ClobClient)
	auth := client.Credentials()
	if auth == nil {
		return nil, fmt.Errorf("account %s has no api credentials", accountID)
	}
	stream := NewUserStream(f.cfg.WsHost, auth, handler, f.logger)
	if err := stream.Connect(ctx); err != nil {
		return nil, err
	}
	return stream, nil
}
