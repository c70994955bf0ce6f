package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// KeyStore abstracts the projects table for testability.
type KeyStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*KeyRecord, error)
}

// KeyRecord is the stored form of an API key.
type KeyRecord struct {
	ProjectID  string
	APIKeyHash string
}

type sqlKeyStore struct {
	db *sql.DB
}

func (s *sqlKeyStore) LookupByPrefix(ctx context.Context, prefix string) (*KeyRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, api_key_hash
		FROM projects
		WHERE api_key_prefix = $1
	`, prefix)

	var r KeyRecord
	if err := row.Scan(&r.ProjectID, &r.APIKeyHash); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresAuthenticator validates API keys against bcrypt hashes in the
// projects table. It fails closed: a lookup error rejects the call.
type PostgresAuthenticator struct {
	store  KeyStore
	cache  *keyCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	return NewPostgresAuthenticatorWithStore(&sqlKeyStore{db: cfg.DB}, cfg.CacheTTL, cfg.Logger)
}

// NewPostgresAuthenticatorWithStore creates an authenticator over a custom store.
func NewPostgresAuthenticatorWithStore(store KeyStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  store,
		cache:  newKeyCache(cacheTTL),
		logger: logger,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*Caller, error) {
	if res := a.cache.get(apiKey); res.Hit {
		if res.NeedsRefresh {
			go a.refreshInBackground(apiKey)
		}
		return res.Caller, nil
	}

	caller, err := a.authenticateFromDB(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("Authenticate: %w", err)
	}
	a.cache.set(apiKey, caller)
	return caller, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, apiKey string) (*Caller, error) {
	if len(apiKey) < lookupPrefixLen {
		return nil, ErrUnauthenticated
	}

	rec, err := a.store.LookupByPrefix(ctx, apiKey[:lookupPrefixLen])
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(rec.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrUnauthenticated
	}
	return &Caller{ProjectID: rec.ProjectID}, nil
}

// refreshInBackground revalidates a stale key. A key that no longer
// validates is evicted so the next call is rejected.
func (a *PostgresAuthenticator) refreshInBackground(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	caller, err := a.authenticateFromDB(ctx, apiKey)
	switch {
	case errors.Is(err, ErrUnauthenticated):
		a.cache.delete(apiKey)
	case err != nil:
		a.logger.Warn("background auth refresh failed", zap.Error(err))
	default:
		a.cache.set(apiKey, caller)
	}
}
