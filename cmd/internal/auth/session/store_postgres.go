package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"axon/cmd/security/token"
)

// PostgresRefreshTokenStore persists refresh-token registrations in Postgres
// so that logins survive process restarts and multiple instances can share
// one store of record.
//
// Schema (created by the embedded migrations):
//
//	CREATE TABLE axon.refresh_tokens (
//	    token_hash  TEXT PRIMARY KEY,
//	    user_id     TEXT NOT NULL,
//	    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    expires_at  TIMESTAMPTZ NOT NULL
//	);
type PostgresRefreshTokenStore struct {
	pool   *pgxpool.Pool
	schema string
	ttl    time.Duration
}

// PostgresStoreOption configures a PostgresRefreshTokenStore.
type PostgresStoreOption func(*PostgresRefreshTokenStore)

// WithSchema overrides the default "axon" schema.
func WithSchema(schema string) PostgresStoreOption {
	return func(s *PostgresRefreshTokenStore) { s.schema = schema }
}

// NewPostgresRefreshTokenStore constructs a store over pool. Rows are stamped
// with expires_at = now + ttl so Purge can clear tokens the signature check
// would reject anyway.
func NewPostgresRefreshTokenStore(pool *pgxpool.Pool, ttl time.Duration, opts ...PostgresStoreOption) (*PostgresRefreshTokenStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil pool")
	}
	if ttl <= 0 {
		return nil, ErrConfig
	}

	s := &PostgresRefreshTokenStore{pool: pool, schema: "axon", ttl: ttl}
	for _, opt := range opts {
		opt(s)
	}
	if !pgIdentIsValid(s.schema) {
		return nil, fmt.Errorf("session: invalid schema %q", s.schema)
	}
	return s, nil
}

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func pgIdentIsValid(s string) bool { return pgIdentRe.MatchString(s) }

func (s *PostgresRefreshTokenStore) table() string {
	return s.schema + ".refresh_tokens"
}

// Register implements RefreshTokenStore.
func (s *PostgresRefreshTokenStore) Register(ctx context.Context, refreshToken, userID string) error {
	hash := token.HashRefreshTokenHex(refreshToken)
	expiresAt := time.Now().UTC().Add(s.ttl)

	q := fmt.Sprintf(`
		INSERT INTO %s (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE
		SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at
	`, s.table())

	if _, err := s.pool.Exec(ctx, q, hash, userID, expiresAt); err != nil {
		return fmt.Errorf("session: register refresh token: %w", err)
	}
	return nil
}

// IsValid implements RefreshTokenStore.
func (s *PostgresRefreshTokenStore) IsValid(ctx context.Context, refreshToken string) (bool, error) {
	_, err := s.OwnerOf(ctx, refreshToken)
	if errors.Is(err, ErrInvalidToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// OwnerOf implements RefreshTokenStore.
func (s *PostgresRefreshTokenStore) OwnerOf(ctx context.Context, refreshToken string) (string, error) {
	hash := token.HashRefreshTokenHex(refreshToken)

	q := fmt.Sprintf(`
		SELECT user_id FROM %s
		WHERE token_hash = $1 AND expires_at > now()
	`, s.table())

	var userID string
	err := s.pool.QueryRow(ctx, q, hash).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("session: lookup refresh token: %w", err)
	}
	return userID, nil
}

// Revoke implements RefreshTokenStore.
func (s *PostgresRefreshTokenStore) Revoke(ctx context.Context, refreshToken string) error {
	hash := token.HashRefreshTokenHex(refreshToken)

	q := fmt.Sprintf(`DELETE FROM %s WHERE token_hash = $1`, s.table())
	if _, err := s.pool.Exec(ctx, q, hash); err != nil {
		return fmt.Errorf("session: revoke refresh token: %w", err)
	}
	return nil
}

// Purge deletes expired registrations and returns how many were removed.
func (s *PostgresRefreshTokenStore) Purge(ctx context.Context) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE expires_at <= now()`, s.table())
	tag, err := s.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("session: purge refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
