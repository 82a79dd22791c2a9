package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"axon/cmd/security/token"
)

// Integration tests are enabled when AXON_DATABASE_URL is set.
// The target database must already carry the migrated axon schema.

func newIntegrationPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("AXON_DATABASE_URL")
	if dbURL == "" {
		t.Skip("AXON_DATABASE_URL is not set; skipping Postgres integration test")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	t.Cleanup(pool.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		t.Skipf("Postgres unreachable: %v", err)
	}
	return pool
}

func TestPostgresRefreshTokenStore_Lifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := newIntegrationPool(ctx, t)

	store, err := NewPostgresRefreshTokenStore(pool, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewPostgresRefreshTokenStore: %v", err)
	}

	userID := ulid.Make().String()
	refreshToken := fmt.Sprintf("it-refresh-%s", ulid.Make())
	t.Cleanup(func() { _ = store.Revoke(ctx, refreshToken) })

	if err := store.Register(ctx, refreshToken, userID); err != nil {
		t.Fatalf("Register: %v", err)
	}

	owner, err := store.OwnerOf(ctx, refreshToken)
	if err != nil {
		t.Fatalf("OwnerOf: %v", err)
	}
	if owner != userID {
		t.Fatalf("owner mismatch: got %q want %q", owner, userID)
	}

	ok, err := store.IsValid(ctx, refreshToken)
	if err != nil || !ok {
		t.Fatalf("IsValid: ok=%v err=%v", ok, err)
	}

	if err := store.Revoke(ctx, refreshToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := store.OwnerOf(ctx, refreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after revoke, got %v", err)
	}
	if err := store.Revoke(ctx, refreshToken); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
}

func TestPostgresRefreshTokenStore_ExpiredRowsAreInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := newIntegrationPool(ctx, t)

	// A non-positive TTL is rejected, so register through a short-TTL store
	// and backdate the row directly.
	store, err := NewPostgresRefreshTokenStore(pool, time.Minute)
	if err != nil {
		t.Fatalf("NewPostgresRefreshTokenStore: %v", err)
	}

	refreshToken := fmt.Sprintf("it-expired-%s", ulid.Make())
	t.Cleanup(func() { _ = store.Revoke(ctx, refreshToken) })

	if err := store.Register(ctx, refreshToken, ulid.Make().String()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := pool.Exec(ctx,
		`UPDATE axon.refresh_tokens SET expires_at = now() - interval '1 hour' WHERE token_hash = $1`,
		token.HashRefreshTokenHex(refreshToken)); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	ok, err := store.IsValid(ctx, refreshToken)
	if err != nil {
		t.Fatalf("IsValid: %v", err)
	}
	if ok {
		t.Fatalf("expected expired registration to be invalid")
	}

	purged, err := store.Purge(ctx)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if purged < 1 {
		t.Fatalf("expected Purge to remove the expired row")
	}
}
