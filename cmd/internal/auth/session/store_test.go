package session

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryRefreshTokenStore_RegisterAndLookup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()

	if err := store.Register(ctx, "tok-1", "user-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ok, err := store.IsValid(ctx, "tok-1")
	if err != nil || !ok {
		t.Fatalf("IsValid: ok=%v err=%v", ok, err)
	}

	owner, err := store.OwnerOf(ctx, "tok-1")
	if err != nil {
		t.Fatalf("OwnerOf: %v", err)
	}
	if owner != "user-1" {
		t.Fatalf("owner mismatch: %q", owner)
	}
}

func TestMemoryRefreshTokenStore_UnknownToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()

	ok, err := store.IsValid(ctx, "never-registered")
	if err != nil || ok {
		t.Fatalf("expected unknown token to be invalid: ok=%v err=%v", ok, err)
	}

	if _, err := store.OwnerOf(ctx, "never-registered"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestMemoryRefreshTokenStore_RevokeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()

	if err := store.Register(ctx, "tok-1", "user-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := store.Revoke(ctx, "tok-1"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := store.Revoke(ctx, "tok-1"); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if err := store.Revoke(ctx, "never-registered"); err != nil {
		t.Fatalf("Revoke of unknown token: %v", err)
	}

	if ok, _ := store.IsValid(ctx, "tok-1"); ok {
		t.Fatalf("expected revoked token to be invalid")
	}
	if store.Count() != 0 {
		t.Fatalf("expected empty store, got %d entries", store.Count())
	}
}

func TestMemoryRefreshTokenStore_TokensAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()

	if err := store.Register(ctx, "tok-a", "user-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := store.Register(ctx, "tok-b", "user-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := store.Revoke(ctx, "tok-a"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	if ok, _ := store.IsValid(ctx, "tok-b"); !ok {
		t.Fatalf("revoking one token must not touch the user's other tokens")
	}
}
