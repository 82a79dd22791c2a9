package session

import (
	"context"
	"sync"

	"axon/cmd/security/token"
)

// RefreshTokenStore records which refresh tokens are currently honored.
//
// Only token hashes are handed to implementations; the plaintext never
// reaches a durable store. Revoke is idempotent: revoking an unknown token
// is not an error.
type RefreshTokenStore interface {
	// Register marks a freshly issued refresh token as valid for userID.
	Register(ctx context.Context, refreshToken, userID string) error

	// IsValid reports whether the refresh token is currently registered.
	IsValid(ctx context.Context, refreshToken string) (bool, error)

	// OwnerOf returns the user id the refresh token was registered for.
	// Returns ErrInvalidToken when the token is not registered.
	OwnerOf(ctx context.Context, refreshToken string) (string, error)

	// Revoke removes the refresh token from the store.
	Revoke(ctx context.Context, refreshToken string) error
}

// MemoryRefreshTokenStore is an in-process RefreshTokenStore.
//
// It is the store of record for single-instance deployments and the default
// in tests. Entries do not survive a restart, which forcibly logs out all
// sessions; PostgresRefreshTokenStore avoids that.
type MemoryRefreshTokenStore struct {
	mu     sync.RWMutex
	byHash map[string]string
}

// NewMemoryRefreshTokenStore constructs an empty MemoryRefreshTokenStore.
func NewMemoryRefreshTokenStore() *MemoryRefreshTokenStore {
	return &MemoryRefreshTokenStore{byHash: make(map[string]string)}
}

// Register implements RefreshTokenStore.
func (s *MemoryRefreshTokenStore) Register(_ context.Context, refreshToken, userID string) error {
	hash := token.HashRefreshTokenHex(refreshToken)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byHash[hash] = userID
	return nil
}

// IsValid implements RefreshTokenStore.
func (s *MemoryRefreshTokenStore) IsValid(_ context.Context, refreshToken string) (bool, error) {
	hash := token.HashRefreshTokenHex(refreshToken)

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byHash[hash]
	return ok, nil
}

// OwnerOf implements RefreshTokenStore.
func (s *MemoryRefreshTokenStore) OwnerOf(_ context.Context, refreshToken string) (string, error) {
	hash := token.HashRefreshTokenHex(refreshToken)

	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byHash[hash]
	if !ok {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// Revoke implements RefreshTokenStore.
func (s *MemoryRefreshTokenStore) Revoke(_ context.Context, refreshToken string) error {
	hash := token.HashRefreshTokenHex(refreshToken)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byHash, hash)
	return nil
}

// Count returns the number of registered refresh tokens.
func (s *MemoryRefreshTokenStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHash)
}
