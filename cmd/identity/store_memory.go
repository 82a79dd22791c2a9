package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for dev and tests.
//
// It mirrors the uniqueness semantics of the Postgres store: email and
// username collide on their normalized forms.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byEmail map[string]string // email_norm -> user id
	byUser  map[string]string // username_norm -> user id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
		byUser:  make(map[string]string),
	}
}

// CreateUser registers a new user with a hashed password.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username, email and password are required"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewULID(now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           id,
		Username:     username,
		UsernameNorm: NormalizeUsername(username),
		Email:        email,
		EmailNorm:    NormalizeEmail(email),
		PasswordHash: hash,
		IsAdmin:      in.IsAdmin,
		CreatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.EmailNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	if _, ok := s.byUser[u.UsernameNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}

	cp := u
	s.byID[u.ID] = &cp
	s.byEmail[u.EmailNorm] = u.ID
	s.byUser[u.UsernameNorm] = u.ID

	return u, nil
}

// GetUserByID returns the user with the given id.
func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return cloneUser(u), nil
}

// GetUserByEmail performs a case-insensitive email lookup.
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByEmail", Resource: "user"}
	}
	return cloneUser(s.byID[id]), nil
}

// GetUserByUsername performs a case-insensitive username lookup.
func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUser[NormalizeUsername(username)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByUsername", Resource: "user"}
	}
	return cloneUser(s.byID[id]), nil
}

// SetTwoFactorSecret stores a provisioned (not yet enabled) secret.
func (s *MemoryStore) SetTwoFactorSecret(ctx context.Context, userID, secret string) error {
	return s.mutate(ctx, "identity.SetTwoFactorSecret", userID, func(u *User) {
		u.TwoFactorSecret = secret
	})
}

// SetTwoFactorEnabled flips the enablement gate.
func (s *MemoryStore) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.mutate(ctx, "identity.SetTwoFactorEnabled", userID, func(u *User) {
		u.TwoFactorEnabled = enabled
	})
}

// ClearTwoFactor removes all two-factor state for the user.
func (s *MemoryStore) ClearTwoFactor(ctx context.Context, userID string) error {
	return s.mutate(ctx, "identity.ClearTwoFactor", userID, func(u *User) {
		u.TwoFactorSecret = ""
		u.TwoFactorEnabled = false
		u.BackupCodes = nil
	})
}

// SetBackupCodes replaces the full backup-code set.
func (s *MemoryStore) SetBackupCodes(ctx context.Context, userID string, codes []string) error {
	return s.mutate(ctx, "identity.SetBackupCodes", userID, func(u *User) {
		u.BackupCodes = append([]string(nil), codes...)
	})
}

func (s *MemoryStore) mutate(ctx context.Context, op, userID string, fn func(*User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	fn(u)
	return nil
}

func cloneUser(u *User) User {
	cp := *u
	cp.BackupCodes = append([]string(nil), u.BackupCodes...)
	return cp
}
