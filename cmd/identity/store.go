package identity

import (
	"context"
	"time"
)

// User is Axon's canonical security principal.
//
// Two-factor state lives on the user record:
// - TwoFactorSecret is set at setup-initiation and is NOT yet active.
// - TwoFactorEnabled flips to true only after a confirmation code verifies.
// - BackupCodes are single-use fallback secrets, replaced in bulk.
type User struct {
	ID           string
	Username     string
	UsernameNorm string
	Email        string
	EmailNorm    string
	PasswordHash string
	IsAdmin      bool

	TwoFactorSecret  string // base32; empty when not provisioned
	TwoFactorEnabled bool
	BackupCodes      []string

	CreatedAt time.Time
}

// CreateUserInput describes a user registration request.
// Password is hashed by the store; it is never persisted in plaintext.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	IsAdmin  bool
	Now      time.Time
}

// Store is the identity persistence boundary.
//
// Email and username lookups are case-insensitive: implementations match on
// the normalized forms (see NormalizeEmail / NormalizeUsername).
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// SetTwoFactorSecret stores a freshly provisioned (not yet enabled) secret.
	SetTwoFactorSecret(ctx context.Context, userID, secret string) error

	// SetTwoFactorEnabled flips the enablement gate. The secret is untouched.
	SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error

	// ClearTwoFactor removes the secret, disables the gate and drops backup codes.
	ClearTwoFactor(ctx context.Context, userID string) error

	// SetBackupCodes replaces the full backup-code set.
	SetBackupCodes(ctx context.Context, userID string, codes []string) error
}
