package twofactor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"axon/cmd/identity"
)

const (
	// backupCodeCount is how many backup codes a regeneration hands out.
	backupCodeCount = 10

	// backupCodeBytes is the entropy per backup code, rendered as hex.
	backupCodeBytes = 4
)

// Config tunes the TOTP engine.
type Config struct {
	// Issuer is the label authenticator apps show next to the account.
	Issuer string

	// Skew is how many 30-second steps on either side of the current one
	// are accepted, to tolerate device clock drift.
	Skew uint
}

// DefaultConfig matches the parameters mobile authenticator apps expect.
func DefaultConfig() Config {
	return Config{Issuer: "Axon", Skew: 2}
}

// Setup is the result of provisioning a new secret.
type Setup struct {
	// Secret is the base32 shared secret, for manual entry.
	Secret string

	// OTPAuthURL is the otpauth:// URI for QR enrollment.
	OTPAuthURL string
}

// Engine manages per-user TOTP state against the identity store.
//
// It is safe for concurrent use; all state lives in the store.
type Engine struct {
	cfg   Config
	users identity.Store

	// now is swapped out in tests.
	now func() time.Time
}

// NewEngine constructs an Engine over the identity store.
func NewEngine(cfg Config, users identity.Store) (*Engine, error) {
	if users == nil {
		return nil, errors.New("twofactor: nil store")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultConfig().Issuer
	}
	if cfg.Skew == 0 {
		cfg.Skew = DefaultConfig().Skew
	}
	return &Engine{cfg: cfg, users: users, now: time.Now}, nil
}

// GenerateSetup provisions a fresh secret for the user and stores it in the
// pending (not yet enabled) state. Calling it again before confirmation
// replaces the pending secret; calling it for an enabled account fails with
// ErrAlreadyEnabled so an active factor cannot be silently swapped.
func (e *Engine) GenerateSetup(ctx context.Context, userID string) (Setup, error) {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return Setup{}, err
	}
	if user.TwoFactorEnabled {
		return Setup{}, ErrAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.cfg.Issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return Setup{}, fmt.Errorf("twofactor: generate secret: %w", err)
	}

	if err := e.users.SetTwoFactorSecret(ctx, user.ID, key.Secret()); err != nil {
		return Setup{}, err
	}

	return Setup{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// ConfirmSetup enables the pending secret once the user presents a valid
// code for it. Until this succeeds the account remains single-factor.
func (e *Engine) ConfirmSetup(ctx context.Context, userID, code string) error {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorSecret == "" {
		return ErrNotProvisioned
	}

	if !e.validate(code, user.TwoFactorSecret) {
		return ErrInvalidCode
	}

	return e.users.SetTwoFactorEnabled(ctx, user.ID, true)
}

// Challenge validates a code for an account with a confirmed second factor.
// It implements the session login hook.
func (e *Engine) Challenge(ctx context.Context, userID, code string) error {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorSecret == "" {
		return ErrNotProvisioned
	}
	if !user.TwoFactorEnabled {
		return ErrNotEnabled
	}

	if !e.validate(code, user.TwoFactorSecret) {
		return ErrInvalidCode
	}
	return nil
}

// Disable removes the secret, the enabled flag, and any backup codes.
// Disabling an account that never enrolled is not an error.
func (e *Engine) Disable(ctx context.Context, userID string) error {
	return e.users.ClearTwoFactor(ctx, userID)
}

// GenerateBackupCodes replaces the account's backup codes with a fresh set
// and returns them. This is the only time the codes are visible in plain
// form, so callers must show them to the user immediately.
func (e *Engine) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.TwoFactorEnabled {
		return nil, ErrNotEnabled
	}

	codes := make([]string, backupCodeCount)
	for i := range codes {
		buf := make([]byte, backupCodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("twofactor: generate backup codes: %w", err)
		}
		codes[i] = hex.EncodeToString(buf)
	}

	if err := e.users.SetBackupCodes(ctx, user.ID, codes); err != nil {
		return nil, err
	}
	return codes, nil
}

func (e *Engine) validate(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, e.now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      e.cfg.Skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
