package twofactor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"axon/cmd/identity"
)

var testNow = time.Unix(2_000_000_000, 0).UTC()

func newEngineFixture(t *testing.T) (*Engine, *identity.MemoryStore, identity.User) {
	t.Helper()

	users := identity.NewMemoryStore()
	user, err := users.CreateUser(context.Background(), identity.CreateUserInput{
		Username: "navid",
		Email:    "navid@example.com",
		Password: "correct horse 9 battery",
		Now:      testNow,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	eng, err := NewEngine(DefaultConfig(), users)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	eng.now = func() time.Time { return testNow }

	return eng, users, user
}

func codeAt(t *testing.T, secret string, tm time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, tm, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom: %v", err)
	}
	return code
}

func TestEngine_ConfigDefaults(t *testing.T) {
	users := identity.NewMemoryStore()
	user, err := users.CreateUser(context.Background(), identity.CreateUserInput{
		Username: "navid",
		Email:    "navid@example.com",
		Password: "correct horse 9 battery",
		Now:      testNow,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// A partial config keeps the default clock-drift window.
	eng, err := NewEngine(Config{Issuer: "Elsewhere"}, users)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	eng.now = func() time.Time { return testNow }
	if eng.cfg.Skew != DefaultConfig().Skew {
		t.Fatalf("expected the default skew, got %d", eng.cfg.Skew)
	}

	ctx := context.Background()
	setup, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("GenerateSetup: %v", err)
	}
	if !strings.Contains(setup.OTPAuthURL, "Elsewhere") {
		t.Fatalf("expected the configured issuer in URL: %q", setup.OTPAuthURL)
	}
	if err := eng.ConfirmSetup(ctx, user.ID, codeAt(t, setup.Secret, testNow.Add(-60*time.Second))); err != nil {
		t.Fatalf("a two-step-old code must verify: %v", err)
	}
}

func TestEngine_GenerateSetup(t *testing.T) {
	eng, users, user := newEngineFixture(t)
	ctx := context.Background()

	setup, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("GenerateSetup: %v", err)
	}
	if setup.Secret == "" {
		t.Fatalf("expected a secret")
	}
	if !strings.HasPrefix(setup.OTPAuthURL, "otpauth://totp/") {
		t.Fatalf("unexpected otpauth URL: %q", setup.OTPAuthURL)
	}
	if !strings.Contains(setup.OTPAuthURL, "Axon") {
		t.Fatalf("expected issuer in URL: %q", setup.OTPAuthURL)
	}

	stored, err := users.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if stored.TwoFactorSecret != setup.Secret {
		t.Fatalf("secret not persisted")
	}
	if stored.TwoFactorEnabled {
		t.Fatalf("a freshly provisioned secret must not be enabled")
	}
}

func TestEngine_GenerateSetupReplacesPendingSecret(t *testing.T) {
	eng, _, user := newEngineFixture(t)
	ctx := context.Background()

	first, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("first GenerateSetup: %v", err)
	}
	second, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("second GenerateSetup: %v", err)
	}
	if first.Secret == second.Secret {
		t.Fatalf("expected a fresh secret on re-provisioning")
	}

	// Only the latest pending secret confirms.
	if err := eng.ConfirmSetup(ctx, user.ID, codeAt(t, first.Secret, testNow)); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected stale secret to be rejected, got %v", err)
	}
	if err := eng.ConfirmSetup(ctx, user.ID, codeAt(t, second.Secret, testNow)); err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}
}

func TestEngine_GenerateSetupRefusesEnabledAccount(t *testing.T) {
	eng, _, user := newEngineFixture(t)
	ctx := context.Background()

	setup, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("GenerateSetup: %v", err)
	}
	if err := eng.ConfirmSetup(ctx, user.ID, codeAt(t, setup.Secret, testNow)); err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}

	if _, err := eng.GenerateSetup(ctx, user.ID); !errors.Is(err, ErrAlreadyEnabled) {
		t.Fatalf("expected ErrAlreadyEnabled, got %v", err)
	}
}

func TestEngine_ConfirmSetup(t *testing.T) {
	eng, users, user := newEngineFixture(t)
	ctx := context.Background()

	if err := eng.ConfirmSetup(ctx, user.ID, "123456"); !errors.Is(err, ErrNotProvisioned) {
		t.Fatalf("expected ErrNotProvisioned, got %v", err)
	}

	setup, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("GenerateSetup: %v", err)
	}

	if err := eng.ConfirmSetup(ctx, user.ID, "000000"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	stored, _ := users.GetUserByID(ctx, user.ID)
	if stored.TwoFactorEnabled {
		t.Fatalf("a failed confirmation must not enable the factor")
	}

	if err := eng.ConfirmSetup(ctx, user.ID, codeAt(t, setup.Secret, testNow)); err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}
	stored, _ = users.GetUserByID(ctx, user.ID)
	if !stored.TwoFactorEnabled {
		t.Fatalf("expected the factor to be enabled")
	}
}

func TestEngine_ChallengeRequiresConfirmedFactor(t *testing.T) {
	eng, _, user := newEngineFixture(t)
	ctx := context.Background()

	if err := eng.Challenge(ctx, user.ID, "123456"); !errors.Is(err, ErrNotProvisioned) {
		t.Fatalf("expected ErrNotProvisioned, got %v", err)
	}

	setup, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("GenerateSetup: %v", err)
	}

	// Provisioned but unconfirmed: still single-factor.
	if err := eng.Challenge(ctx, user.ID, codeAt(t, setup.Secret, testNow)); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}
}

func TestEngine_ChallengeWindow(t *testing.T) {
	eng, _, user := newEngineFixture(t)
	ctx := context.Background()

	setup, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("GenerateSetup: %v", err)
	}
	if err := eng.ConfirmSetup(ctx, user.ID, codeAt(t, setup.Secret, testNow)); err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}

	tests := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"current step", 0, true},
		{"two steps behind", -60 * time.Second, true},
		{"two steps ahead", 60 * time.Second, true},
		{"three steps behind", -90 * time.Second, false},
		{"three steps ahead", 90 * time.Second, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code := codeAt(t, setup.Secret, testNow.Add(tc.offset))
			err := eng.Challenge(ctx, user.ID, code)
			if tc.ok && err != nil {
				t.Fatalf("expected code to verify, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidCode) {
				t.Fatalf("expected ErrInvalidCode, got %v", err)
			}
		})
	}
}

func TestEngine_Disable(t *testing.T) {
	eng, users, user := newEngineFixture(t)
	ctx := context.Background()

	setup, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("GenerateSetup: %v", err)
	}
	if err := eng.ConfirmSetup(ctx, user.ID, codeAt(t, setup.Secret, testNow)); err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}
	if _, err := eng.GenerateBackupCodes(ctx, user.ID); err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}

	if err := eng.Disable(ctx, user.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}

	stored, _ := users.GetUserByID(ctx, user.ID)
	if stored.TwoFactorEnabled || stored.TwoFactorSecret != "" || len(stored.BackupCodes) != 0 {
		t.Fatalf("expected all two-factor state to be cleared: %+v", stored)
	}

	// Disabling again is a no-op.
	if err := eng.Disable(ctx, user.ID); err != nil {
		t.Fatalf("second Disable: %v", err)
	}
}

func TestEngine_GenerateBackupCodes(t *testing.T) {
	eng, users, user := newEngineFixture(t)
	ctx := context.Background()

	if _, err := eng.GenerateBackupCodes(ctx, user.ID); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled before enrollment, got %v", err)
	}

	setup, err := eng.GenerateSetup(ctx, user.ID)
	if err != nil {
		t.Fatalf("GenerateSetup: %v", err)
	}
	if err := eng.ConfirmSetup(ctx, user.ID, codeAt(t, setup.Secret, testNow)); err != nil {
		t.Fatalf("ConfirmSetup: %v", err)
	}

	codes, err := eng.GenerateBackupCodes(ctx, user.ID)
	if err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(codes))
	}
	seen := make(map[string]bool, len(codes))
	for _, c := range codes {
		if len(c) != 8 {
			t.Fatalf("unexpected code length: %q", c)
		}
		if seen[c] {
			t.Fatalf("duplicate backup code")
		}
		seen[c] = true
	}

	stored, _ := users.GetUserByID(ctx, user.ID)
	if len(stored.BackupCodes) != 10 {
		t.Fatalf("expected codes to be persisted")
	}

	// Regeneration replaces the whole set.
	replacement, err := eng.GenerateBackupCodes(ctx, user.ID)
	if err != nil {
		t.Fatalf("second GenerateBackupCodes: %v", err)
	}
	if replacement[0] == codes[0] {
		t.Fatalf("expected a fresh set")
	}
}
