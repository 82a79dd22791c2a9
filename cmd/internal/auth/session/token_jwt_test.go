package session

import (
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.AccessSigningKey = []byte("test-access-signing-key")
	cfg.RefreshSigningKey = []byte("test-refresh-signing-key")
	return cfg
}

func TestJWTManager_AccessRoundTrip(t *testing.T) {
	mgr, err := NewJWTManager(testConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, exp, err := mgr.IssueAccessToken("01HZZZZZZZZZZZZZZZZZZZZZZZ", true, now)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	claims, err := mgr.VerifyAccessToken(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.UserID != "01HZZZZZZZZZZZZZZZZZZZZZZZ" {
		t.Fatalf("user id mismatch: %q", claims.UserID)
	}
	if !claims.IsAdmin {
		t.Fatalf("expected admin flag to survive the round trip")
	}
}

func TestJWTManager_RefreshRoundTrip(t *testing.T) {
	mgr, err := NewJWTManager(testConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, exp, err := mgr.IssueRefreshToken("01HZZZZZZZZZZZZZZZZZZZZZZZ", now)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if got, want := exp.Sub(now), 7*24*time.Hour; got != want {
		t.Fatalf("refresh ttl: got %v want %v", got, want)
	}

	claims, err := mgr.VerifyRefreshToken(tok, now.Add(time.Second))
	if err != nil {
		t.Fatalf("VerifyRefreshToken: %v", err)
	}
	if claims.UserID != "01HZZZZZZZZZZZZZZZZZZZZZZZ" {
		t.Fatalf("user id mismatch: %q", claims.UserID)
	}
}

func TestJWTManager_ExpiredTokenRejected(t *testing.T) {
	cfg := testConfig()
	cfg.ClockSkew = 0
	mgr, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := mgr.IssueAccessToken("u1", false, now)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	if _, err := mgr.VerifyAccessToken(tok, now.Add(cfg.AccessTokenTTL+time.Minute)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestJWTManager_ClockSkewTolerated(t *testing.T) {
	cfg := testConfig()
	cfg.ClockSkew = 30 * time.Second
	mgr, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := mgr.IssueAccessToken("u1", false, now)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	if _, err := mgr.VerifyAccessToken(tok, now.Add(cfg.AccessTokenTTL+10*time.Second)); err != nil {
		t.Fatalf("expected token within skew to verify, got %v", err)
	}
}

func TestJWTManager_TamperedTokenRejected(t *testing.T) {
	mgr, err := NewJWTManager(testConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := mgr.IssueAccessToken("u1", false, now)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	tampered := tok[:len(tok)-2] + "xx"
	if _, err := mgr.VerifyAccessToken(tampered, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestJWTManager_RefreshTokenNotValidAsAccess(t *testing.T) {
	mgr, err := NewJWTManager(testConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	refresh, _, err := mgr.IssueRefreshToken("u1", now)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	if _, err := mgr.VerifyAccessToken(refresh, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token to fail access verification, got %v", err)
	}
}

func TestJWTManager_SharedKeyFallback(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshSigningKey = nil
	mgr, err := NewJWTManager(cfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := mgr.IssueRefreshToken("u1", now)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if _, err := mgr.VerifyRefreshToken(tok, now); err != nil {
		t.Fatalf("VerifyRefreshToken with shared key: %v", err)
	}
}
