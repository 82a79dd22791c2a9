package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"axon/cmd/identity"
)

var errWrongCode = errors.New("wrong code")

// fakeSecondFactor accepts a single hard-coded code.
type fakeSecondFactor struct {
	code  string
	calls int
}

func (f *fakeSecondFactor) Challenge(_ context.Context, _ string, code string) error {
	f.calls++
	if code != f.code {
		return errWrongCode
	}
	return nil
}

type serviceFixture struct {
	svc     *Service
	users   *identity.MemoryStore
	refresh *MemoryRefreshTokenStore
	second  *fakeSecondFactor
	mgr     *JWTManager
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	mgr, err := NewJWTManager(testConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	users := identity.NewMemoryStore()
	refresh := NewMemoryRefreshTokenStore()
	second := &fakeSecondFactor{code: "123456"}

	svc, err := NewService(users, mgr, refresh, second)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	return &serviceFixture{svc: svc, users: users, refresh: refresh, second: second, mgr: mgr}
}

func (f *serviceFixture) createUser(t *testing.T, email string) identity.User {
	t.Helper()

	user, err := f.users.CreateUser(context.Background(), identity.CreateUserInput{
		Username: "navid",
		Email:    email,
		Password: "correct horse 9 battery",
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func TestService_RegisterLogsTheUserIn(t *testing.T) {
	f := newServiceFixture(t)

	now := time.Now().UTC()
	res, err := f.svc.Register(context.Background(), now, identity.CreateUserInput{
		Username: "navid",
		Email:    "navid@example.com",
		Password: "correct horse 9 battery",
		Now:      now,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Issued.AccessToken == "" || res.Issued.RefreshToken == "" {
		t.Fatalf("expected a full token pair on registration")
	}

	claims, err := f.mgr.VerifyAccessToken(res.Issued.AccessToken, now)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.UserID != res.User.ID {
		t.Fatalf("access token user mismatch: %q", claims.UserID)
	}

	if f.refresh.Count() != 1 {
		t.Fatalf("expected the refresh token to be registered, store has %d", f.refresh.Count())
	}
	if ok, _ := f.refresh.IsValid(context.Background(), res.Issued.RefreshToken); !ok {
		t.Fatalf("registered refresh token must be valid")
	}
}

func TestService_RegisterDuplicateIssuesNothing(t *testing.T) {
	f := newServiceFixture(t)
	f.createUser(t, "navid@example.com")

	now := time.Now().UTC()
	_, err := f.svc.Register(context.Background(), now, identity.CreateUserInput{
		Username: "someone-else",
		Email:    "navid@example.com",
		Password: "correct horse 9 battery",
		Now:      now,
	})
	if !identity.IsConflict(err) {
		t.Fatalf("expected a conflict, got %v", err)
	}
	if f.refresh.Count() != 0 {
		t.Fatalf("a failed registration must not register tokens, store has %d", f.refresh.Count())
	}
}

func TestService_LoginIssuesTokenPair(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "navid@example.com")

	now := time.Now().UTC()
	res, err := f.svc.Login(context.Background(), now, "navid@example.com", "correct horse 9 battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Requires2FA {
		t.Fatalf("unexpected second-factor demand")
	}
	if res.Issued.AccessToken == "" || res.Issued.RefreshToken == "" {
		t.Fatalf("expected both tokens to be issued")
	}

	claims, err := f.mgr.VerifyAccessToken(res.Issued.AccessToken, now)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("access token user mismatch: %q", claims.UserID)
	}

	if f.refresh.Count() != 1 {
		t.Fatalf("expected refresh token to be registered, store has %d", f.refresh.Count())
	}
}

func TestService_LoginEmailIsCaseInsensitive(t *testing.T) {
	f := newServiceFixture(t)
	f.createUser(t, "navid@example.com")

	_, err := f.svc.Login(context.Background(), time.Now().UTC(), "NaViD@Example.COM", "correct horse 9 battery")
	if err != nil {
		t.Fatalf("Login with mixed-case email: %v", err)
	}
}

func TestService_LoginUniformCredentialError(t *testing.T) {
	f := newServiceFixture(t)
	f.createUser(t, "navid@example.com")

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "correct horse 9 battery"},
		{"wrong password", "navid@example.com", "not the password"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), time.Now().UTC(), tc.email, tc.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestService_LoginWithSecondFactorWithholdsTokens(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "navid@example.com")

	ctx := context.Background()
	if err := f.users.SetTwoFactorSecret(ctx, user.ID, "JBSWY3DPEHPK3PXP"); err != nil {
		t.Fatalf("SetTwoFactorSecret: %v", err)
	}
	if err := f.users.SetTwoFactorEnabled(ctx, user.ID, true); err != nil {
		t.Fatalf("SetTwoFactorEnabled: %v", err)
	}

	res, err := f.svc.Login(ctx, time.Now().UTC(), "navid@example.com", "correct horse 9 battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.Requires2FA {
		t.Fatalf("expected Requires2FA")
	}
	if res.User.ID != user.ID {
		t.Fatalf("expected user id for the follow-up step")
	}
	if res.Issued.AccessToken != "" || res.Issued.RefreshToken != "" {
		t.Fatalf("no tokens may be issued before the second factor")
	}
	if f.refresh.Count() != 0 {
		t.Fatalf("nothing may be registered before the second factor")
	}
}

func TestService_LoginSecondFactor(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "navid@example.com")

	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := f.svc.LoginSecondFactor(ctx, now, user.ID, "000000"); !errors.Is(err, errWrongCode) {
		t.Fatalf("expected the factor's own error for a wrong code, got %v", err)
	}

	res, err := f.svc.LoginSecondFactor(ctx, now, user.ID, "123456")
	if err != nil {
		t.Fatalf("LoginSecondFactor: %v", err)
	}
	if res.Issued.AccessToken == "" || res.Issued.RefreshToken == "" {
		t.Fatalf("expected tokens after a verified code")
	}

	if _, err := f.svc.LoginSecondFactor(ctx, now, "no-such-user", "123456"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestService_RefreshIssuesAccessOnly(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "navid@example.com")

	ctx := context.Background()
	now := time.Now().UTC()
	res, err := f.svc.Login(ctx, now, "navid@example.com", "correct horse 9 battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	later := now.Add(30 * time.Minute)
	access, exp, err := f.svc.Refresh(ctx, later, res.Issued.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !exp.After(later) {
		t.Fatalf("expected fresh access expiry")
	}

	claims, err := f.mgr.VerifyAccessToken(access, later)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("access token user mismatch: %q", claims.UserID)
	}

	// The original refresh token stays registered and reusable.
	if ok, _ := f.refresh.IsValid(ctx, res.Issued.RefreshToken); !ok {
		t.Fatalf("refresh must not rotate or revoke the token")
	}
	if _, _, err := f.svc.Refresh(ctx, later, res.Issued.RefreshToken); err != nil {
		t.Fatalf("second Refresh with same token: %v", err)
	}
}

func TestService_RefreshRejectsUnregisteredToken(t *testing.T) {
	f := newServiceFixture(t)
	user := f.createUser(t, "navid@example.com")

	now := time.Now().UTC()

	// Signature verifies, but the token was never registered.
	forged, _, err := f.mgr.IssueRefreshToken(user.ID, now)
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if _, _, err := f.svc.Refresh(context.Background(), now, forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unregistered token, got %v", err)
	}
}

func TestService_LogoutRevokesRefresh(t *testing.T) {
	f := newServiceFixture(t)
	f.createUser(t, "navid@example.com")

	ctx := context.Background()
	now := time.Now().UTC()
	res, err := f.svc.Login(ctx, now, "navid@example.com", "correct horse 9 battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := f.svc.Logout(ctx, res.Issued.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := f.svc.Refresh(ctx, now, res.Issued.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after logout, got %v", err)
	}

	// Logout is idempotent, even for garbage tokens.
	if err := f.svc.Logout(ctx, res.Issued.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	if err := f.svc.Logout(ctx, "not-even-a-jwt"); err != nil {
		t.Fatalf("Logout of malformed token: %v", err)
	}
}

func TestService_LogoutLeavesOtherSessionsAlone(t *testing.T) {
	f := newServiceFixture(t)
	f.createUser(t, "navid@example.com")

	ctx := context.Background()

	first, err := f.svc.Login(ctx, time.Now().UTC(), "navid@example.com", "correct horse 9 battery")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	second, err := f.svc.Login(ctx, time.Now().UTC().Add(time.Second), "navid@example.com", "correct horse 9 battery")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}

	if err := f.svc.Logout(ctx, first.Issued.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if ok, _ := f.refresh.IsValid(ctx, second.Issued.RefreshToken); !ok {
		t.Fatalf("logout of one device must not revoke the other")
	}
}
