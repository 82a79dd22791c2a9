package session

import (
	"context"
	"errors"
	"time"

	"axon/cmd/identity"
)

// SecondFactor challenges a user's configured second factor.
//
// Implementations return their own sentinel errors for wrong codes and for
// accounts without a confirmed factor; the service passes them through.
type SecondFactor interface {
	Challenge(ctx context.Context, userID, code string) error
}

// Service implements the high-level account operations for Axon.
//
// It registers users, runs the one- and two-step login flows, refreshes
// access tokens against the server-side refresh registry, and revokes
// refresh tokens on logout.
type Service struct {
	users   identity.Store
	tokens  TokenManager
	refresh RefreshTokenStore
	second  SecondFactor

	// dummyHash absorbs a password verification for unknown emails so that
	// login latency does not reveal whether an account exists.
	dummyHash string
}

// Issued is the token pair handed out by a completed login.
type Issued struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

// LoginResult is the outcome of Login and LoginSecondFactor.
//
// When Requires2FA is set the credential check passed but no tokens were
// issued; the caller must complete LoginSecondFactor with User.ID.
type LoginResult struct {
	Requires2FA bool
	User        identity.User
	Issued      Issued
}

// NewService constructs a Service. All dependencies are required.
func NewService(users identity.Store, tokens TokenManager, refresh RefreshTokenStore, second SecondFactor) (*Service, error) {
	if users == nil || tokens == nil || refresh == nil || second == nil {
		return nil, errors.New("session: nil dependency")
	}

	dummyHash, err := identity.HashPassword("axon-dummy-credential-7c41f0")
	if err != nil {
		return nil, err
	}

	return &Service{
		users:     users,
		tokens:    tokens,
		refresh:   refresh,
		second:    second,
		dummyHash: dummyHash,
	}, nil
}

// Register creates a new account and logs it in: the response carries a
// full token pair and the refresh token is registered, so clients do not
// need a follow-up Login call.
func (s *Service) Register(ctx context.Context, now time.Time, in identity.CreateUserInput) (LoginResult, error) {
	user, err := s.users.CreateUser(ctx, in)
	if err != nil {
		return LoginResult{}, err
	}

	issued, err := s.issue(ctx, now, user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: user, Issued: issued}, nil
}

// Login checks the email and password pair.
//
// Unknown emails and wrong passwords both return ErrInvalidCredentials.
// Accounts with a confirmed second factor get LoginResult.Requires2FA and
// no tokens; everyone else gets a full token pair.
func (s *Service) Login(ctx context.Context, now time.Time, email, password string) (LoginResult, error) {
	user, err := s.users.GetUserByEmail(ctx, email)
	if identity.IsNotFound(err) {
		// Burn roughly the same time a real verification would take.
		_, _ = identity.VerifyPassword(password, s.dummyHash)
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	ok, err := identity.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		return LoginResult{Requires2FA: true, User: user}, nil
	}

	issued, err := s.issue(ctx, now, user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: user, Issued: issued}, nil
}

// LoginSecondFactor completes a login that Login marked Requires2FA.
//
// The code is validated by the configured SecondFactor; its errors are
// returned unchanged so callers can distinguish a wrong code from an
// account without a confirmed factor.
func (s *Service) LoginSecondFactor(ctx context.Context, now time.Time, userID, code string) (LoginResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if identity.IsNotFound(err) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.second.Challenge(ctx, user.ID, code); err != nil {
		return LoginResult{}, err
	}

	issued, err := s.issue(ctx, now, user)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{User: user, Issued: issued}, nil
}

// Refresh exchanges a registered refresh token for a new access token.
//
// The refresh token itself is left untouched: no rotation, no extension.
// Tokens that verify cryptographically but are missing from the store are
// rejected, which is how logout invalidates them before expiry.
func (s *Service) Refresh(ctx context.Context, now time.Time, refreshToken string) (accessToken string, accessExp time.Time, err error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken, now)
	if err != nil {
		return "", time.Time{}, err
	}

	owner, err := s.refresh.OwnerOf(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	if owner != claims.UserID {
		return "", time.Time{}, ErrInvalidToken
	}

	user, err := s.users.GetUserByID(ctx, owner)
	if identity.IsNotFound(err) {
		return "", time.Time{}, ErrInvalidToken
	}
	if err != nil {
		return "", time.Time{}, err
	}

	return s.tokens.IssueAccessToken(user.ID, user.IsAdmin, now)
}

// Logout revokes a refresh token. Unknown and malformed tokens are not an
// error; a second logout with the same token succeeds as well.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.refresh.Revoke(ctx, refreshToken)
}

// VerifyAccess verifies an access token for request authentication.
func (s *Service) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	return s.tokens.VerifyAccessToken(token, now)
}

func (s *Service) issue(ctx context.Context, now time.Time, user identity.User) (Issued, error) {
	access, accessExp, err := s.tokens.IssueAccessToken(user.ID, user.IsAdmin, now)
	if err != nil {
		return Issued{}, err
	}

	refresh, refreshExp, err := s.tokens.IssueRefreshToken(user.ID, now)
	if err != nil {
		return Issued{}, err
	}

	if err := s.refresh.Register(ctx, refresh, user.ID); err != nil {
		return Issued{}, err
	}

	return Issued{
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   refreshExp,
	}, nil
}
