package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID    string
	IsAdmin   bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims is the verified content of a refresh token.
type RefreshClaims struct {
	UserID    string
	ExpiresAt time.Time
}

// TokenManager issues and verifies the two token kinds.
//
// Implementations must be safe for concurrent use.
type TokenManager interface {
	IssueAccessToken(userID string, isAdmin bool, now time.Time) (token string, exp time.Time, err error)
	IssueRefreshToken(userID string, now time.Time) (token string, exp time.Time, err error)
	VerifyAccessToken(token string, now time.Time) (AccessClaims, error)
	VerifyRefreshToken(token string, now time.Time) (RefreshClaims, error)
}

type accessTokenClaims struct {
	jwt.RegisteredClaims
	UserID  string `json:"uid"`
	IsAdmin bool   `json:"adm"`
}

type refreshTokenClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// JWTManager is an HS256 TokenManager.
//
// Access and refresh tokens are signed with separate keys so that a leaked
// refresh key cannot mint access tokens. When the configuration supplies only
// one key both kinds share it.
type JWTManager struct {
	cfg Config
}

// NewJWTManager validates cfg and constructs a JWTManager.
func NewJWTManager(cfg Config) (*JWTManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &JWTManager{cfg: cfg}, nil
}

// IssueAccessToken signs a short-lived access token for the user.
func (m *JWTManager) IssueAccessToken(userID string, isAdmin bool, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.cfg.AccessTokenTTL)

	claims := accessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID:  userID,
		IsAdmin: isAdmin,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.AccessSigningKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueRefreshToken signs a long-lived refresh token for the user.
func (m *JWTManager) IssueRefreshToken(userID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.cfg.RefreshTokenTTL)

	claims := refreshTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.cfg.refreshKey())
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// VerifyAccessToken verifies signature, issuer, and expiry of an access token.
func (m *JWTManager) VerifyAccessToken(token string, now time.Time) (AccessClaims, error) {
	claims := &accessTokenClaims{}
	if err := m.verify(token, claims, m.cfg.AccessSigningKey, now); err != nil {
		return AccessClaims{}, err
	}
	if claims.UserID == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	out := AccessClaims{
		UserID:  claims.UserID,
		IsAdmin: claims.IsAdmin,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// VerifyRefreshToken verifies signature, issuer, and expiry of a refresh token.
//
// A valid signature is necessary but not sufficient: callers must also check
// the RefreshTokenStore before honoring the token.
func (m *JWTManager) VerifyRefreshToken(token string, now time.Time) (RefreshClaims, error) {
	claims := &refreshTokenClaims{}
	if err := m.verify(token, claims, m.cfg.refreshKey(), now); err != nil {
		return RefreshClaims{}, err
	}
	if claims.UserID == "" {
		return RefreshClaims{}, ErrInvalidToken
	}

	out := RefreshClaims{UserID: claims.UserID}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (m *JWTManager) verify(token string, claims jwt.Claims, key []byte, now time.Time) error {
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.cfg.ClockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}
