package authapi

import "time"

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginSecondFactorRequest struct {
	UserID string `json:"userId"`
	Code   string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type userResponse struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	IsAdmin          bool      `json:"isAdmin"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// authResponse is the flat shape returned by a completed login.
type authResponse struct {
	UserID           string `json:"userId"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	IsAdmin          bool   `json:"isAdmin"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	Token            string `json:"token"`
	RefreshToken     string `json:"refreshToken"`
}

// secondFactorPendingResponse tells the client to complete the login with a
// TOTP code. No tokens are handed out at this point.
type secondFactorPendingResponse struct {
	Requires2FA bool   `json:"requires2FA"`
	UserID      string `json:"userId"`
}

type refreshResponse struct {
	Token string `json:"token"`
}

type twoFactorSetupResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauthUrl"`
}

type twoFactorStatusResponse struct {
	Enabled bool `json:"enabled"`
}

type twoFactorValidateResponse struct {
	Valid bool `json:"valid"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backupCodes"`
}

type meResponse struct {
	User userResponse `json:"user"`
}
