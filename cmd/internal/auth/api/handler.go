package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"axon/cmd/identity"
	"axon/cmd/internal/auth/session"
	"axon/cmd/internal/auth/twofactor"
)

// Handler wires HTTP auth and two-factor endpoints to the account services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users    identity.Store
	sessions *session.Service
	second   *twofactor.Engine

	throttle *loginThrottle
}

// NewHandler constructs an auth Handler. All service dependencies are required.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, sessions *session.Service, second *twofactor.Engine) (*Handler, error) {
	if users == nil || sessions == nil || second == nil {
		return nil, errors.New("auth: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		log:      log,
		cfg:      cfg,
		users:    users,
		sessions: sessions,
		second:   second,
		throttle: newLoginThrottle(cfg.LoginIPMax, cfg.LoginIPWindow),
	}, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/api/users/register", h.handleRegister)
	mux.HandleFunc("/api/users/login", h.handleLogin)
	mux.HandleFunc("/api/users/login-2fa", h.handleLoginSecondFactor)
	mux.HandleFunc("/api/users/refresh-token", h.handleRefresh)
	mux.HandleFunc("/api/users/logout", h.handleLogout)

	mux.HandleFunc("/api/twofactor/generate", h.handleTwoFactorGenerate)
	mux.HandleFunc("/api/twofactor/verify", h.handleTwoFactorVerify)
	mux.HandleFunc("/api/twofactor/validate", h.handleTwoFactorValidate)
	mux.HandleFunc("/api/twofactor/disable", h.handleTwoFactorDisable)
	mux.HandleFunc("/api/twofactor/backup-codes", h.handleTwoFactorBackupCodes)

	mux.HandleFunc("/me", h.handleMe)
}

// SessionService returns the underlying session service.
func (h *Handler) SessionService() *session.Service {
	if h == nil {
		return nil
	}
	return h.sessions
}

// authenticate reads and verifies the X-Access-Token header.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := strings.TrimSpace(r.Header.Get("X-Access-Token"))
	if token == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing access token")
		return session.AccessClaims{}, false
	}

	claims, err := h.sessions.VerifyAccess(token, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid access token")
		return session.AccessClaims{}, false
	}
	return claims, true
}

func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// checkThrottle applies the per-IP login throttle.
func (h *Handler) checkThrottle(w http.ResponseWriter, r *http.Request, now time.Time) bool {
	ip := clientIP(r, h.cfg.TrustProxy)
	ipStr := ""
	if ip != nil {
		ipStr = ip.String()
	}
	if !h.throttle.allow(ipStr, now) {
		h.log.Info("auth.login.rate_limited", "ip", ipStr)
		writeRateLimited(w, h.cfg.LoginIPWindow)
		return false
	}
	return true
}

// ---- account handlers ----

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	now := time.Now().UTC()
	res, err := h.sessions.Register(r.Context(), now, identity.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Now:      now,
	})
	switch {
	case err == nil:
		// A fresh account is logged in immediately: the 201 body carries
		// the same token pair a login would return.
		writeJSON(w, http.StatusCreated, toAuthResponse(res.User, res.Issued))
	case identity.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", "username or email already taken")
	case identity.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.Error("auth.register.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	now := time.Now().UTC()
	if !h.checkThrottle(w, r, now) {
		return
	}

	res, err := h.sessions.Login(r.Context(), now, req.Email, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	default:
		h.log.Error("auth.login.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	if res.Requires2FA {
		writeJSON(w, http.StatusOK, secondFactorPendingResponse{Requires2FA: true, UserID: res.User.ID})
		return
	}

	writeJSON(w, http.StatusOK, toAuthResponse(res.User, res.Issued))
}

func (h *Handler) handleLoginSecondFactor(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var req loginSecondFactorRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "userId and code are required")
		return
	}

	now := time.Now().UTC()
	if !h.checkThrottle(w, r, now) {
		return
	}

	res, err := h.sessions.LoginSecondFactor(r.Context(), now, req.UserID, req.Code)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toAuthResponse(res.User, res.Issued))
	case errors.Is(err, session.ErrInvalidCredentials),
		errors.Is(err, twofactor.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, "invalid_code", "invalid two-factor code")
	case errors.Is(err, twofactor.ErrNotEnabled), errors.Is(err, twofactor.ErrNotProvisioned):
		writeError(w, http.StatusBadRequest, "two_factor_not_enabled", "two-factor is not enabled for this account")
	default:
		h.log.Error("auth.login_2fa.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	refreshToken := strings.TrimSpace(req.RefreshToken)
	if refreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	token, _, err := h.sessions.Refresh(r.Context(), time.Now().UTC(), refreshToken)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, refreshResponse{Token: token})
	case errors.Is(err, session.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "refresh token is not valid")
	default:
		h.log.Error("auth.refresh.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var req logoutRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refreshToken is required")
		return
	}

	if err := h.sessions.Logout(r.Context(), req.RefreshToken); err != nil {
		h.log.Error("auth.logout.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if identity.IsNotFound(err) {
		writeError(w, http.StatusUnauthorized, "unauthorized", "account no longer exists")
		return
	}
	if err != nil {
		h.log.Error("auth.me.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(user)})
}

// ---- two-factor handlers ----

func (h *Handler) handleTwoFactorGenerate(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	setup, err := h.second.GenerateSetup(r.Context(), claims.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, twoFactorSetupResponse{Secret: setup.Secret, OTPAuthURL: setup.OTPAuthURL})
	case errors.Is(err, twofactor.ErrAlreadyEnabled):
		writeError(w, http.StatusConflict, "already_enabled", "two-factor is already enabled")
	default:
		h.log.Error("auth.2fa.generate.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *Handler) handleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req codeRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	err := h.second.ConfirmSetup(r.Context(), claims.UserID, req.Code)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, twoFactorStatusResponse{Enabled: true})
	case errors.Is(err, twofactor.ErrInvalidCode):
		writeError(w, http.StatusUnauthorized, "invalid_code", "invalid two-factor code")
	case errors.Is(err, twofactor.ErrNotProvisioned):
		writeError(w, http.StatusBadRequest, "not_provisioned", "generate a secret first")
	default:
		h.log.Error("auth.2fa.verify.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// handleTwoFactorValidate is deliberately unauthenticated: it is called
// mid-login, before the caller holds an access token.
func (h *Handler) handleTwoFactorValidate(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	var req loginSecondFactorRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "userId and code are required")
		return
	}

	err := h.second.Challenge(r.Context(), req.UserID, req.Code)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, twoFactorValidateResponse{Valid: true})
	case errors.Is(err, twofactor.ErrInvalidCode):
		writeJSON(w, http.StatusOK, twoFactorValidateResponse{Valid: false})
	case errors.Is(err, twofactor.ErrNotEnabled), errors.Is(err, twofactor.ErrNotProvisioned), identity.IsNotFound(err):
		writeError(w, http.StatusBadRequest, "two_factor_not_enabled", "two-factor is not enabled for this account")
	default:
		h.log.Error("auth.2fa.validate.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func (h *Handler) handleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := h.second.Disable(r.Context(), claims.UserID); err != nil {
		h.log.Error("auth.2fa.disable.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTwoFactorBackupCodes(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}
	claims, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	codes, err := h.second.GenerateBackupCodes(r.Context(), claims.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, backupCodesResponse{BackupCodes: codes})
	case errors.Is(err, twofactor.ErrNotEnabled):
		writeError(w, http.StatusBadRequest, "two_factor_not_enabled", "enable two-factor first")
	default:
		h.log.Error("auth.2fa.backup_codes.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
