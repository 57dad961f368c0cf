package authapi

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"warden/internal/auth/accesstoken"
	"warden/internal/auth/session"
	"warden/internal/auth/twofactor"
	"warden/internal/identity"
)

// Sessions is the lifecycle surface the handlers drive. *session.Manager implements it.
type Sessions interface {
	Login(ctx context.Context, req session.LoginRequest) (session.Issued, error)
	Refresh(ctx context.Context, refreshToken string) (session.Issued, error)
	Logout(ctx context.Context, accessToken, ip string) error
	RevokeAll(ctx context.Context, identityID, ip string) (int64, error)
	Authenticate(ctx context.Context, accessToken string) (accesstoken.Claims, error)
	Sessions(ctx context.Context, identityID string) ([]session.Session, error)
}

// Accounts is the identity surface. *identity.Authenticator implements it.
type Accounts interface {
	Register(ctx context.Context, in identity.RegisterInput) (identity.Identity, error)
	Lookup(ctx context.Context, id string) (identity.Identity, error)
	ChangePassword(ctx context.Context, id, current, next string) error
	RequestReset(ctx context.Context, email string) (identity.PasswordReset, error)
	ResetPassword(ctx context.Context, token, next string) (identity.Identity, error)
}

// ResetDelivery hands an issued reset token to the channel that reaches its owner.
type ResetDelivery interface {
	DeliverReset(ctx context.Context, r identity.PasswordReset) error
}

// TwoFactor is the enrollment surface. *twofactor.Service implements it.
type TwoFactor interface {
	Setup(ctx context.Context, identityID string) (twofactor.Enrollment, error)
	Enable(ctx context.Context, identityID, code, ip string) error
}

// Handler wires HTTP auth endpoints to the session, identity and 2FA services.
type Handler struct {
	log *slog.Logger
	cfg Config

	sessions  Sessions
	accounts  Accounts
	twoFactor TwoFactor
	resets    ResetDelivery

	validate *validator.Validate
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions Sessions, accounts Accounts, twoFactor TwoFactor) (*Handler, error) {
	if sessions == nil || accounts == nil || twoFactor == nil {
		return nil, errors.New("authapi: nil dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	return &Handler{
		log:       log,
		cfg:       cfg,
		sessions:  sessions,
		accounts:  accounts,
		twoFactor: twoFactor,
		validate:  newValidator(),
	}, nil
}

// WithResetDelivery enables POST /auth/password/forgot. Without it, reset tokens can only
// be issued out of band and redeemed through POST /auth/password/reset.
func (h *Handler) WithResetDelivery(d ResetDelivery) *Handler {
	h.resets = d
	return h
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/refresh", h.handleRefresh)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("POST /auth/logout_all", h.handleLogoutAll)
	mux.HandleFunc("POST /auth/signup", h.handleSignup)
	mux.HandleFunc("POST /auth/password", h.handlePasswordChange)
	mux.HandleFunc("POST /auth/password/reset", h.handlePasswordReset)
	if h.resets != nil {
		mux.HandleFunc("POST /auth/password/forgot", h.handlePasswordForgot)
	}
	mux.HandleFunc("POST /auth/2fa/setup", h.handleTwoFactorSetup)
	mux.HandleFunc("POST /auth/2fa/enable", h.handleTwoFactorEnable)
	mux.HandleFunc("GET /auth/sessions", h.handleSessions)
	mux.HandleFunc("GET /me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	issued, err := h.sessions.Login(r.Context(), session.LoginRequest{
		Username:  req.Username,
		Password:  req.Password,
		TOTPCode:  strings.TrimSpace(req.TOTPCode),
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
	})
	if err != nil {
		var throttled session.ThrottledError
		switch {
		case errors.As(err, &throttled):
			writeRateLimited(w, time.Duration(math.Ceil(throttled.RetryAfter))*time.Second)
		case errors.Is(err, session.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		default:
			h.writeServerError(w, "auth.login.fail", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Identity: toIdentityResponse(issued.Identity),
		Session:  toSessionResponse(issued),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	issued, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefresh) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token", "invalid refresh token")
			return
		}
		h.writeServerError(w, "auth.refresh.fail", err)
		return
	}

	writeJSON(w, http.StatusOK, refreshResponse{Session: toSessionResponse(issued)})
}

// handleLogout accepts expired access tokens so clients can always clean up.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	tok := bearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	if err := h.sessions.Logout(r.Context(), tok, clientIP(r, h.cfg.TrustProxy)); err != nil {
		if errors.Is(err, accesstoken.ErrMalformed) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		h.writeServerError(w, "auth.logout.fail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	n, err := h.sessions.RevokeAll(r.Context(), claims.Subject, clientIP(r, h.cfg.TrustProxy))
	if err != nil {
		h.writeServerError(w, "auth.logout_all.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, logoutAllResponse{Revoked: n})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.AllowSignup {
		writeError(w, http.StatusForbidden, "signup_disabled", "signup is disabled")
		return
	}

	var req signupRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	ident, err := h.accounts.Register(r.Context(), identity.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Roles:    []identity.Role{identity.RoleEmployee},
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "conflict", "username or email already in use")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", inputMessage(err))
		default:
			h.writeServerError(w, "auth.signup.fail", err)
		}
		return
	}

	h.log.Info("auth.signup", "identity_id", ident.ID)
	writeJSON(w, http.StatusCreated, meResponse{Identity: toIdentityResponse(ident)})
}

// handlePasswordChange revokes every session of the identity once the new hash is stored.
func (h *Handler) handlePasswordChange(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req passwordChangeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	ctx := r.Context()
	if err := h.accounts.ChangePassword(ctx, claims.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials), identity.IsNotFound(err):
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", inputMessage(err))
		default:
			h.writeServerError(w, "auth.password.fail", err)
		}
		return
	}

	if _, err := h.sessions.RevokeAll(ctx, claims.Subject, clientIP(r, h.cfg.TrustProxy)); err != nil {
		h.writeServerError(w, "auth.password.revoke.fail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resetDeliveryTimeout bounds the background issue-and-deliver of a forgot request.
const resetDeliveryTimeout = 10 * time.Second

// handlePasswordForgot always answers 202 so the response says nothing about whether the
// email is registered. The token is issued and delivered after the response.
func (h *Handler) handlePasswordForgot(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), resetDeliveryTimeout)
	go func() {
		defer cancel()
		h.issueReset(ctx, req.Email)
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) issueReset(ctx context.Context, email string) {
	reset, err := h.accounts.RequestReset(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) || errors.Is(err, identity.ErrNotActive) {
			h.log.Info("auth.password.forgot.ignored", "reason", "unknown_or_inactive")
			return
		}
		h.log.Error("auth.password.forgot.fail", "err", err)
		return
	}
	if err := h.resets.DeliverReset(ctx, reset); err != nil {
		h.log.Error("auth.password.forgot.deliver.fail", "identity_id", reset.Identity.ID, "err", err)
		return
	}
	h.log.Info("auth.password.forgot.issued", "identity_id", reset.Identity.ID, "expires_at", reset.ExpiresAt)
}

// handlePasswordReset redeems a reset token and revokes every session of the identity.
func (h *Handler) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	ctx := r.Context()
	ident, err := h.accounts.ResetPassword(ctx, req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidResetToken):
			writeError(w, http.StatusBadRequest, "invalid_reset_token", "invalid or expired reset token")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", inputMessage(err))
		default:
			h.writeServerError(w, "auth.password.reset.fail", err)
		}
		return
	}

	if _, err := h.sessions.RevokeAll(ctx, ident.ID, clientIP(r, h.cfg.TrustProxy)); err != nil {
		h.writeServerError(w, "auth.password.reset.revoke.fail", err)
		return
	}
	h.log.Info("auth.password.reset", "identity_id", ident.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	enr, err := h.twoFactor.Setup(r.Context(), claims.Subject)
	if err != nil {
		switch {
		case errors.Is(err, twofactor.ErrAlreadyEnabled):
			writeError(w, http.StatusConflict, "two_factor_already_enabled", "two-factor authentication is already enabled")
		case identity.IsNotFound(err):
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		default:
			h.writeServerError(w, "auth.2fa.setup.fail", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, twoFactorSetupResponse{
		Secret:          enr.Secret,
		ProvisioningURI: enr.ProvisioningURI,
	})
}

func (h *Handler) handleTwoFactorEnable(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req twoFactorEnableRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	err := h.twoFactor.Enable(r.Context(), claims.Subject, req.Code, clientIP(r, h.cfg.TrustProxy))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, twofactor.ErrTooManyAttempts):
		writeRateLimited(w, time.Minute)
	case errors.Is(err, twofactor.ErrCodeInvalid):
		writeError(w, http.StatusBadRequest, "two_factor_code_invalid", "invalid verification code")
	case errors.Is(err, twofactor.ErrNoPendingSecret):
		writeError(w, http.StatusConflict, "two_factor_not_pending", "run two-factor setup first")
	case errors.Is(err, twofactor.ErrAlreadyEnabled):
		writeError(w, http.StatusConflict, "two_factor_already_enabled", "two-factor authentication is already enabled")
	case identity.IsNotFound(err):
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
	default:
		h.writeServerError(w, "auth.2fa.enable.fail", err)
	}
}

func (h *Handler) handleSessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	list, err := h.sessions.Sessions(r.Context(), claims.Subject)
	if err != nil {
		h.writeServerError(w, "auth.sessions.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: toSessionInfos(list, claims.TokenID)})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	ident, err := h.accounts.Lookup(r.Context(), claims.Subject)
	if err != nil {
		if identity.IsNotFound(err) || errors.Is(err, identity.ErrNotActive) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "identity not available")
			return
		}
		h.writeServerError(w, "auth.me.fail", err)
		return
	}

	writeJSON(w, http.StatusOK, meResponse{Identity: toIdentityResponse(ident)})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (accesstoken.Claims, bool) {
	tok := bearerToken(r)
	if tok == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return accesstoken.Claims{}, false
	}
	claims, err := h.sessions.Authenticate(r.Context(), tok)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
		return accesstoken.Claims{}, false
	}
	return claims, true
}

// writeServerError maps storage and cancellation failures to 503, anything else to 500.
func (h *Handler) writeServerError(w http.ResponseWriter, event string, err error) {
	if errors.Is(err, session.ErrStorageUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		h.log.Warn(event, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "service temporarily unavailable")
		return
	}
	h.log.Error(event, "err", err)
	writeError(w, http.StatusInternalServerError, "server_error", "internal error")
}

// inputMessage exposes the validation message of an identity.OpError.
func inputMessage(err error) string {
	var op identity.OpError
	if errors.As(err, &op) && op.Msg != "" {
		return op.Msg
	}
	return "invalid request"
}
