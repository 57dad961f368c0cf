package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"warden/internal/auth/accesstoken"
	"warden/internal/auth/audit"
	"warden/internal/identity"
	"warden/security/token"
)

// Directory is the identity collaborator: credential verification and fresh lookups.
//
// On identity.ErrInvalidCredentials, VerifyCredentials returns an Identity carrying the
// ID when the username resolved, so the failure can be attributed.
type Directory interface {
	VerifyCredentials(ctx context.Context, username, password string) (identity.Identity, error)
	Lookup(ctx context.Context, id string) (identity.Identity, error)
}

// SecondFactor checks a login-time one-time code for an identity with 2FA enabled.
type SecondFactor interface {
	Check(ctx context.Context, ident identity.Identity, code string) error
}

// LoginObserver is notified after a login's session is persisted. It is advisory and
// must not block the login on its own failures.
type LoginObserver interface {
	ObserveLogin(ctx context.Context, s Session)
}

// Limiter throttles login attempts per key.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// Failure reasons recorded on LOGIN_FAILURE entries.
const (
	ReasonInvalidCredentials = "invalid_credentials"
	ReasonTwoFactorInvalid   = "two_factor_invalid"
	ReasonRateLimited        = "rate_limited"
	ReasonUnavailable        = "unavailable"
)

// LoginRequest is one login attempt.
type LoginRequest struct {
	Username  string
	Password  string
	TOTPCode  string
	IP        string
	UserAgent string
}

// Issued is the result of a login or a rotation.
type Issued struct {
	SessionID        string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Identity         identity.Identity
}

// Manager orchestrates login, refresh rotation, logout and revocation.
// It holds no per-session state; all of it lives in the Store.
type Manager struct {
	cfg    Config
	store  Store
	signer accesstoken.Signer
	dir    Directory
	hasher token.Hasher

	audit    audit.Appender
	observer LoginObserver
	second   SecondFactor
	limiter  Limiter
	log      *slog.Logger
	metrics  *Metrics
	now      func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithAudit sets the audit appender. Without one, entries are discarded.
func WithAudit(a audit.Appender) ManagerOption {
	return func(m *Manager) {
		if a != nil {
			m.audit = a
		}
	}
}

// WithLoginObserver sets the post-login hook (suspicious-login detection).
func WithLoginObserver(o LoginObserver) ManagerOption {
	return func(m *Manager) { m.observer = o }
}

// WithSecondFactor enables the login-time TOTP check.
func WithSecondFactor(sf SecondFactor) ManagerOption {
	return func(m *Manager) { m.second = sf }
}

// WithLoginLimiter throttles logins per client IP.
func WithLoginLimiter(l Limiter) ManagerOption {
	return func(m *Manager) { m.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithMetrics sets the outcome counters.
func WithMetrics(mt *Metrics) ManagerOption {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

type discardAppender struct{}

func (discardAppender) Append(context.Context, audit.Entry) {}

// NewManager wires a Manager.
func NewManager(cfg Config, store Store, signer accesstoken.Signer, dir Directory, hasher token.Hasher, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:     cfg,
		store:   store,
		signer:  signer,
		dir:     dir,
		hasher:  hasher,
		audit:   discardAppender{},
		log:     slog.Default(),
		metrics: NewMetrics(nil),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login verifies credentials, persists a new session and returns its token pair.
// Every outcome is audited. Suspicious-login inspection runs after persisting and
// never affects the result.
func (m *Manager) Login(ctx context.Context, req LoginRequest) (Issued, error) {
	principal := strings.TrimSpace(req.Username)

	if m.limiter != nil {
		if ok, retry := m.limiter.Allow(req.IP); !ok {
			m.loginFailed(ctx, "", principal, req, ReasonRateLimited)
			return Issued{}, ThrottledError{RetryAfter: retry.Seconds()}
		}
	}

	ident, err := m.dir.VerifyCredentials(ctx, principal, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			m.loginFailed(ctx, ident.ID, principal, req, ReasonInvalidCredentials)
			return Issued{}, ErrInvalidCredentials
		}
		m.loginFailed(ctx, "", principal, req, ReasonUnavailable)
		return Issued{}, storageErr("session.Manager.Login", err)
	}

	if ident.TwoFactorEnabled {
		if m.second == nil {
			m.log.Error("auth.login.two_factor.unconfigured", "identity_id", ident.ID)
			m.loginFailed(ctx, ident.ID, principal, req, ReasonTwoFactorInvalid)
			return Issued{}, ErrInvalidCredentials
		}
		if err := m.second.Check(ctx, ident, req.TOTPCode); err != nil {
			m.loginFailed(ctx, ident.ID, principal, req, ReasonTwoFactorInvalid)
			return Issued{}, ErrInvalidCredentials
		}
	}

	issued, sess, err := m.issue(ctx, ident, req.IP, req.UserAgent)
	if err != nil {
		m.loginFailed(ctx, ident.ID, principal, req, ReasonUnavailable)
		m.log.Error("auth.login.issue_session.fail", "identity_id", ident.ID, "err", err)
		return Issued{}, err
	}

	m.metrics.logins.WithLabelValues("success").Inc()
	m.audit.Append(ctx, audit.Entry{
		IdentityID: ident.ID,
		SessionID:  sess.ID,
		Action:     audit.ActionLoginSuccess,
		IP:         req.IP,
		Metadata:   map[string]any{"user_agent": req.UserAgent},
	})

	if m.observer != nil {
		m.observer.ObserveLogin(ctx, sess)
	}
	return issued, nil
}

// Refresh consumes refreshToken and mints a new pair bound to the original session's
// IP and user agent. Not found, already consumed and expired all yield ErrInvalidRefresh.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (Issued, error) {
	plain, ok := sanitizeRefreshToken(refreshToken)
	if !ok {
		m.metrics.refresh.WithLabelValues("invalid").Inc()
		return Issued{}, ErrInvalidRefresh
	}

	old, err := m.store.ConsumeByRefreshToken(ctx, m.hasher.Hash(plain), m.now())
	switch {
	case errors.Is(err, ErrNotFound):
		m.metrics.refresh.WithLabelValues("invalid").Inc()
		m.log.Warn("auth.refresh.reject", "reason", "not_found")
		return Issued{}, ErrInvalidRefresh
	case errors.Is(err, ErrExpired):
		m.metrics.refresh.WithLabelValues("invalid").Inc()
		m.log.Info("auth.refresh.reject", "reason", "expired", "session_id", old.ID)
		return Issued{}, ErrInvalidRefresh
	case err != nil:
		m.metrics.refresh.WithLabelValues("error").Inc()
		return Issued{}, storageErr("session.Manager.Refresh", err)
	}

	ident, err := m.dir.Lookup(ctx, old.IdentityID)
	if err != nil {
		if identity.IsNotFound(err) || errors.Is(err, identity.ErrNotActive) {
			m.metrics.refresh.WithLabelValues("invalid").Inc()
			m.log.Warn("auth.refresh.reject", "reason", "identity_inactive", "session_id", old.ID)
			return Issued{}, ErrInvalidRefresh
		}
		m.metrics.refresh.WithLabelValues("error").Inc()
		return Issued{}, storageErr("session.Manager.Refresh", err)
	}

	issued, sess, err := m.issue(ctx, ident, old.IP, old.UserAgent)
	if err != nil {
		m.metrics.refresh.WithLabelValues("error").Inc()
		m.log.Error("auth.refresh.issue_session.fail", "identity_id", ident.ID, "err", err)
		return Issued{}, err
	}

	m.metrics.refresh.WithLabelValues("success").Inc()
	m.audit.Append(ctx, audit.Entry{
		IdentityID: ident.ID,
		SessionID:  sess.ID,
		Action:     audit.ActionTokenRefresh,
		IP:         old.IP,
		Metadata:   map[string]any{"previous_session_id": old.ID},
	})
	return issued, nil
}

// Logout deletes the session paired with accessToken. Expired but authentic tokens are
// accepted. Logging out twice is not an error. ip is the caller's address, recorded in the trail.
func (m *Manager) Logout(ctx context.Context, accessToken, ip string) error {
	claims, err := m.signer.Verify(accessToken)
	if err != nil && !errors.Is(err, accesstoken.ErrExpired) {
		return err
	}

	if err := m.store.DeleteByAccessTokenID(ctx, claims.TokenID); err != nil {
		return storageErr("session.Manager.Logout", err)
	}

	m.metrics.logout.Inc()
	m.audit.Append(ctx, audit.Entry{
		IdentityID: claims.Subject,
		Action:     audit.ActionLogout,
		IP:         ip,
		Metadata:   map[string]any{"access_token_id": claims.TokenID},
	})
	return nil
}

// RevokeAll deletes every session of identityID, e.g. on password change or
// "log out everywhere".
func (m *Manager) RevokeAll(ctx context.Context, identityID, ip string) (int64, error) {
	n, err := m.store.DeleteAllForIdentity(ctx, identityID)
	if err != nil {
		return 0, storageErr("session.Manager.RevokeAll", err)
	}

	m.audit.Append(ctx, audit.Entry{
		IdentityID: identityID,
		Action:     audit.ActionLogout,
		IP:         ip,
		Metadata:   map[string]any{"scope": "all", "revoked": n},
	})
	return n, nil
}

// Authenticate verifies an access token statelessly.
func (m *Manager) Authenticate(_ context.Context, accessToken string) (accesstoken.Claims, error) {
	return m.signer.Verify(accessToken)
}

// Sessions lists the identity's sessions.
func (m *Manager) Sessions(ctx context.Context, identityID string) ([]Session, error) {
	out, err := m.store.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, storageErr("session.Manager.Sessions", err)
	}
	return out, nil
}

// issue signs the access token before persisting, so a failure at either step
// leaves nothing behind.
func (m *Manager) issue(ctx context.Context, ident identity.Identity, ip, userAgent string) (Issued, Session, error) {
	if err := ctx.Err(); err != nil {
		return Issued{}, Session{}, err
	}
	now := m.now()

	refreshPlain, refreshHash, err := newOpaqueRefreshToken(m.cfg.RefreshTokenBytes, m.hasher)
	if err != nil {
		return Issued{}, Session{}, err
	}

	access, claims, err := m.signer.Issue(ident.ID, ident.Roles, m.cfg.AccessTokenTTL)
	if err != nil {
		return Issued{}, Session{}, err
	}

	sess, err := m.store.Create(ctx, NewSession{
		IdentityID:       ident.ID,
		AccessTokenID:    claims.TokenID,
		RefreshTokenHash: refreshHash,
		IP:               ip,
		UserAgent:        userAgent,
		CreatedAt:        now,
		ExpiresAt:        now.Add(m.cfg.RefreshTokenTTL),
	})
	if err != nil {
		return Issued{}, Session{}, storageErr("session.Manager.issue", err)
	}

	return Issued{
		SessionID:        sess.ID,
		AccessToken:      access,
		AccessExpiresAt:  claims.ExpiresAt,
		RefreshToken:     refreshPlain,
		RefreshExpiresAt: sess.ExpiresAt,
		Identity:         ident,
	}, sess, nil
}

func (m *Manager) loginFailed(ctx context.Context, identityID, principal string, req LoginRequest, reason string) {
	m.metrics.logins.WithLabelValues(reason).Inc()
	m.log.Info("auth.login.fail", "reason", reason, "identity_id", identityID, "ip", req.IP)

	m.audit.Append(ctx, audit.Entry{
		IdentityID: identityID,
		Action:     audit.ActionLoginFailure,
		IP:         req.IP,
		Metadata: map[string]any{
			audit.MetaPrincipal: principal,
			"reason":            reason,
			"user_agent":        req.UserAgent,
		},
	})
}
