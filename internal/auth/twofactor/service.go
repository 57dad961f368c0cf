package twofactor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"warden/internal/auth/audit"
	"warden/internal/identity"
	"warden/internal/ratelimit"
)

// Identities is the slice of the identity store enrollment needs.
type Identities interface {
	GetByID(ctx context.Context, id string) (identity.Identity, error)
	SetPendingTwoFactorSecret(ctx context.Context, id, secret string, now time.Time) error
	EnableTwoFactor(ctx context.Context, id, pendingSecret string, now time.Time) error
}

// Limiter throttles attempts per key.
type Limiter interface {
	Allow(key string) (bool, time.Duration)
}

// Enrollment is returned by Setup. Secret is shown once for manual entry.
type Enrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// Service runs enrollment (Setup, then Enable with a first valid code) and the
// login-time Check.
//
// Setup stores the new secret as pending and leaves any enabled secret alone.
// Enable validates against the pending secret only and promotes it with a
// compare-and-set, so a concurrent Setup makes the older code worthless.
type Service struct {
	cfg     Config
	ids     Identities
	audit   audit.Appender
	limiter Limiter
	log     *slog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithAudit(a audit.Appender) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

func WithLimiter(l Limiter) Option {
	return func(s *Service) {
		if l != nil {
			s.limiter = l
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock replaces the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

type discardAppender struct{}

func (discardAppender) Append(context.Context, audit.Entry) {}

func NewService(cfg Config, ids Identities, opts ...Option) *Service {
	s := &Service{
		cfg:     cfg,
		ids:     ids,
		audit:   discardAppender{},
		limiter: ratelimit.New(cfg.EnableAttemptsPerMinute, time.Minute, cfg.EnableBurst),
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Setup generates and stores a pending secret, replacing an older pending one.
func (s *Service) Setup(ctx context.Context, identityID string) (Enrollment, error) {
	ident, err := s.ids.GetByID(ctx, identityID)
	if err != nil {
		return Enrollment{}, err
	}
	if ident.TwoFactorEnabled {
		return Enrollment{}, ErrAlreadyEnabled
	}

	secret, err := GenerateSecret()
	if err != nil {
		return Enrollment{}, err
	}
	uri, err := ProvisioningURI(secret, ident.Username, s.cfg.Issuer)
	if err != nil {
		return Enrollment{}, err
	}
	if err := s.ids.SetPendingTwoFactorSecret(ctx, ident.ID, secret, s.now()); err != nil {
		return Enrollment{}, err
	}

	s.log.Info("auth.2fa.setup", "identity_id", ident.ID)
	return Enrollment{Secret: secret, ProvisioningURI: uri}, nil
}

// Enable activates the pending secret once code matches it.
func (s *Service) Enable(ctx context.Context, identityID, code, ip string) error {
	if ok, _ := s.limiter.Allow(identityID); !ok {
		s.log.Warn("auth.2fa.enable.throttled", "identity_id", identityID)
		return ErrTooManyAttempts
	}

	ident, err := s.ids.GetByID(ctx, identityID)
	if err != nil {
		return err
	}
	if ident.TwoFactorEnabled {
		return ErrAlreadyEnabled
	}
	pending := ident.TwoFactorPendingSecret
	if pending == "" {
		return ErrNoPendingSecret
	}

	now := s.now()
	if !validate(pending, code, now, s.cfg.SkewSteps) {
		s.log.Info("auth.2fa.enable.fail", "identity_id", ident.ID, "reason", "code_invalid")
		return ErrCodeInvalid
	}

	if err := s.ids.EnableTwoFactor(ctx, ident.ID, pending, now); err != nil {
		if identity.IsConflict(err) {
			// Setup replaced the secret the code was computed from.
			return ErrCodeInvalid
		}
		return err
	}

	s.log.Info("auth.2fa.enabled", "identity_id", ident.ID)
	s.audit.Append(ctx, audit.Entry{
		IdentityID: ident.ID,
		Action:     audit.ActionTwoFactorEnabled,
		IP:         ip,
	})
	return nil
}

// Check verifies a login-time code against the enabled secret.
func (s *Service) Check(_ context.Context, ident identity.Identity, code string) error {
	if !ident.TwoFactorEnabled || ident.TwoFactorSecret == "" {
		return ErrNotEnabled
	}
	if !validate(ident.TwoFactorSecret, code, s.now(), s.cfg.SkewSteps) {
		return ErrCodeInvalid
	}
	return nil
}

// IsClientError reports whether err is one of the enrollment outcomes a caller can act on.
func IsClientError(err error) bool {
	return errors.Is(err, ErrCodeInvalid) ||
		errors.Is(err, ErrNoPendingSecret) ||
		errors.Is(err, ErrAlreadyEnabled) ||
		errors.Is(err, ErrNotEnabled)
}
