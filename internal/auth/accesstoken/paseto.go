package accesstoken

import (
	"errors"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"warden/internal/identity"
	"warden/internal/ids"
)

// PasetoSigner issues PASETO v4.public tokens signed with Ed25519.
type PasetoSigner struct {
	issuer string
	skew   time.Duration
	now    func() time.Time

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoSigner builds a PasetoSigner from cfg.PasetoV4SecretKeyHex.
func NewPasetoSigner(cfg Config, opts ...Option) (*PasetoSigner, error) {
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoV4SecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	o := buildOptions(opts)
	return &PasetoSigner{
		issuer: cfg.Issuer,
		skew:   cfg.ClockSkew,
		now:    o.now,
		secret: secret,
		public: secret.Public(),
	}, nil
}

// PublicKeyHex exports the verification key for out-of-process verifiers.
func (s *PasetoSigner) PublicKeyHex() string { return s.public.ExportHex() }

func (s *PasetoSigner) Issue(subject string, roles []identity.Role, ttl time.Duration) (string, Claims, error) {
	if !validIssueInput(subject, ttl) {
		return "", Claims{}, ErrMalformed
	}
	now := s.now().Truncate(time.Second)
	c := Claims{
		Subject:   subject,
		Roles:     identity.NormalizeRoles(roles),
		TokenID:   ids.New(now),
		Issuer:    s.issuer,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	tok := paseto.NewToken()
	tok.SetIssuer(c.Issuer)
	tok.SetSubject(c.Subject)
	tok.SetJti(c.TokenID)
	tok.SetIssuedAt(c.IssuedAt)
	tok.SetNotBefore(c.IssuedAt)
	tok.SetExpiration(c.ExpiresAt)
	if err := tok.Set("roles", identity.RoleStrings(c.Roles)); err != nil {
		return "", Claims{}, err
	}

	return tok.V4Sign(s.secret, nil), c, nil
}

func (s *PasetoSigner) Verify(token string) (Claims, error) {
	// Expiry is checked below against the injected clock so that an expired token
	// still yields its claims.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(s.issuer))

	parsed, err := p.ParseV4Public(s.public, token, nil)
	if err != nil {
		return Claims{}, ErrMalformed
	}

	var c Claims
	c.Issuer, _ = parsed.GetIssuer()
	if c.Subject, err = parsed.GetSubject(); err != nil || c.Subject == "" {
		return Claims{}, ErrMalformed
	}
	if c.TokenID, err = parsed.GetJti(); err != nil || c.TokenID == "" {
		return Claims{}, ErrMalformed
	}
	iat, err := parsed.GetIssuedAt()
	if err != nil {
		return Claims{}, ErrMalformed
	}
	exp, err := parsed.GetExpiration()
	if err != nil {
		return Claims{}, ErrMalformed
	}
	c.IssuedAt, c.ExpiresAt = iat.UTC(), exp.UTC()

	var raw []string
	if err := parsed.Get("roles", &raw); err != nil {
		return Claims{}, ErrMalformed
	}
	if c.Roles, err = parseClaimRoles(raw); err != nil {
		return Claims{}, err
	}

	if err := checkTimes(c, s.now(), s.skew); err != nil {
		if errors.Is(err, ErrExpired) {
			return c, err
		}
		return Claims{}, err
	}
	return c, nil
}
