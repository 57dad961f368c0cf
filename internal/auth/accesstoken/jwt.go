package accesstoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"warden/internal/identity"
	"warden/internal/ids"
)

// JWTSigner issues HS256 JSON Web Tokens.
type JWTSigner struct {
	issuer string
	skew   time.Duration
	now    func() time.Time
	secret []byte
	parser *jwt.Parser
}

type jwtClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// NewJWTSigner builds a JWTSigner from cfg.JWTSecret.
func NewJWTSigner(cfg Config, opts ...Option) (*JWTSigner, error) {
	if len(cfg.JWTSecret) < minJWTSecretBytes {
		return nil, ErrConfig
	}
	o := buildOptions(opts)
	return &JWTSigner{
		issuer: cfg.Issuer,
		skew:   cfg.ClockSkew,
		now:    o.now,
		secret: append([]byte(nil), cfg.JWTSecret...),
		// Time claims are checked by checkTimes against the injected clock.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

func (s *JWTSigner) Issue(subject string, roles []identity.Role, ttl time.Duration) (string, Claims, error) {
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

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		Roles: identity.RoleStrings(c.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.Issuer,
			Subject:   c.Subject,
			ID:        c.TokenID,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			NotBefore: jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", Claims{}, err
	}
	return signed, c, nil
}

func (s *JWTSigner) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrMalformed
	}

	var raw jwtClaims
	if _, err := s.parser.ParseWithClaims(token, &raw, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		return Claims{}, ErrMalformed
	}
	if raw.Issuer != s.issuer || strings.TrimSpace(raw.Subject) == "" || raw.ID == "" {
		return Claims{}, ErrMalformed
	}
	if raw.IssuedAt == nil || raw.ExpiresAt == nil {
		return Claims{}, ErrMalformed
	}

	roles, err := parseClaimRoles(raw.Roles)
	if err != nil {
		return Claims{}, err
	}
	c := Claims{
		Subject:   raw.Subject,
		Roles:     roles,
		TokenID:   raw.ID,
		Issuer:    raw.Issuer,
		IssuedAt:  raw.IssuedAt.UTC(),
		ExpiresAt: raw.ExpiresAt.UTC(),
	}
	if err := checkTimes(c, s.now(), s.skew); err != nil {
		if errors.Is(err, ErrExpired) {
			return c, err
		}
		return Claims{}, err
	}
	return c, nil
}
