package accesstoken

import (
	"strings"
	"time"

	"warden/internal/identity"
)

// Claims is the verified content of an access token.
type Claims struct {
	Subject   string
	Roles     []identity.Role
	TokenID   string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether the token carries role.
func (c Claims) HasRole(role identity.Role) bool { return identity.HasRole(c.Roles, role) }

// Signer creates and verifies access tokens. Implementations are safe for concurrent use.
type Signer interface {
	Issue(subject string, roles []identity.Role, ttl time.Duration) (string, Claims, error)
	Verify(token string) (Claims, error)
}

// Option configures a signer.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// checkTimes applies expiry and the issued-at sanity bound shared by both signers.
// An authentic token with a future iat beyond skew is malformed; a passed expiry is ErrExpired.
func checkTimes(c Claims, now time.Time, skew time.Duration) error {
	if c.ExpiresAt.IsZero() || c.IssuedAt.IsZero() || c.ExpiresAt.Before(c.IssuedAt) {
		return ErrMalformed
	}
	if c.IssuedAt.After(now.Add(skew)) {
		return ErrMalformed
	}
	if !now.Before(c.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

func parseClaimRoles(raw []string) ([]identity.Role, error) {
	roles, err := identity.ParseRoles(raw)
	if err != nil {
		return nil, ErrMalformed
	}
	return roles, nil
}

func validIssueInput(subject string, ttl time.Duration) bool {
	return strings.TrimSpace(subject) != "" && ttl > 0
}
