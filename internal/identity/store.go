package identity

import (
	"context"
	"slices"
	"time"
)

// Status is the soft lifecycle state of an identity. Identities are never hard-deleted.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Identity is the security principal sessions are issued for.
type Identity struct {
	ID       string // UUID
	Username string
	Email    string
	Roles    []Role

	PasswordHash string

	// TwoFactorSecret is set only once enrollment completed.
	TwoFactorSecret  string
	TwoFactorEnabled bool
	// TwoFactorPendingSecret holds a generated but not yet confirmed secret.
	TwoFactorPendingSecret string

	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the identity may log in.
func (i Identity) Active() bool { return i.Status == StatusActive }

// Clone returns a deep copy so stores never share slices with callers.
func (i Identity) Clone() Identity {
	i.Roles = slices.Clone(i.Roles)
	return i
}

// NewIdentity describes an identity to create. PasswordHash must already be hashed.
type NewIdentity struct {
	Username     string
	Email        string
	Roles        []Role
	PasswordHash string
	Now          time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	Create(ctx context.Context, in NewIdentity) (Identity, error)
	GetByID(ctx context.Context, id string) (Identity, error)
	GetByUsername(ctx context.Context, username string) (Identity, error)
	GetByEmail(ctx context.Context, email string) (Identity, error)

	UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error

	// SetPendingTwoFactorSecret stores secret as the pending enrollment, replacing any older
	// pending one. The enabled secret is untouched.
	SetPendingTwoFactorSecret(ctx context.Context, id, secret string, now time.Time) error

	// EnableTwoFactor promotes the pending secret to enabled, but only if it still equals
	// pendingSecret. A concurrent re-setup therefore yields a ConflictError instead of
	// enabling a secret nobody proved possession of.
	EnableTwoFactor(ctx context.Context, id, pendingSecret string, now time.Time) error

	// SetPasswordReset records tokenHash as the identity's only outstanding reset token.
	SetPasswordReset(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error

	// ResetPassword atomically consumes the reset token with tokenHash, if it is still valid
	// at now and its identity is active, and replaces the password hash. Anything else is
	// ErrInvalidResetToken.
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (Identity, error)
}

func validateNew(op string, in NewIdentity) (NewIdentity, error) {
	if NormalizeUsername(in.Username) == "" {
		return in, invalid(op, "username is required")
	}
	if in.PasswordHash == "" {
		return in, invalid(op, "password hash is required")
	}
	for _, r := range in.Roles {
		if !r.Valid() {
			return in, invalid(op, "unknown role "+string(r))
		}
	}
	if len(in.Roles) == 0 {
		in.Roles = []Role{RoleEmployee}
	}
	in.Roles = NormalizeRoles(in.Roles)
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}
