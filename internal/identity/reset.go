package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"warden/security/token"
)

// DefaultResetTTL is how long a password reset token stays redeemable.
const DefaultResetTTL = 24 * time.Hour

const (
	resetTokenBytes    = 32
	maxResetTokenChars = 256
)

// PasswordReset is an issued reset token. Token is the only plaintext copy; stores keep its digest.
type PasswordReset struct {
	Identity  Identity
	Token     string
	ExpiresAt time.Time
}

// WithResetTokens sets the digest used for reset tokens and their lifetime.
// A non-positive ttl keeps DefaultResetTTL.
func (a *Authenticator) WithResetTokens(h token.Hasher, ttl time.Duration) *Authenticator {
	a.resetHasher = h
	if ttl > 0 {
		a.resetTTL = ttl
	}
	return a
}

// RequestReset issues a reset token for the active identity registered under email.
// A newer request replaces any outstanding token. Delivering the token is the caller's job.
func (a *Authenticator) RequestReset(ctx context.Context, email string) (PasswordReset, error) {
	const op = "identity.RequestReset"

	found, err := a.store.GetByEmail(ctx, email)
	if err != nil {
		return PasswordReset{}, err
	}
	if !found.Active() {
		return PasswordReset{}, OpError{Op: op, Kind: ErrNotActive}
	}

	b := make([]byte, resetTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return PasswordReset{}, fmt.Errorf("%s: %w", op, err)
	}
	plain := base64.RawURLEncoding.EncodeToString(b)

	now := a.now()
	expires := now.Add(a.resetTTL)
	if err := a.store.SetPasswordReset(ctx, found.ID, a.resetHasher.Hash(plain), expires, now); err != nil {
		return PasswordReset{}, err
	}
	return PasswordReset{Identity: found, Token: plain, ExpiresAt: expires}, nil
}

// ResetPassword redeems plainToken and sets next as the password. The token is single use.
// A next that fails the policy leaves the token redeemable.
// Revoking outstanding sessions is the caller's job.
func (a *Authenticator) ResetPassword(ctx context.Context, plainToken, next string) (Identity, error) {
	const op = "identity.ResetPassword"

	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" || len(plainToken) > maxResetTokenChars {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidResetToken}
	}

	hash, err := a.passwords.Hash(next)
	if err != nil {
		return Identity{}, policyError(op, err)
	}
	return a.store.ResetPassword(ctx, a.resetHasher.Hash(plainToken), hash, a.now())
}
