package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"warden/security/password"
	"warden/security/token"
)

// Authenticator verifies credentials against a Store and owns password lifecycle operations.
type Authenticator struct {
	store     Store
	passwords password.Config
	now       func() time.Time

	resetHasher token.Hasher
	resetTTL    time.Duration

	// dummyHash is verified when the username is unknown so both paths pay the Argon2id cost.
	dummyHash string
}

// NewAuthenticator builds an Authenticator. The dummy hash is computed once up front.
func NewAuthenticator(store Store, passwords password.Config) (*Authenticator, error) {
	if store == nil {
		return nil, errors.New("identity: nil store")
	}
	dummy, err := passwords.HashUnchecked("warden-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}
	return &Authenticator{
		store:     store,
		passwords: passwords,
		now:       func() time.Time { return time.Now().UTC() },
		resetTTL:  DefaultResetTTL,
		dummyHash: dummy,
	}, nil
}

// WithClock replaces the time source. Intended for tests.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	if now != nil {
		a.now = now
	}
	return a
}

// VerifyCredentials returns the identity for username when password matches.
//
// On ErrInvalidCredentials the returned Identity carries ID and Username if the username
// resolved, so the failure can be attributed; otherwise it is zero.
func (a *Authenticator) VerifyCredentials(ctx context.Context, username, plain string) (Identity, error) {
	found, err := a.store.GetByUsername(ctx, username)
	if err != nil {
		if !IsNotFound(err) {
			return Identity{}, err
		}
		_, _ = a.passwords.Verify(a.dummyHash, plain)
		return Identity{}, ErrInvalidCredentials
	}

	ok, err := a.passwords.Verify(found.PasswordHash, plain)
	if err != nil || !ok || !found.Active() {
		return Identity{ID: found.ID, Username: found.Username}, ErrInvalidCredentials
	}
	return found, nil
}

// Lookup returns the current identity, failing with ErrNotActive for disabled ones.
func (a *Authenticator) Lookup(ctx context.Context, id string) (Identity, error) {
	found, err := a.store.GetByID(ctx, id)
	if err != nil {
		return Identity{}, err
	}
	if !found.Active() {
		return Identity{}, OpError{Op: "identity.Lookup", Kind: ErrNotActive}
	}
	return found, nil
}

// RegisterInput is the self-service or operator sign-up request.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Roles    []Role
}

// Register applies the password policy, hashes and persists a new identity.
func (a *Authenticator) Register(ctx context.Context, in RegisterInput) (Identity, error) {
	const op = "identity.Register"

	hash, err := a.passwords.Hash(in.Password)
	if err != nil {
		return Identity{}, policyError(op, err)
	}
	return a.store.Create(ctx, NewIdentity{
		Username:     in.Username,
		Email:        in.Email,
		Roles:        in.Roles,
		PasswordHash: hash,
		Now:          a.now(),
	})
}

// ChangePassword replaces the password after re-verifying the current one.
// Revoking outstanding sessions is the caller's job.
func (a *Authenticator) ChangePassword(ctx context.Context, id, current, next string) error {
	const op = "identity.ChangePassword"

	found, err := a.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	ok, err := a.passwords.Verify(found.PasswordHash, current)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	hash, err := a.passwords.Hash(next)
	if err != nil {
		return policyError(op, err)
	}
	return a.store.UpdatePasswordHash(ctx, id, hash, a.now())
}

func policyError(op string, err error) error {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort),
		errors.Is(err, password.ErrPasswordTooLong),
		errors.Is(err, password.ErrMissingCharClass):
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: err.Error()}
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
