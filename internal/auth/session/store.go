package session

import (
	"context"
	"time"
)

// Session is one issued credential pair as persisted. The refresh token itself is
// never stored; RefreshTokenHash is its digest.
type Session struct {
	ID               string
	IdentityID       string
	AccessTokenID    string
	RefreshTokenHash string
	IP               string
	UserAgent        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Expired reports whether the session is past its absolute expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// NewSession is the input to Store.Create. ID is generated when empty.
type NewSession struct {
	ID               string
	IdentityID       string
	AccessTokenID    string
	RefreshTokenHash string
	IP               string
	UserAgent        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// Store persists sessions. Every write is a single atomic step at the backend.
type Store interface {
	// Create persists a session with both token halves.
	Create(ctx context.Context, in NewSession) (Session, error)

	// ConsumeByRefreshToken finds the session for refreshHash and deletes it in one
	// atomic step. It returns ErrNotFound when nothing matches and ErrExpired, with the
	// deleted session, when the match had expired at now.
	ConsumeByRefreshToken(ctx context.Context, refreshHash string, now time.Time) (Session, error)

	// DeleteByAccessTokenID removes the session for an access token id. Absent is not an error.
	DeleteByAccessTokenID(ctx context.Context, accessTokenID string) error

	// ListByIdentity returns every stored session of an identity, oldest first.
	ListByIdentity(ctx context.Context, identityID string) ([]Session, error)

	// DeleteAllForIdentity removes every session of an identity and returns how many.
	DeleteAllForIdentity(ctx context.Context, identityID string) (int64, error)

	// DeleteExpired removes sessions whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func (in NewSession) validate() error {
	switch {
	case in.IdentityID == "", in.AccessTokenID == "", in.RefreshTokenHash == "":
		return ErrInvalidSession
	case in.ExpiresAt.IsZero() || !in.ExpiresAt.After(in.CreatedAt):
		return ErrInvalidSession
	}
	return nil
}
