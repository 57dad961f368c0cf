package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]Identity
	byUsername map[string]string
	byEmail    map[string]string

	// resets maps a reset token hash to its identity; resetOf is the reverse index.
	resets  map[string]pendingReset
	resetOf map[string]string
}

type pendingReset struct {
	id        string
	expiresAt time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]Identity),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		resets:     make(map[string]pendingReset),
		resetOf:    make(map[string]string),
	}
}

func (s *MemoryStore) Create(ctx context.Context, in NewIdentity) (Identity, error) {
	const op = "identity.MemoryStore.Create"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	in, err := validateNew(op, in)
	if err != nil {
		return Identity{}, err
	}

	uname := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[uname]; ok {
		return Identity{}, ConflictError{Op: op, Field: "username"}
	}
	if email != "" {
		if _, ok := s.byEmail[email]; ok {
			return Identity{}, ConflictError{Op: op, Field: "email"}
		}
	}

	id := Identity{
		ID:           uuid.NewString(),
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.TrimSpace(in.Email),
		Roles:        in.Roles,
		PasswordHash: in.PasswordHash,
		Status:       StatusActive,
		CreatedAt:    in.Now,
		UpdatedAt:    in.Now,
	}
	s.byID[id.ID] = id
	s.byUsername[uname] = id.ID
	if email != "" {
		s.byEmail[email] = id.ID
	}
	return id.Clone(), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	got, ok := s.byID[id]
	if !ok {
		return Identity{}, NotFoundError{Op: "identity.MemoryStore.GetByID", Resource: "identity"}
	}
	return got.Clone(), nil
}

func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[NormalizeUsername(username)]
	if !ok {
		return Identity{}, NotFoundError{Op: "identity.MemoryStore.GetByUsername", Resource: "identity"}
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	norm := NormalizeEmail(email)
	id, ok := s.byEmail[norm]
	if norm == "" || !ok {
		return Identity{}, NotFoundError{Op: "identity.MemoryStore.GetByEmail", Resource: "identity"}
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	const op = "identity.MemoryStore.UpdatePasswordHash"
	if hash == "" {
		return invalid(op, "password hash is required")
	}
	return s.mutate(ctx, op, id, func(i *Identity) error {
		i.PasswordHash = hash
		i.UpdatedAt = now
		return nil
	})
}

func (s *MemoryStore) SetPendingTwoFactorSecret(ctx context.Context, id, secret string, now time.Time) error {
	const op = "identity.MemoryStore.SetPendingTwoFactorSecret"
	if secret == "" {
		return invalid(op, "secret is required")
	}
	return s.mutate(ctx, op, id, func(i *Identity) error {
		i.TwoFactorPendingSecret = secret
		i.UpdatedAt = now
		return nil
	})
}

func (s *MemoryStore) EnableTwoFactor(ctx context.Context, id, pendingSecret string, now time.Time) error {
	const op = "identity.MemoryStore.EnableTwoFactor"
	return s.mutate(ctx, op, id, func(i *Identity) error {
		if pendingSecret == "" || i.TwoFactorPendingSecret != pendingSecret {
			return ConflictError{Op: op, Field: "two_factor"}
		}
		i.TwoFactorSecret = i.TwoFactorPendingSecret
		i.TwoFactorPendingSecret = ""
		i.TwoFactorEnabled = true
		i.UpdatedAt = now
		return nil
	})
}

func (s *MemoryStore) SetPasswordReset(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	const op = "identity.MemoryStore.SetPasswordReset"
	if tokenHash == "" {
		return invalid(op, "token hash is required")
	}
	return s.mutate(ctx, op, id, func(i *Identity) error {
		if old, ok := s.resetOf[id]; ok {
			delete(s.resets, old)
		}
		s.resets[tokenHash] = pendingReset{id: id, expiresAt: expiresAt}
		s.resetOf[id] = tokenHash
		i.UpdatedAt = now
		return nil
	})
}

func (s *MemoryStore) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (Identity, error) {
	const op = "identity.MemoryStore.ResetPassword"
	if passwordHash == "" {
		return Identity{}, invalid(op, "password hash is required")
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.resets[tokenHash]
	if !ok || !now.Before(r.expiresAt) {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidResetToken}
	}
	got, ok := s.byID[r.id]
	if !ok || !got.Active() {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidResetToken}
	}

	delete(s.resets, tokenHash)
	delete(s.resetOf, r.id)
	got.PasswordHash = passwordHash
	got.UpdatedAt = now
	s.byID[r.id] = got
	return got.Clone(), nil
}

// SetStatus flips the soft status of an identity.
func (s *MemoryStore) SetStatus(ctx context.Context, id string, status Status, now time.Time) error {
	return s.mutate(ctx, "identity.MemoryStore.SetStatus", id, func(i *Identity) error {
		i.Status = status
		i.UpdatedAt = now
		return nil
	})
}

func (s *MemoryStore) mutate(ctx context.Context, op, id string, fn func(*Identity) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	got, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "identity"}
	}
	if err := fn(&got); err != nil {
		return err
	}
	s.byID[id] = got
	return nil
}
