package session

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"warden/internal/ids"
)

// MemoryStore keeps sessions in process behind one mutex, which makes every
// operation trivially atomic.
type MemoryStore struct {
	mu         sync.Mutex
	byID       map[string]Session
	byRefresh  map[string]string
	byAccess   map[string]string
	byIdentity map[string]map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]Session),
		byRefresh:  make(map[string]string),
		byAccess:   make(map[string]string),
		byIdentity: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Create(ctx context.Context, in NewSession) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	if in.ID == "" {
		in.ID = ids.New(in.CreatedAt)
	}
	sess := Session(in)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byRefresh[sess.RefreshTokenHash]; ok {
		return Session{}, ErrInvalidSession
	}
	s.byID[sess.ID] = sess
	s.byRefresh[sess.RefreshTokenHash] = sess.ID
	s.byAccess[sess.AccessTokenID] = sess.ID
	set, ok := s.byIdentity[sess.IdentityID]
	if !ok {
		set = make(map[string]struct{})
		s.byIdentity[sess.IdentityID] = set
	}
	set[sess.ID] = struct{}{}
	return sess, nil
}

func (s *MemoryStore) ConsumeByRefreshToken(ctx context.Context, refreshHash string, now time.Time) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRefresh[refreshHash]
	if !ok {
		return Session{}, ErrNotFound
	}
	sess := s.removeLocked(id)
	if sess.Expired(now) {
		return sess, ErrExpired
	}
	return sess, nil
}

func (s *MemoryStore) DeleteByAccessTokenID(ctx context.Context, accessTokenID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAccess[accessTokenID]; ok {
		s.removeLocked(id)
	}
	return nil
}

func (s *MemoryStore) ListByIdentity(ctx context.Context, identityID string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, 0, len(s.byIdentity[identityID]))
	for id := range s.byIdentity[identityID] {
		out = append(out, s.byID[id])
	}
	sortOldestFirst(out)
	return out, nil
}

func (s *MemoryStore) DeleteAllForIdentity(ctx context.Context, identityID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id := range s.byIdentity[identityID] {
		s.removeLocked(id)
		n++
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.byID {
		if sess.Expired(now) {
			s.removeLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) removeLocked(id string) Session {
	sess, ok := s.byID[id]
	if !ok {
		return Session{}
	}
	delete(s.byID, id)
	delete(s.byRefresh, sess.RefreshTokenHash)
	delete(s.byAccess, sess.AccessTokenID)
	if set := s.byIdentity[sess.IdentityID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byIdentity, sess.IdentityID)
		}
	}
	return sess
}

func sortOldestFirst(in []Session) {
	slices.SortFunc(in, func(a, b Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
