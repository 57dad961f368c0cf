package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	created, err := st.Create(ctx, NewIdentity{
		Username:     "Alice",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		Now:          now,
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, []Role{RoleEmployee}, created.Roles, "default role")
	require.True(t, created.Active())

	byName, err := st.GetByUsername(ctx, " ALICE ")
	require.NoError(t, err)
	require.Equal(t, created.ID, byName.ID)

	byID, err := st.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", byID.Username)

	// Returned values are copies.
	byID.Roles[0] = RoleAdmin
	again, err := st.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, RoleEmployee, again.Roles[0])
}

func TestMemoryStore_Conflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Create(ctx, NewIdentity{Username: "bob", Email: "bob@example.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = st.Create(ctx, NewIdentity{Username: "BOB", PasswordHash: "h"})
	var ce ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "username", ce.Field)

	_, err = st.Create(ctx, NewIdentity{Username: "robert", Email: "Bob@Example.com", PasswordHash: "h"})
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "email", ce.Field)
}

func TestMemoryStore_CreateRejectsInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Create(ctx, NewIdentity{Username: " ", PasswordHash: "h"})
	require.True(t, IsInvalidInput(err))

	_, err = st.Create(ctx, NewIdentity{Username: "carol", PasswordHash: "h", Roles: []Role{"ROOT"}})
	require.True(t, IsInvalidInput(err))
}

func TestMemoryStore_NotFound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.GetByID(ctx, "missing")
	require.True(t, IsNotFound(err))

	err = st.UpdatePasswordHash(ctx, "missing", "h", time.Now())
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_TwoFactorCompareAndSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := NewMemoryStore()
	now := time.Now().UTC()

	id, err := st.Create(ctx, NewIdentity{Username: "dave", PasswordHash: "h"})
	require.NoError(t, err)

	require.NoError(t, st.SetPendingTwoFactorSecret(ctx, id.ID, "FIRST", now))
	// A second setup replaces the pending secret before the first is confirmed.
	require.NoError(t, st.SetPendingTwoFactorSecret(ctx, id.ID, "SECOND", now))

	err = st.EnableTwoFactor(ctx, id.ID, "FIRST", now)
	require.True(t, IsConflict(err))

	require.NoError(t, st.EnableTwoFactor(ctx, id.ID, "SECOND", now))

	got, err := st.GetByID(ctx, id.ID)
	require.NoError(t, err)
	require.True(t, got.TwoFactorEnabled)
	require.Equal(t, "SECOND", got.TwoFactorSecret)
	require.Empty(t, got.TwoFactorPendingSecret)

	// Nothing pending any more.
	require.True(t, IsConflict(st.EnableTwoFactor(ctx, id.ID, "SECOND", now)))
}
