package identity

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"warden/security/token"
)

func registerForReset(t *testing.T, a *Authenticator) Identity {
	t.Helper()
	id, err := a.Register(context.Background(), RegisterInput{Username: "alice", Email: "Alice@Example.com", Password: "Sup3r-secret"})
	require.NoError(t, err)
	return id
}

func TestAuthenticator_ResetPasswordIsSingleUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := testAuthenticator(t)
	a.WithResetTokens(token.NewHasher([]byte("reset-test-key-reset-test-key-xx")), 0)
	alice := registerForReset(t, a)

	r, err := a.RequestReset(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, alice.ID, r.Identity.ID)
	require.NotEmpty(t, r.Token)
	require.Equal(t, DefaultResetTTL, r.ExpiresAt.Sub(alice.CreatedAt))

	got, err := a.ResetPassword(ctx, r.Token, "N3w-secret!")
	require.NoError(t, err)
	require.Equal(t, alice.ID, got.ID)

	_, err = a.VerifyCredentials(ctx, "alice", "N3w-secret!")
	require.NoError(t, err)
	_, err = a.VerifyCredentials(ctx, "alice", "Sup3r-secret")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = a.ResetPassword(ctx, r.Token, "Th1rd-secret!")
	require.ErrorIs(t, err, ErrInvalidResetToken)
}

func TestAuthenticator_ResetTokenExpires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := testAuthenticator(t)
	registerForReset(t, a)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a.WithClock(func() time.Time { return now })
	a.WithResetTokens(token.Hasher{}, time.Hour)

	r, err := a.RequestReset(ctx, "alice@example.com")
	require.NoError(t, err)

	now = now.Add(time.Hour)
	_, err = a.ResetPassword(ctx, r.Token, "N3w-secret!")
	require.ErrorIs(t, err, ErrInvalidResetToken, "expiry is exclusive")
}

func TestAuthenticator_NewerResetReplacesOlder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := testAuthenticator(t)
	registerForReset(t, a)

	first, err := a.RequestReset(ctx, "alice@example.com")
	require.NoError(t, err)
	second, err := a.RequestReset(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	_, err = a.ResetPassword(ctx, first.Token, "N3w-secret!")
	require.ErrorIs(t, err, ErrInvalidResetToken)
	_, err = a.ResetPassword(ctx, second.Token, "N3w-secret!")
	require.NoError(t, err)
}

func TestAuthenticator_ResetPolicyFailureKeepsToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, _ := testAuthenticator(t)
	registerForReset(t, a)

	r, err := a.RequestReset(ctx, "alice@example.com")
	require.NoError(t, err)

	_, err = a.ResetPassword(ctx, r.Token, "short")
	require.True(t, IsInvalidInput(err), "err=%v", err)

	_, err = a.ResetPassword(ctx, r.Token, "N3w-secret!")
	require.NoError(t, err)
}

func TestAuthenticator_RequestResetRejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, st := testAuthenticator(t)
	alice := registerForReset(t, a)

	_, err := a.RequestReset(ctx, "nobody@example.com")
	require.True(t, IsNotFound(err), "err=%v", err)
	_, err = a.RequestReset(ctx, "")
	require.True(t, IsNotFound(err), "err=%v", err)

	r, err := a.RequestReset(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, st.SetStatus(ctx, alice.ID, StatusDisabled, time.Now()))

	_, err = a.RequestReset(ctx, "alice@example.com")
	require.ErrorIs(t, err, ErrNotActive)
	_, err = a.ResetPassword(ctx, r.Token, "N3w-secret!")
	require.ErrorIs(t, err, ErrInvalidResetToken, "disabled identities cannot redeem")

	for _, bad := range []string{"", "   ", string(make([]byte, maxResetTokenChars+1))} {
		_, err = a.ResetPassword(ctx, bad, "N3w-secret!")
		require.ErrorIs(t, err, ErrInvalidResetToken)
	}
}

func TestMemoryStore_ConcurrentResetHasOneWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, st := testAuthenticator(t)
	alice := registerForReset(t, a)

	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, st.SetPasswordReset(ctx, alice.ID, "digest", now.Add(time.Hour), now))

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range 16 {
		wg.Go(func() {
			if _, err := st.ResetPassword(ctx, "digest", "new-hash", now); err == nil {
				wins.Add(1)
			}
		})
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
}
