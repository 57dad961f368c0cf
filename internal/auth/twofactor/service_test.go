package twofactor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"warden/internal/auth/audit"
	"warden/internal/identity"
)

type recorder struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *recorder) Append(_ context.Context, e audit.Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

type denyAll struct{}

func (denyAll) Allow(string) (bool, time.Duration) { return false, time.Minute }

type fixture struct {
	svc   *Service
	store *identity.MemoryStore
	audit *recorder
	id    string
	now   time.Time
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	store := identity.NewMemoryStore()
	ident, err := store.Create(context.Background(), identity.NewIdentity{
		Username:     "alice",
		PasswordHash: "$argon2id$unused",
		Now:          stepMid,
	})
	require.NoError(t, err)

	rec := &recorder{}
	base := []Option{
		WithAudit(rec),
		WithClock(func() time.Time { return stepMid }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return &fixture{
		svc:   NewService(cfg, store, append(base, opts...)...),
		store: store,
		audit: rec,
		id:    ident.ID,
		now:   stepMid,
	}
}

func TestService_TwoStepEnrollment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	enr, err := f.svc.Setup(ctx, f.id)
	require.NoError(t, err)
	require.NotEmpty(t, enr.Secret)
	require.Contains(t, enr.ProvisioningURI, "otpauth://totp/warden:alice")

	pending, err := f.store.GetByID(ctx, f.id)
	require.NoError(t, err)
	require.False(t, pending.TwoFactorEnabled, "setup alone never enables")
	require.Equal(t, enr.Secret, pending.TwoFactorPendingSecret)

	require.ErrorIs(t, f.svc.Enable(ctx, f.id, "000000", "1.2.3.4"), ErrCodeInvalid)

	code, err := GenerateCode(enr.Secret, f.now)
	require.NoError(t, err)
	require.NoError(t, f.svc.Enable(ctx, f.id, code, "1.2.3.4"))

	enabled, err := f.store.GetByID(ctx, f.id)
	require.NoError(t, err)
	require.True(t, enabled.TwoFactorEnabled)
	require.Equal(t, enr.Secret, enabled.TwoFactorSecret)
	require.Empty(t, enabled.TwoFactorPendingSecret)

	require.Len(t, f.audit.entries, 1)
	require.Equal(t, audit.ActionTwoFactorEnabled, f.audit.entries[0].Action)
	require.Equal(t, "1.2.3.4", f.audit.entries[0].IP)

	_, err = f.svc.Setup(ctx, f.id)
	require.ErrorIs(t, err, ErrAlreadyEnabled)
	require.ErrorIs(t, f.svc.Enable(ctx, f.id, code, "1.2.3.4"), ErrAlreadyEnabled)

	require.NoError(t, f.svc.Check(ctx, enabled, code))
}

func TestService_EnableWithoutSetup(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	require.ErrorIs(t, f.svc.Enable(context.Background(), f.id, "123456", ""), ErrNoPendingSecret)
}

func TestService_SetupReplacesPendingSecret(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, DefaultConfig())

	first, err := f.svc.Setup(ctx, f.id)
	require.NoError(t, err)
	second, err := f.svc.Setup(ctx, f.id)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	stale, err := GenerateCode(first.Secret, f.now)
	require.NoError(t, err)
	fresh, err := GenerateCode(second.Secret, f.now)
	require.NoError(t, err)

	if stale != fresh {
		require.ErrorIs(t, f.svc.Enable(ctx, f.id, stale, ""), ErrCodeInvalid)
	}
	require.NoError(t, f.svc.Enable(ctx, f.id, fresh, ""))
}

func TestService_EnableIsThrottled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig(), WithLimiter(denyAll{}))
	require.ErrorIs(t, f.svc.Enable(context.Background(), f.id, "123456", ""), ErrTooManyAttempts)
}

func TestService_DefaultLimiterBoundsAttempts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.EnableAttemptsPerMinute, cfg.EnableBurst = 1, 2
	f := newFixture(t, cfg)

	_, err := f.svc.Setup(ctx, f.id)
	require.NoError(t, err)

	for range 2 {
		require.ErrorIs(t, f.svc.Enable(ctx, f.id, "abcdef", ""), ErrCodeInvalid)
	}
	require.ErrorIs(t, f.svc.Enable(ctx, f.id, "abcdef", ""), ErrTooManyAttempts)
}

func TestService_CheckSkew(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	secret, err := GenerateSecret()
	require.NoError(t, err)
	ident := identity.Identity{ID: "x", TwoFactorEnabled: true, TwoFactorSecret: secret}

	prev, err := GenerateCode(secret, stepMid.Add(-30*time.Second))
	require.NoError(t, err)
	cur, err := GenerateCode(secret, stepMid)
	require.NoError(t, err)

	exact := newFixture(t, DefaultConfig())
	require.NoError(t, exact.svc.Check(ctx, ident, cur))
	if prev != cur {
		require.ErrorIs(t, exact.svc.Check(ctx, ident, prev), ErrCodeInvalid)
	}

	cfg := DefaultConfig()
	cfg.SkewSteps = 1
	lenient := newFixture(t, cfg)
	require.NoError(t, lenient.svc.Check(ctx, ident, prev))

	require.ErrorIs(t, exact.svc.Check(ctx, identity.Identity{ID: "y"}, cur), ErrNotEnabled)
}
