package session

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"warden/internal/identity"
	"warden/internal/migrations"
)

func TestPostgresStore_Contract(t *testing.T) {
	dbURL := os.Getenv("WARDEN_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("WARDEN_TEST_DATABASE_URL is not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	pool := mustPGXPool(ctx, t, dbURL)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })
	if _, err := migrations.Up(ctx, db, migrations.Postgres, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	identities, err := identity.NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("identity store: %v", err)
	}

	runStoreContract(t, func(t *testing.T) storeHarness {
		t.Helper()

		if _, err := pool.Exec(ctx, `DELETE FROM warden.sessions`); err != nil {
			t.Fatalf("reset sessions: %v", err)
		}
		return storeHarness{
			store: NewPostgresStore(pool),
			newIdentity: func(t *testing.T) string {
				return mustCreateIdentity(ctx, t, pool, identities)
			},
		}
	})
}

func TestPostgresStore_UnknownIdentityIsStorageError(t *testing.T) {
	dbURL := os.Getenv("WARDEN_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("WARDEN_TEST_DATABASE_URL is not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	pool := mustPGXPool(ctx, t, dbURL)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })
	if _, err := migrations.Up(ctx, db, migrations.Postgres, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	in, _ := newTestSession(uuid.NewString(), time.Now().UTC(), time.Hour)
	_, err := NewPostgresStore(pool).Create(ctx, in)
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable for a dangling identity, got %v", err)
	}
}

func mustPGXPool(ctx context.Context, t *testing.T, dbURL string) *pgxpool.Pool {
	t.Helper()

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		t.Fatalf("pgxpool.ParseConfig: %v", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pgxpool.NewWithConfig: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (WARDEN_TEST_DATABASE_URL set): %v", err)
		}
		t.Fatalf("pool.Ping: %v", err)
	}

	return pool
}

func mustCreateIdentity(ctx context.Context, t *testing.T, pool *pgxpool.Pool, store *identity.PostgresStore) string {
	t.Helper()

	ident, err := store.Create(ctx, identity.NewIdentity{
		Username:     "it-" + uuid.NewString(),
		PasswordHash: "$argon2id$unused",
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM warden.identities WHERE id = $1::uuid`, ident.ID)
	})
	return ident.ID
}

// shouldSkipIntegration reports whether err looks like "nothing is listening",
// which is only tolerated outside CI.
func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host")
}
