package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/jackc/pgx/v5/pgxpool"

	"warden/internal/app"
	"warden/internal/auth/session"
	"warden/internal/identity"
	"warden/internal/migrations"
	"warden/security/password"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func loadConfig(stderr io.Writer) (app.Config, *slog.Logger, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, nil, err
	}
	return cfg, app.NewLoggerTo(stderr, cfg.LogLevel, "pretty"), nil
}

func runMigrate(ctx context.Context, args []string, stderr io.Writer) error {
	fs := newFlagSet("migrate", stderr)
	dialect := fs.String("dialect", string(migrations.Postgres), "postgres or sqlite")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadConfig(stderr)
	if err != nil {
		return err
	}

	switch migrations.Dialect(strings.ToLower(*dialect)) {
	case migrations.Postgres:
		if cfg.DatabaseURL == "" {
			return errors.New("migrate postgres: WARDEN_DATABASE_URL is not set")
		}
		pool, err := app.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		return app.MigratePostgres(ctx, pool, log)

	case migrations.SQLite:
		db, err := session.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		applied, err := migrations.Up(ctx, db, migrations.SQLite, log)
		if err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info("db.migrated", "dialect", migrations.SQLite, "path", cfg.SQLitePath, "applied", len(applied))
		return nil

	default:
		return fmt.Errorf("%w: unknown dialect %q", errUsage, *dialect)
	}
}

type createUserOptions struct {
	username string
	email    string
	roles    []identity.Role
}

func parseCreateUser(args []string, stderr io.Writer) (createUserOptions, error) {
	fs := newFlagSet("create-user", stderr)
	username := fs.String("username", "", "login name (required)")
	email := fs.String("email", "", "optional contact email")
	roles := fs.String("role", string(identity.RoleEmployee), "comma-separated roles")
	admin := fs.Bool("admin", false, "also grant ADMIN")
	if err := fs.Parse(args); err != nil {
		return createUserOptions{}, err
	}
	if strings.TrimSpace(*username) == "" {
		return createUserOptions{}, fmt.Errorf("%w: -username is required", errUsage)
	}

	parsed, err := identity.ParseRoles(splitCSV(*roles))
	if err != nil {
		return createUserOptions{}, err
	}
	if *admin {
		parsed = append(parsed, identity.RoleAdmin)
	}
	return createUserOptions{
		username: *username,
		email:    *email,
		roles:    identity.NormalizeRoles(parsed),
	}, nil
}

func runCreateUser(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	opts, err := parseCreateUser(args, stderr)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig(stderr)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("create-user: WARDEN_DATABASE_URL is not set")
	}

	pw, err := promptPassword(stdin, stderr)
	if err != nil {
		return err
	}

	pool, err := app.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := identity.NewPostgresStore(pool)
	if err != nil {
		return err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return err
	}
	accounts, err := identity.NewAuthenticator(store, pwCfg)
	if err != nil {
		return err
	}

	id, err := accounts.Register(ctx, identity.RegisterInput{
		Username: opts.username,
		Email:    opts.email,
		Password: pw,
		Roles:    opts.roles,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "created %s (%s) roles=%s\n",
		id.Username, id.ID, strings.Join(identity.RoleStrings(id.Roles), ","))
	return err
}

func parseResetToken(args []string, stderr io.Writer) (string, error) {
	fs := newFlagSet("reset-token", stderr)
	email := fs.String("email", "", "email of the identity (required)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if strings.TrimSpace(*email) == "" {
		return "", fmt.Errorf("%w: -email is required", errUsage)
	}
	return *email, nil
}

// runResetToken prints a reset token for operators handing it over out of band.
// It digests with the same key as the server, so the server can redeem it.
func runResetToken(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	email, err := parseResetToken(args, stderr)
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig(stderr)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("reset-token: WARDEN_DATABASE_URL is not set")
	}
	hasher, err := app.RefreshHasher(cfg, log)
	if err != nil {
		return err
	}

	pool, err := app.NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := identity.NewPostgresStore(pool)
	if err != nil {
		return err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return err
	}
	accounts, err := identity.NewAuthenticator(store, pwCfg)
	if err != nil {
		return err
	}
	accounts.WithResetTokens(hasher, cfg.PasswordResetTTL)

	reset, err := accounts.RequestReset(ctx, email)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "reset token for %s (%s), valid until %s:\n%s\n",
		reset.Identity.Username, reset.Identity.ID, reset.ExpiresAt.Format(time.RFC3339), reset.Token)
	return err
}

func runSweep(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("sweep", stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadConfig(stderr)
	if err != nil {
		return err
	}
	if cfg.SessionStore == app.StoreMemory {
		return errors.New("sweep: the memory session store lives inside the server process")
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		p, err := app.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer p.Close()
		pool = p
	}

	store, release, err := app.OpenSessionStore(ctx, cfg, pool, log)
	if err != nil {
		return err
	}
	defer release()

	n, err := session.NewSweeper(store, 0, log, nil).SweepOnce(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "deleted %d expired sessions\n", n)
	return err
}

func runKeygen(stdout io.Writer) error {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return err
	}
	_, err := fmt.Fprintf(stdout, "WARDEN_PASETO_V4_SECRET_KEY_HEX=%s\nWARDEN_TOKEN_HMAC_KEY=%s\n",
		paseto.NewV4AsymmetricSecretKey().ExportHex(), hex.EncodeToString(key))
	return err
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
