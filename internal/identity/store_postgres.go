package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; the store never closes it.
// Schema identifiers are validated and quoted before they reach SQL text.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "warden").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "warden"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const identityColumns = `id::text, username, email, roles, password_hash,
	two_factor_secret, two_factor_enabled, two_factor_pending_secret,
	status, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, in NewIdentity) (Identity, error) {
	const op = "identity.PostgresStore.Create"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	in, err := validateNew(op, in)
	if err != nil {
		return Identity{}, err
	}

	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	var emailNorm *string
	if email != "" {
		n := NormalizeEmail(email)
		emailNorm = &n
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO `+s.table()+` (
		     id, username, username_norm, email, email_norm, roles, password_hash, status, created_at, updated_at
		   ) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $9)
		 RETURNING `+identityColumns,
		uuid.NewString(),
		username,
		NormalizeUsername(username),
		email,
		emailNorm,
		RoleStrings(in.Roles),
		in.PasswordHash,
		string(StatusActive),
		in.Now,
	)
	out, err := scanIdentity(row)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Identity, error) {
	const op = "identity.PostgresStore.GetByID"

	// A malformed id cannot exist; skip the round-trip and the cast error.
	if _, err := uuid.Parse(id); err != nil {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	row := s.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM `+s.table()+` WHERE id = $1`, id)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (Identity, error) {
	const op = "identity.PostgresStore.GetByUsername"

	row := s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM `+s.table()+` WHERE username_norm = $1`,
		NormalizeUsername(username),
	)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Identity, error) {
	const op = "identity.PostgresStore.GetByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	row := s.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM `+s.table()+` WHERE email_norm = $1`, norm)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	const op = "identity.PostgresStore.UpdatePasswordHash"
	if hash == "" {
		return invalid(op, "password hash is required")
	}
	return s.execOne(ctx, op, id,
		`UPDATE `+s.table()+` SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		hash, now,
	)
}

func (s *PostgresStore) SetPendingTwoFactorSecret(ctx context.Context, id, secret string, now time.Time) error {
	const op = "identity.PostgresStore.SetPendingTwoFactorSecret"
	if secret == "" {
		return invalid(op, "secret is required")
	}
	return s.execOne(ctx, op, id,
		`UPDATE `+s.table()+` SET two_factor_pending_secret = $2, updated_at = $3 WHERE id = $1`,
		secret, now,
	)
}

func (s *PostgresStore) EnableTwoFactor(ctx context.Context, id, pendingSecret string, now time.Time) error {
	const op = "identity.PostgresStore.EnableTwoFactor"

	if _, err := uuid.Parse(id); err != nil {
		return NotFoundError{Op: op, Resource: "identity"}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+s.table()+`
		    SET two_factor_secret = two_factor_pending_secret,
		        two_factor_pending_secret = NULL,
		        two_factor_enabled = TRUE,
		        updated_at = $3
		  WHERE id = $1 AND two_factor_pending_secret = $2`,
		id, pendingSecret, now,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	// Distinguish a lost race from an unknown identity.
	if _, err := s.GetByID(ctx, id); err != nil {
		return err
	}
	return ConflictError{Op: op, Field: "two_factor"}
}

func (s *PostgresStore) SetPasswordReset(ctx context.Context, id, tokenHash string, expiresAt, now time.Time) error {
	const op = "identity.PostgresStore.SetPasswordReset"
	if tokenHash == "" {
		return invalid(op, "token hash is required")
	}
	return s.execOne(ctx, op, id,
		`UPDATE `+s.table()+`
		    SET password_reset_hash = $2, password_reset_expires_at = $3, updated_at = $4
		  WHERE id = $1`,
		tokenHash, expiresAt, now,
	)
}

func (s *PostgresStore) ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) (Identity, error) {
	const op = "identity.PostgresStore.ResetPassword"
	if passwordHash == "" {
		return Identity{}, invalid(op, "password hash is required")
	}

	// One statement: the token is cleared in the same row update that uses it.
	row := s.pool.QueryRow(ctx,
		`UPDATE `+s.table()+`
		    SET password_hash = $2,
		        password_reset_hash = NULL,
		        password_reset_expires_at = NULL,
		        updated_at = $3
		  WHERE password_reset_hash = $1
		    AND password_reset_expires_at > $3
		    AND status = 'active'
		 RETURNING `+identityColumns,
		tokenHash, passwordHash, now,
	)
	out, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, OpError{Op: op, Kind: ErrInvalidResetToken}
		}
		return Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// SetStatus flips the soft status of an identity.
func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status, now time.Time) error {
	return s.execOne(ctx, "identity.PostgresStore.SetStatus", id,
		`UPDATE `+s.table()+` SET status = $2, updated_at = $3 WHERE id = $1`,
		string(status), now,
	)
}

func (s *PostgresStore) execOne(ctx context.Context, op, id, sql string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return NotFoundError{Op: op, Resource: "identity"}
	}
	tag, err := s.pool.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "identity"}
	}
	return nil
}

func (s *PostgresStore) table() string {
	return pgx.Identifier{s.schema, "identities"}.Sanitize()
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var (
		out           Identity
		email         *string
		roles         []string
		secret        *string
		pendingSecret *string
		status        string
	)
	err := row.Scan(
		&out.ID,
		&out.Username,
		&email,
		&roles,
		&out.PasswordHash,
		&secret,
		&out.TwoFactorEnabled,
		&pendingSecret,
		&status,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		return Identity{}, err
	}
	if email != nil {
		out.Email = *email
	}
	if secret != nil {
		out.TwoFactorSecret = *secret
	}
	if pendingSecret != nil {
		out.TwoFactorPendingSecret = *pendingSecret
	}
	out.Status = Status(status)

	// Roles are constrained by the schema; anything unknown is dropped rather than trusted.
	for _, r := range roles {
		if role, err := ParseRole(r); err == nil {
			out.Roles = append(out.Roles, role)
		}
	}
	out.Roles = NormalizeRoles(out.Roles)
	return out, nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch c {
	case "uq_identities_username_norm":
		return "username", true
	case "uq_identities_email_norm":
		return "email", true
	default:
		switch {
		case strings.Contains(c, "username"):
			return "username", true
		case strings.Contains(c, "email"):
			return "email", true
		default:
			return "unique", true
		}
	}
}
