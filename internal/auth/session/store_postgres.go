package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"warden/internal/ids"
)

// PostgresStore implements Store over warden.sessions.
//
// ConsumeByRefreshToken is a single DELETE ... RETURNING: Postgres row locking makes
// the second of two concurrent deletes of the same row affect nothing.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store. The pool is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const pgSessionColumns = `id, identity_id::text, access_token_id, refresh_token_hash, ip, user_agent, created_at, expires_at`

func (s *PostgresStore) Create(ctx context.Context, in NewSession) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	if in.ID == "" {
		in.ID = ids.New(in.CreatedAt)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO warden.sessions (
			id, identity_id, access_token_id, refresh_token_hash,
			ip, user_agent, created_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, in.ID, in.IdentityID, in.AccessTokenID, in.RefreshTokenHash, in.IP, in.UserAgent, in.CreatedAt, in.ExpiresAt)
	if err != nil {
		return Session{}, storageErr("session.PostgresStore.Create", err)
	}
	return Session(in), nil
}

func (s *PostgresStore) ConsumeByRefreshToken(ctx context.Context, refreshHash string, now time.Time) (Session, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM warden.sessions
		WHERE refresh_token_hash = $1
		RETURNING `+pgSessionColumns, refreshHash)

	sess, err := scanPGSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, storageErr("session.PostgresStore.ConsumeByRefreshToken", err)
	}
	if sess.Expired(now) {
		return sess, ErrExpired
	}
	return sess, nil
}

func (s *PostgresStore) DeleteByAccessTokenID(ctx context.Context, accessTokenID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM warden.sessions WHERE access_token_id = $1`, accessTokenID)
	return storageErr("session.PostgresStore.DeleteByAccessTokenID", err)
}

func (s *PostgresStore) ListByIdentity(ctx context.Context, identityID string) ([]Session, error) {
	const op = "session.PostgresStore.ListByIdentity"

	rows, err := s.pool.Query(ctx, `
		SELECT `+pgSessionColumns+`
		FROM warden.sessions
		WHERE identity_id = $1
		ORDER BY created_at, id
	`, identityID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanPGSession(rows)
		if err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteAllForIdentity(ctx context.Context, identityID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM warden.sessions WHERE identity_id = $1`, identityID)
	if err != nil {
		return 0, storageErr("session.PostgresStore.DeleteAllForIdentity", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM warden.sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, storageErr("session.PostgresStore.DeleteExpired", err)
	}
	return tag.RowsAffected(), nil
}

func scanPGSession(row pgx.Row) (Session, error) {
	var sess Session
	err := row.Scan(
		&sess.ID,
		&sess.IdentityID,
		&sess.AccessTokenID,
		&sess.RefreshTokenHash,
		&sess.IP,
		&sess.UserAgent,
		&sess.CreatedAt,
		&sess.ExpiresAt,
	)
	if err != nil {
		return Session{}, err
	}
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	return sess, nil
}
