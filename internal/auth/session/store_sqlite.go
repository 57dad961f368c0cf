package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"warden/internal/ids"
)

// SQLiteStore implements Store over a single SQLite file for single-node deployments.
// Timestamps are stored as Unix microseconds.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path with WAL and a busy timeout.
// The caller applies migrations and owns Close.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// One writer; SQLite serializes writes anyway and this avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteStore wraps an open database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteSessionColumns = `id, identity_id, access_token_id, refresh_token_hash, ip, user_agent, created_at, expires_at`

func (s *SQLiteStore) Create(ctx context.Context, in NewSession) (Session, error) {
	if err := in.validate(); err != nil {
		return Session{}, err
	}
	if in.ID == "" {
		in.ID = ids.New(in.CreatedAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sqliteSessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, in.ID, in.IdentityID, in.AccessTokenID, in.RefreshTokenHash, in.IP, in.UserAgent,
		in.CreatedAt.UnixMicro(), in.ExpiresAt.UnixMicro())
	if err != nil {
		return Session{}, storageErr("session.SQLiteStore.Create", err)
	}
	return fromMicros(Session(in)), nil
}

func (s *SQLiteStore) ConsumeByRefreshToken(ctx context.Context, refreshHash string, now time.Time) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		DELETE FROM sessions WHERE refresh_token_hash = ?
		RETURNING `+sqliteSessionColumns, refreshHash)

	sess, err := scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, storageErr("session.SQLiteStore.ConsumeByRefreshToken", err)
	}
	if sess.Expired(now) {
		return sess, ErrExpired
	}
	return sess, nil
}

func (s *SQLiteStore) DeleteByAccessTokenID(ctx context.Context, accessTokenID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE access_token_id = ?`, accessTokenID)
	return storageErr("session.SQLiteStore.DeleteByAccessTokenID", err)
}

func (s *SQLiteStore) ListByIdentity(ctx context.Context, identityID string) ([]Session, error) {
	const op = "session.SQLiteStore.ListByIdentity"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteSessionColumns+`
		FROM sessions WHERE identity_id = ?
		ORDER BY created_at, id
	`, identityID)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSQLiteSession(rows)
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

func (s *SQLiteStore) DeleteAllForIdentity(ctx context.Context, identityID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE identity_id = ?`, identityID)
	if err != nil {
		return 0, storageErr("session.SQLiteStore.DeleteAllForIdentity", err)
	}
	n, err := res.RowsAffected()
	return n, storageErr("session.SQLiteStore.DeleteAllForIdentity", err)
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixMicro())
	if err != nil {
		return 0, storageErr("session.SQLiteStore.DeleteExpired", err)
	}
	n, err := res.RowsAffected()
	return n, storageErr("session.SQLiteStore.DeleteExpired", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row scanner) (Session, error) {
	var (
		sess               Session
		created, expiresAt int64
	)
	err := row.Scan(
		&sess.ID,
		&sess.IdentityID,
		&sess.AccessTokenID,
		&sess.RefreshTokenHash,
		&sess.IP,
		&sess.UserAgent,
		&created,
		&expiresAt,
	)
	if err != nil {
		return Session{}, err
	}
	sess.CreatedAt = time.UnixMicro(created).UTC()
	sess.ExpiresAt = time.UnixMicro(expiresAt).UTC()
	return sess, nil
}

// fromMicros truncates timestamps to the stored precision so Create and reads agree.
func fromMicros(s Session) Session {
	s.CreatedAt = time.UnixMicro(s.CreatedAt.UnixMicro()).UTC()
	s.ExpiresAt = time.UnixMicro(s.ExpiresAt.UnixMicro()).UTC()
	return s
}
