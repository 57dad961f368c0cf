package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockSQLiteStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteStore(db), mock
}

var sessionCols = []string{"id", "identity_id", "access_token_id", "refresh_token_hash", "ip", "user_agent", "created_at", "expires_at"}

func TestSQLiteStore_ConsumeIsSingleDeleteReturning(t *testing.T) {
	store, mock := newMockSQLiteStore(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`DELETE FROM sessions WHERE refresh_token_hash = \? RETURNING`).
		WithArgs("digest").
		WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(
			"01J000000000000000000000AA", "id-1", "jti-1", "digest", "1.2.3.4", "UA1",
			now.Add(-time.Hour).UnixMicro(), now.Add(time.Hour).UnixMicro(),
		))

	got, err := store.ConsumeByRefreshToken(context.Background(), "digest", now)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if got.IdentityID != "id-1" || got.IP != "1.2.3.4" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLiteStore_ConsumeNoRowsIsNotFound(t *testing.T) {
	store, mock := newMockSQLiteStore(t)

	mock.ExpectQuery(`DELETE FROM sessions`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(sessionCols))

	_, err := store.ConsumeByRefreshToken(context.Background(), "missing", time.Now())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_DriverFailureIsStorageUnavailable(t *testing.T) {
	store, mock := newMockSQLiteStore(t)
	boom := errors.New("disk I/O error")

	mock.ExpectQuery(`DELETE FROM sessions`).WillReturnError(boom)
	_, err := store.ConsumeByRefreshToken(context.Background(), "digest", time.Now())
	if !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, boom) {
		t.Fatalf("expected storage error wrapping driver error, got %v", err)
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "session.SQLiteStore.ConsumeByRefreshToken" {
		t.Fatalf("expected StorageError with op, got %#v", err)
	}

	mock.ExpectExec(`INSERT INTO sessions`).WillReturnError(boom)
	now := time.Now().UTC()
	in, _ := newTestSession("id-1", now, time.Hour)
	if _, err := store.Create(context.Background(), in); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("Create: expected ErrStorageUnavailable, got %v", err)
	}

	mock.ExpectExec(`DELETE FROM sessions WHERE expires_at`).WillReturnError(boom)
	if _, err := store.DeleteExpired(context.Background(), now); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("DeleteExpired: expected ErrStorageUnavailable, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLiteStore_DeleteAllReportsRowsAffected(t *testing.T) {
	store, mock := newMockSQLiteStore(t)

	mock.ExpectExec(`DELETE FROM sessions WHERE identity_id = \?`).
		WithArgs("id-1").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := store.DeleteAllForIdentity(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("DeleteAllForIdentity: %v", err)
	}
	if n != 4 {
		t.Fatalf("n = %d, want 4", n)
	}
}
