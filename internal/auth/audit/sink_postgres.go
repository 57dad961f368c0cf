package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink inserts entries into warden.audit_log. The table rejects UPDATE and DELETE.
type PostgresSink struct {
	db execer
}

// NewPostgresSink accepts a *pgxpool.Pool or anything with the same Exec.
func NewPostgresSink(db execer) *PostgresSink { return &PostgresSink{db: db} }

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("audit: marshal metadata: %w", err)
		}
		meta = b
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO warden.audit_log (
			id, identity_id, session_id, action, ip, metadata, created_at
		) VALUES ($1, $2::uuid, $3, $4, $5, $6::jsonb, $7)
	`, e.ID, nullIfEmpty(e.IdentityID), nullIfEmpty(e.SessionID), string(e.Action), nullIfEmpty(e.IP), string(meta), e.CreatedAt)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
