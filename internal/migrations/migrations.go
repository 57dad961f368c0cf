// Package migrations embeds the schema for every SQL backend and applies it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Dialect selects which migration set to apply.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

func (d Dialect) goose() (goose.Dialect, error) {
	switch d {
	case Postgres:
		return goose.DialectPostgres, nil
	case SQLite:
		return goose.DialectSQLite3, nil
	default:
		return "", fmt.Errorf("migrations: unknown dialect %q", d)
	}
}

// FS returns the migration files for d.
func FS(d Dialect) (fs.FS, error) {
	if _, err := d.goose(); err != nil {
		return nil, err
	}
	return fs.Sub(files, string(d))
}

// Up applies every pending migration for d and returns the versions applied.
func Up(ctx context.Context, db *sql.DB, d Dialect, log *slog.Logger) ([]int64, error) {
	if log == nil {
		log = slog.Default()
	}
	dialect, err := d.goose()
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(files, string(d))
	if err != nil {
		return nil, err
	}

	p, err := goose.NewProvider(dialect, db, sub)
	if err != nil {
		return nil, fmt.Errorf("migrations: provider: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrations: up: %w", err)
	}

	applied := make([]int64, 0, len(results))
	for _, r := range results {
		applied = append(applied, r.Source.Version)
		log.Info("db.migrate.applied", "dialect", string(d), "version", r.Source.Version, "duration", r.Duration)
	}
	return applied, nil
}
