package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"warden/internal/auth/audit"
	"warden/internal/auth/session"
	"warden/internal/identity"
	"warden/internal/migrations"
)

// closer releases one backend resource during shutdown.
type closer struct {
	name  string
	close func() error
}

// newIdentityStore uses Postgres whenever a database is configured.
func newIdentityStore(pool *pgxpool.Pool) (identity.Store, error) {
	if pool == nil {
		return identity.NewMemoryStore(), nil
	}
	return identity.NewPostgresStore(pool)
}

// newSessionStore opens the backend selected by cfg.SessionStore.
func newSessionStore(ctx context.Context, cfg Config, pool *pgxpool.Pool, log *slog.Logger) (session.Store, []closer, error) {
	switch cfg.SessionStore {
	case StoreMemory:
		log.Warn("session.store.memory", "hint", "sessions are lost on restart")
		return session.NewMemoryStore(), nil, nil

	case StorePostgres:
		if pool == nil {
			return nil, nil, fmt.Errorf("%w: postgres session store without a database", ErrConfig)
		}
		return session.NewPostgresStore(pool), nil, nil

	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info("session.store.redis", "addr", cfg.RedisAddr, "prefix", cfg.RedisPrefix)
		return session.NewRedisStore(rdb, session.WithKeyPrefix(cfg.RedisPrefix)),
			[]closer{{name: "redis", close: rdb.Close}}, nil

	case StoreSQLite:
		db, err := session.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if _, err := migrations.Up(ctx, db, migrations.SQLite, log); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Info("session.store.sqlite", "path", cfg.SQLitePath)
		return session.NewSQLiteStore(db), []closer{{name: "sqlite", close: db.Close}}, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown session store %q", ErrConfig, cfg.SessionStore)
	}
}

// newAuditSinks returns the configured sinks plus what must be closed after the trail drains.
// Without a durable sink, entries go to the log.
func newAuditSinks(cfg Config, pool *pgxpool.Pool, extra []audit.Sink, log *slog.Logger) ([]audit.Sink, []closer) {
	var (
		sinks   []audit.Sink
		closers []closer
	)
	if pool != nil {
		sinks = append(sinks, audit.NewPostgresSink(pool))
	}
	if len(cfg.KafkaBrokers) > 0 {
		k := audit.NewKafkaSink(audit.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		sinks = append(sinks, k)
		closers = append(closers, closer{name: "kafka", close: k.Close})
		log.Info("audit.sink.kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	if len(sinks) == 0 {
		sinks = append(sinks, audit.NewLogSink(log))
	}
	return append(sinks, extra...), closers
}

// OpenSessionStore opens the configured session backend outside of App, for one-off tooling.
// The returned release func closes whatever was opened.
func OpenSessionStore(ctx context.Context, cfg Config, pool *pgxpool.Pool, log *slog.Logger) (session.Store, func(), error) {
	st, closers, err := newSessionStore(ctx, cfg, pool, log)
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].close(); err != nil {
				log.Error("backend.close.fail", "backend", closers[i].name, "err", err)
			}
		}
	}
	return st, release, nil
}
