// Package app wires the warden server runtime: config, logging, storage backends,
// the audit trail, HTTP routes and graceful shutdown.
package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"warden/internal/auth/accesstoken"
	authapi "warden/internal/auth/api"
	"warden/internal/auth/audit"
	"warden/internal/auth/audit/stream"
	"warden/internal/auth/session"
	"warden/internal/auth/suspicious"
	"warden/internal/auth/twofactor"
	"warden/internal/identity"
	"warden/internal/ratelimit"
	"warden/security/password"
)

// App is the warden server runtime. It owns every backend handle it opened.
type App struct {
	cfg Config
	log Logger

	dbPool   *pgxpool.Pool
	registry *prometheus.Registry

	trail   *audit.Trail
	hub     *stream.Hub
	sweeper *session.Sweeper

	manager *session.Manager
	auth    *authapi.Handler
	gateway *stream.Gateway

	closers []closer
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	ctx := context.Background()

	a := &App{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(ctx)
		}
	}()

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	var reg prometheus.Registerer = a.registry
	if !cfg.MetricsEnabled {
		a.registry = nil
		reg = nil
	}

	if cfg.DatabaseURL != "" {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool
		a.closers = append(a.closers, closer{name: "postgres", close: func() error { pool.Close(); return nil }})
		log.Info("db.enabled", "max_conns", cfg.DBMaxConns)

		if cfg.AutoMigrate {
			if err := MigratePostgres(ctx, pool, log); err != nil {
				return nil, err
			}
		}
	} else {
		log.Info("db.disabled.inmemory_identities")
	}

	// Tokens and digests.
	signerCfg, err := accesstoken.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	signer, err := accesstoken.New(signerCfg)
	if err != nil {
		return nil, err
	}
	hasher, err := RefreshHasher(cfg, log)
	if err != nil {
		return nil, err
	}

	// Identities.
	idStore, err := newIdentityStore(a.dbPool)
	if err != nil {
		return nil, err
	}
	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	accounts, err := identity.NewAuthenticator(idStore, pwCfg)
	if err != nil {
		return nil, err
	}
	accounts.WithResetTokens(hasher, cfg.PasswordResetTTL)

	// Sessions.
	sessStore, storeClosers, err := newSessionStore(ctx, cfg, a.dbPool, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, storeClosers...)

	// Audit trail. Its sinks must be closed only after it drains, so they go last.
	var extra []audit.Sink
	if cfg.AuditStream {
		a.hub = stream.NewHub(log)
		extra = append(extra, a.hub)
	}
	sinks, sinkClosers := newAuditSinks(cfg, a.dbPool, extra, log)
	a.trail = audit.NewTrail(audit.DefaultConfig(), sinks,
		audit.WithLogger(log),
		audit.WithMetrics(audit.NewMetrics(reg)),
	)
	a.closers = append(a.closers, sinkClosers...)

	// Lifecycle.
	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tfCfg, err := twofactor.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	twoFactor := twofactor.NewService(tfCfg, idStore,
		twofactor.WithAudit(a.trail),
		twofactor.WithLogger(log),
	)
	detector := suspicious.NewDetector(sessStore, a.trail,
		suspicious.WithLogger(log),
		suspicious.WithMetrics(suspicious.NewMetrics(reg)),
	)
	sessMetrics := session.NewMetrics(reg)
	a.manager = session.NewManager(sessCfg, sessStore, signer, accounts, hasher,
		session.WithAudit(a.trail),
		session.WithLoginObserver(detector),
		session.WithSecondFactor(twoFactor),
		session.WithLoginLimiter(ratelimit.New(sessCfg.LoginAttemptsPerMinute, time.Minute, sessCfg.LoginBurst)),
		session.WithLogger(log),
		session.WithMetrics(sessMetrics),
	)
	a.sweeper = session.NewSweeper(sessStore, sessCfg.SweepInterval, log, sessMetrics)

	// HTTP surface.
	a.auth, err = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), a.manager, accounts, twoFactor)
	if err != nil {
		return nil, err
	}
	if len(cfg.KafkaBrokers) > 0 {
		resets := identity.NewKafkaResetPublisher(audit.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaResetTopic))
		a.auth.WithResetDelivery(resets)
		a.closers = append(a.closers, closer{name: "kafka-reset", close: resets.Close})
		log.Info("auth.password_reset.kafka", "topic", cfg.KafkaResetTopic)
	}
	if a.hub != nil {
		streamCfg, err := stream.LoadConfigFromEnv()
		if err != nil {
			return nil, err
		}
		a.gateway = stream.NewGateway(streamCfg, a.hub, a.manager, log)
	}

	log.Info("app.ready",
		"session_store", cfg.SessionStore,
		"token_algorithm", signerCfg.Algorithm,
		"audit_sinks", sinkNames(sinks),
		"refresh_digest_keyed", hasher.Keyed(),
	)
	ok = true
	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	rt := routes{
		cfg:      a.cfg,
		log:      a.log,
		dbPool:   a.dbPool,
		auth:     a.auth,
		registry: a.registry,
	}
	if a.gateway != nil {
		rt.auditStream = a.gateway
	}
	registerHTTP(mux, rt)

	var metrics *httpMetrics
	if a.registry != nil {
		metrics = newHTTPMetrics(a.registry)
	}
	return WithSecurityHeaders(WithRequestLogging(mux, a.log, metrics))
}

// Run starts the HTTP server and the expiry sweeper, and blocks until context
// cancellation or a fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}
	if a.hub != nil {
		// Hijacked WebSocket connections are not tracked by Shutdown.
		srv.RegisterOnShutdown(a.hub.Shutdown)
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	bg.Go(func() { a.sweeper.Run(sweepCtx) })

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbPool != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}

	stopSweep()
	bg.Wait()

	if err := a.Close(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}

	a.log.Info("server.stopped")
	return runErr
}

// Close drains the audit trail and releases every backend, in that order.
func (a *App) Close(ctx context.Context) error {
	var err error
	if a.trail != nil {
		if cerr := a.trail.Close(ctx); cerr != nil {
			a.log.Error("audit.drain.fail", "err", cerr)
			err = cerr
		}
	}
	a.closeBackends()
	return err
}

func (a *App) closeBackends() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.log.Error("backend.close.fail", "backend", c.name, "err", err)
		}
	}
	a.closers = nil
}

func sinkNames(sinks []audit.Sink) []string {
	out := make([]string, 0, len(sinks))
	for _, s := range sinks {
		out = append(out, s.Name())
	}
	return out
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
