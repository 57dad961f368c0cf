package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"warden/internal/identity"
)

// ErrConfig is returned for invalid runtime configuration.
var ErrConfig = errors.New("invalid app configuration")

// Session store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreSQLite   = "sqlite"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	AutoMigrate bool

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// SessionStore selects the session backend. Postgres requires DatabaseURL.
	SessionStore string
	RedisAddr    string
	RedisDB      int
	RedisPrefix  string
	SQLitePath   string

	// Audit sinks beyond Postgres (enabled whenever DatabaseURL is set).
	KafkaBrokers []string
	KafkaTopic   string
	AuditStream  bool

	// Reset tokens are published to KafkaResetTopic when KafkaBrokers is set.
	KafkaResetTopic  string
	PasswordResetTTL time.Duration

	MetricsEnabled bool

	// If true, WARDEN_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and refresh-token digests are HMAC-based.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		HTTPAddr:  EnvString("WARDEN_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("WARDEN_LOG_LEVEL", "info"),
		LogFormat: EnvString("WARDEN_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("WARDEN_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("WARDEN_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("WARDEN_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("WARDEN_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("WARDEN_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("WARDEN_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("WARDEN_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("WARDEN_DB_MIN_CONNS", 0),
		AutoMigrate: EnvBool("WARDEN_DB_AUTO_MIGRATE", true),

		ReadinessRequireDB: EnvBool("WARDEN_READINESS_REQUIRE_DB", false),

		SessionStore: strings.ToLower(EnvString("WARDEN_SESSION_STORE", "")),
		RedisAddr:    EnvString("WARDEN_REDIS_ADDR", ""),
		RedisDB:      EnvIntAllowZero("WARDEN_REDIS_DB", 0),
		RedisPrefix:  EnvString("WARDEN_REDIS_PREFIX", "warden:"),
		SQLitePath:   EnvString("WARDEN_SQLITE_PATH", "warden-sessions.db"),

		KafkaBrokers: EnvCSV("WARDEN_KAFKA_BROKERS"),
		KafkaTopic:   EnvString("WARDEN_KAFKA_AUDIT_TOPIC", "warden.audit"),
		AuditStream:  EnvBool("WARDEN_AUDIT_STREAM_ENABLED", true),

		KafkaResetTopic:  EnvString("WARDEN_KAFKA_RESET_TOPIC", "warden.password_reset"),
		PasswordResetTTL: EnvDuration("WARDEN_PASSWORD_RESET_TTL", identity.DefaultResetTTL),

		MetricsEnabled: EnvBool("WARDEN_METRICS_ENABLED", true),

		RequireTokenHMAC: EnvBool("WARDEN_REQUIRE_TOKEN_HMAC", false),
	}

	if cfg.SessionStore == "" {
		cfg.SessionStore = StoreMemory
		if cfg.DatabaseURL != "" {
			cfg.SessionStore = StorePostgres
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.SessionStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("%w: session store %q requires WARDEN_DATABASE_URL", ErrConfig, c.SessionStore)
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: session store %q requires WARDEN_REDIS_ADDR", ErrConfig, c.SessionStore)
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%w: session store %q requires WARDEN_SQLITE_PATH", ErrConfig, c.SessionStore)
		}
	default:
		return fmt.Errorf("%w: unknown session store %q", ErrConfig, c.SessionStore)
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		return fmt.Errorf("%w: WARDEN_KAFKA_AUDIT_TOPIC is empty", ErrConfig)
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaResetTopic) == "" {
		return fmt.Errorf("%w: WARDEN_KAFKA_RESET_TOPIC is empty", ErrConfig)
	}
	return nil
}
