package session

import (
	"os"
	"strconv"
	"time"
)

// Config holds lifecycle policy. Signing keys live in accesstoken.Config and the
// refresh digest key in security/token.
type Config struct {
	// AccessTokenTTL is the lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the absolute lifetime of a session and its refresh token.
	RefreshTokenTTL time.Duration

	// RefreshTokenBytes is the entropy of opaque refresh tokens.
	RefreshTokenBytes int

	// SweepInterval is how often expired sessions are deleted in the background.
	SweepInterval time.Duration

	// LoginAttemptsPerMinute and LoginBurst bound login attempts per client IP.
	LoginAttemptsPerMinute int
	LoginBurst             int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:         15 * time.Minute,
		RefreshTokenTTL:        7 * 24 * time.Hour,
		RefreshTokenBytes:      32,
		SweepInterval:          10 * time.Minute,
		LoginAttemptsPerMinute: 10,
		LoginBurst:             20,
	}
}

// LoadConfigFromEnv loads session configuration.
//
// Optional (durations must be valid Go duration strings):
//   - WARDEN_AUTH_ACCESS_TTL
//   - WARDEN_AUTH_REFRESH_TTL
//   - WARDEN_AUTH_REFRESH_TOKEN_BYTES (32..64)
//   - WARDEN_SWEEP_INTERVAL
//   - WARDEN_LOGIN_RATE_PER_MINUTE
//   - WARDEN_LOGIN_BURST
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"WARDEN_AUTH_ACCESS_TTL", &cfg.AccessTokenTTL},
		{"WARDEN_AUTH_REFRESH_TTL", &cfg.RefreshTokenTTL},
		{"WARDEN_SWEEP_INTERVAL", &cfg.SweepInterval},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	if v := os.Getenv("WARDEN_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	if v := os.Getenv("WARDEN_LOGIN_RATE_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, ErrConfig
		}
		cfg.LoginAttemptsPerMinute = n
	}
	if v := os.Getenv("WARDEN_LOGIN_BURST"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, ErrConfig
		}
		cfg.LoginBurst = n
	}

	// A refresh token that dies before its access token is useless.
	if cfg.RefreshTokenTTL <= cfg.AccessTokenTTL {
		return Config{}, ErrConfig
	}

	return cfg, nil
}
