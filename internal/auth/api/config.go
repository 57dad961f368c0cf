package authapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls the HTTP surface of the auth engine.
type Config struct {
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// MaxBodyBytes bounds every JSON request body.
	MaxBodyBytes int64
	// AllowSignup enables POST /auth/signup.
	AllowSignup bool
}

// DefaultConfig returns the safe defaults.
func DefaultConfig() Config {
	return Config{
		TrustProxy:   false,
		MaxBodyBytes: 64 << 10,
		AllowSignup:  true,
	}
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
//
//   - WARDEN_AUTH_TRUST_PROXY
//   - WARDEN_AUTH_MAX_BODY_BYTES
//   - WARDEN_AUTH_ALLOW_SIGNUP
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		TrustProxy:   envBool("WARDEN_AUTH_TRUST_PROXY", def.TrustProxy),
		MaxBodyBytes: envInt64("WARDEN_AUTH_MAX_BODY_BYTES", def.MaxBodyBytes),
		AllowSignup:  envBool("WARDEN_AUTH_ALLOW_SIGNUP", def.AllowSignup),
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
