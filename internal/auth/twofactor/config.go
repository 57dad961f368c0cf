package twofactor

import (
	"os"
	"strconv"
	"strings"
)

// Config holds enrollment and verification policy.
type Config struct {
	// Issuer labels the account in authenticator apps.
	Issuer string

	// SkewSteps is how many 30s steps either side of now are accepted (0 or 1).
	SkewSteps uint

	// EnableAttemptsPerMinute and EnableBurst throttle Enable per identity.
	EnableAttemptsPerMinute int
	EnableBurst             int
}

func DefaultConfig() Config {
	return Config{
		Issuer:                  "warden",
		SkewSteps:               0,
		EnableAttemptsPerMinute: 5,
		EnableBurst:             5,
	}
}

// LoadConfigFromEnv loads two-factor configuration.
//
// Optional:
//   - WARDEN_TOTP_ISSUER
//   - WARDEN_TOTP_SKEW_STEPS (0..1)
//   - WARDEN_TOTP_ENABLE_RATE_PER_MINUTE
//   - WARDEN_TOTP_ENABLE_BURST
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("WARDEN_TOTP_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("WARDEN_TOTP_SKEW_STEPS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil || n > 1 {
			return Config{}, ErrConfig
		}
		cfg.SkewSteps = uint(n)
	}
	for _, p := range []struct {
		key string
		dst *int
	}{
		{"WARDEN_TOTP_ENABLE_RATE_PER_MINUTE", &cfg.EnableAttemptsPerMinute},
		{"WARDEN_TOTP_ENABLE_BURST", &cfg.EnableBurst},
	} {
		v := os.Getenv(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, ErrConfig
		}
		*p.dst = n
	}
	return cfg, nil
}
