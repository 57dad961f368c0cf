package accesstoken

import (
	"os"
	"strings"
	"time"
)

// Algorithm names a supported signing scheme.
type Algorithm string

const (
	AlgorithmPasetoV4 Algorithm = "paseto-v4"
	AlgorithmHS256    Algorithm = "hs256"
)

const minJWTSecretBytes = 32

// Config selects and keys the access token signer.
type Config struct {
	Algorithm Algorithm

	// Issuer is set as "iss" and required on verify.
	Issuer string

	// ClockSkew tolerates issuers whose clock runs slightly ahead. It never extends expiry.
	ClockSkew time.Duration

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key for v4.public.
	PasetoV4SecretKeyHex string

	// JWTSecret is the HS256 key, at least 32 bytes.
	JWTSecret []byte
}

// DefaultConfig returns the default scheme with no key material.
func DefaultConfig() Config {
	return Config{
		Algorithm: AlgorithmPasetoV4,
		Issuer:    "warden",
		ClockSkew: 30 * time.Second,
	}
}

// LoadConfigFromEnv reads:
//   - WARDEN_TOKEN_ALGORITHM (paseto-v4|hs256)
//   - WARDEN_AUTH_ISSUER
//   - WARDEN_AUTH_CLOCK_SKEW
//   - WARDEN_PASETO_V4_SECRET_KEY_HEX (required for paseto-v4)
//   - WARDEN_JWT_SECRET (required for hs256)
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("WARDEN_TOKEN_ALGORITHM")); v != "" {
		cfg.Algorithm = Algorithm(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("WARDEN_AUTH_ISSUER")); v != "" {
		cfg.Issuer = v
	}
	if v := os.Getenv("WARDEN_AUTH_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 || d > 5*time.Minute {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}
	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("WARDEN_PASETO_V4_SECRET_KEY_HEX"))
	if v := os.Getenv("WARDEN_JWT_SECRET"); v != "" {
		cfg.JWTSecret = []byte(v)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the selected algorithm has usable key material.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" || c.ClockSkew < 0 {
		return ErrConfig
	}
	switch c.Algorithm {
	case AlgorithmPasetoV4:
		if c.PasetoV4SecretKeyHex == "" {
			return ErrConfig
		}
	case AlgorithmHS256:
		if len(c.JWTSecret) < minJWTSecretBytes {
			return ErrConfig
		}
	default:
		return ErrConfig
	}
	return nil
}

// New builds the signer selected by cfg.
func New(cfg Config, opts ...Option) (Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Algorithm {
	case AlgorithmHS256:
		return NewJWTSigner(cfg, opts...)
	default:
		return NewPasetoSigner(cfg, opts...)
	}
}
