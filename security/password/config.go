package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls which plaintext passwords are accepted for hashing.
type Policy struct {
	MinLength int
	MaxLength int

	// RequireCharClasses demands at least one digit, lower-case letter,
	// upper-case letter and symbol.
	RequireCharClasses bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login cost settings and the account password policy.
func DefaultConfig() Config {
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:          8,
			MaxLength:          128,
			RequireCharClasses: true,
		},
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
//   - WARDEN_PASSWORD_MIN_LEN
//   - WARDEN_PASSWORD_MAX_LEN
//   - WARDEN_PASSWORD_REQUIRE_CLASSES (true/false)
//   - WARDEN_ARGON2_MEMORY_KIB
//   - WARDEN_ARGON2_ITERATIONS
//   - WARDEN_ARGON2_PARALLELISM
//   - WARDEN_ARGON2_SALT_LEN
//   - WARDEN_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v, ok := os.LookupEnv("WARDEN_PASSWORD_MIN_LEN"); ok {
		n, err := parseIntRange(v, 1, 1024)
		if err != nil {
			return Config{}, fmt.Errorf("WARDEN_PASSWORD_MIN_LEN: %w", err)
		}
		cfg.Policy.MinLength = n
	}
	if v, ok := os.LookupEnv("WARDEN_PASSWORD_MAX_LEN"); ok {
		n, err := parseIntRange(v, 1, 4096)
		if err != nil {
			return Config{}, fmt.Errorf("WARDEN_PASSWORD_MAX_LEN: %w", err)
		}
		cfg.Policy.MaxLength = n
	}
	if v, ok := os.LookupEnv("WARDEN_PASSWORD_REQUIRE_CLASSES"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Config{}, fmt.Errorf("WARDEN_PASSWORD_REQUIRE_CLASSES: invalid boolean")
		}
		cfg.Policy.RequireCharClasses = b
	}

	u32 := []struct {
		key      string
		min, max uint32
		dst      *uint32
	}{
		{"WARDEN_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, &cfg.Params.MemoryKiB},
		{"WARDEN_ARGON2_ITERATIONS", 1, 20, &cfg.Params.Iterations},
		{"WARDEN_ARGON2_SALT_LEN", 8, 64, &cfg.Params.SaltLength},
		{"WARDEN_ARGON2_KEY_LEN", 16, 64, &cfg.Params.KeyLength},
	}
	for _, f := range u32 {
		v, ok := os.LookupEnv(f.key)
		if !ok {
			continue
		}
		u, err := parseUint32Range(v, f.min, f.max)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", f.key, err)
		}
		*f.dst = u
	}

	if v, ok := os.LookupEnv("WARDEN_ARGON2_PARALLELISM"); ok {
		u, err := parseUint32Range(v, 1, math.MaxUint8)
		if err != nil {
			return Config{}, fmt.Errorf("WARDEN_ARGON2_PARALLELISM: %w", err)
		}
		cfg.Params.Parallelism = uint8(u) // #nosec G115 -- bounded by MaxUint8 above.
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("%w: min_len(%d) > max_len(%d)",
			ErrInvalidPolicy, cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}

	return cfg, nil
}

func parseIntRange(s string, minVal, maxVal int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}

func parseUint32Range(s string, minVal, maxVal uint32) (uint32, error) {
	u64, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}
