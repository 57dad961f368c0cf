package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey names the env var holding the refresh-token digest key.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "WARDEN_TOKEN_HMAC_KEY"

	// MinHMACKeyBytes is the smallest key accepted when HMAC mode is required.
	MinHMACKeyBytes = 32
)

// Hasher digests opaque refresh tokens for server-side storage.
// The zero value uses plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key. An empty key selects SHA-256 mode.
func NewHasher(key []byte) Hasher {
	if len(key) == 0 {
		return Hasher{}
	}
	k := make([]byte, len(key))
	copy(k, key)
	return Hasher{key: k}
}

// HasherFromEnv builds a Hasher from WARDEN_TOKEN_HMAC_KEY.
// With requireHMAC set, a missing or short key is an error instead of a SHA-256 fallback.
func HasherFromEnv(requireHMAC bool) (Hasher, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		if requireHMAC {
			return Hasher{}, ErrHMACKeyMissing
		}
		return Hasher{}, nil
	}
	if requireHMAC && len(raw) < MinHMACKeyBytes {
		return Hasher{}, ErrHMACKeyTooShort
	}
	return NewHasher([]byte(raw)), nil
}

// Keyed reports whether the hasher runs in HMAC mode.
func (h Hasher) Keyed() bool { return len(h.key) > 0 }

// Hash returns the 64-char hex digest stored in place of the plain token.
func (h Hasher) Hash(plain string) string {
	if len(h.key) == 0 {
		return HashSHA256Hex(plain)
	}
	return HashHMACSHA256Hex(plain, h.key)
}

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}
