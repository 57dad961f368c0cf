package session

import (
	"crypto/rand"
	"encoding/base64"
	"strings"

	"warden/security/token"
)

// maxRefreshTokenLen bounds input before hashing.
const maxRefreshTokenLen = 512

func newOpaqueRefreshToken(nBytes int, h token.Hasher) (plain string, hashHex string, err error) {
	b := make([]byte, nBytes)
	if _, err = rand.Read(b); err != nil {
		return "", "", err
	}

	// URL-safe, no padding.
	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, h.Hash(plain), nil
}

func sanitizeRefreshToken(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxRefreshTokenLen {
		return "", false
	}
	return s, true
}
