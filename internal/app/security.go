package app

import (
	"errors"
	"log/slog"

	"warden/security/token"
)

// RefreshHasher builds the refresh and reset token digest hasher and enforces the HMAC policy.
//
// Fail-fast: with RequireTokenHMAC set, a missing or short key stops startup instead of
// falling back to plain SHA-256.
func RefreshHasher(cfg Config, log *slog.Logger) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: WARDEN_REQUIRE_TOKEN_HMAC=true but WARDEN_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, errors.New("security policy: WARDEN_REQUIRE_TOKEN_HMAC=true but WARDEN_TOKEN_HMAC_KEY is too short (min 32 bytes)")
	case err != nil:
		return token.Hasher{}, err
	}

	if cfg.RequireTokenHMAC && !h.Keyed() {
		return token.Hasher{}, errors.New("security policy: WARDEN_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	if !h.Keyed() {
		log.Warn("security.refresh_digest.unkeyed", "hint", "set WARDEN_TOKEN_HMAC_KEY")
	}
	return h, nil
}
