// Package token digests opaque refresh tokens before they reach storage.
//
// Stores only ever see the 64-char hex digest. With WARDEN_TOKEN_HMAC_KEY set the digest is
// HMAC-SHA256 keyed by it, so a leaked sessions table cannot be replayed offline without the key.
// Without a key the digest falls back to SHA-256, which is acceptable for development only;
// WARDEN_REQUIRE_TOKEN_HMAC=true turns the fallback into a startup error.
package token
