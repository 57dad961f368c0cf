// Package accesstoken issues and verifies short-lived, stateless access tokens.
//
// Two signers are provided: PASETO v4.public (Ed25519, the default) and HS256 JWT.
// Both embed subject, roles, token id (jti), issuer, issued-at and expiry, and both
// report ErrExpired separately from ErrMalformed so that logout can still read the
// token id from an expired but authentic token.
package accesstoken
