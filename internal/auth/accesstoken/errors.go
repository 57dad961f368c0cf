package accesstoken

import "errors"

var (
	// ErrExpired is returned for an authentic token whose expiry has passed.
	// Verify returns the decoded Claims alongside it.
	ErrExpired = errors.New("access token expired")

	// ErrMalformed covers structural, signature, issuer and claim failures.
	ErrMalformed = errors.New("access token malformed")

	// ErrConfig is returned for invalid signer configuration.
	ErrConfig = errors.New("invalid access token config")
)
