package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrNotActive    = errors.New("not_active")

	// ErrInvalidCredentials covers unknown usernames, wrong passwords and inactive identities alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnknownRole is returned when a role string is outside the closed Role set.
	ErrUnknownRole = errors.New("unknown role")

	// ErrInvalidResetToken covers unknown, already used and expired password reset tokens alike.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
)
