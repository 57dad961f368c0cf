package password

import "errors"

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrMissingCharClass = errors.New("password must mix digits, lower-case, upper-case and symbols")
	ErrInvalidHash      = errors.New("invalid password hash")
	ErrInvalidPolicy    = errors.New("invalid password policy")
)
