package twofactor

import "errors"

var (
	// ErrCodeInvalid is returned for a wrong, stale or malformed code.
	ErrCodeInvalid = errors.New("two-factor code invalid")

	// ErrNoPendingSecret is returned by Enable before Setup has run.
	ErrNoPendingSecret = errors.New("no pending two-factor secret")

	// ErrAlreadyEnabled is returned by Setup and Enable once 2FA is active.
	ErrAlreadyEnabled = errors.New("two-factor already enabled")

	// ErrNotEnabled is returned by Check for an identity without 2FA.
	ErrNotEnabled = errors.New("two-factor not enabled")

	// ErrTooManyAttempts is returned when enable attempts are throttled.
	ErrTooManyAttempts = errors.New("too many two-factor attempts")

	// ErrInvalidSecret is returned for a secret that is not base32.
	ErrInvalidSecret = errors.New("invalid two-factor secret")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid two-factor configuration")
)
