package session

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when no session matches.
	ErrNotFound = errors.New("session not found")

	// ErrExpired is returned by ConsumeByRefreshToken for a matched but expired session.
	// The session is deleted anyway.
	ErrExpired = errors.New("session expired")

	// ErrInvalidRefresh is the only refresh failure callers see: not found, already
	// consumed and expired are deliberately indistinguishable.
	ErrInvalidRefresh = errors.New("invalid refresh token")

	// ErrInvalidCredentials covers unknown users, wrong passwords and failed second factors.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLoginThrottled is returned when the caller's login budget is exhausted.
	ErrLoginThrottled = errors.New("login throttled")

	// ErrStorageUnavailable marks backend failures. It is never swallowed.
	ErrStorageUnavailable = errors.New("session storage unavailable")

	// ErrInvalidSession is returned by stores for a NewSession missing a required field.
	ErrInvalidSession = errors.New("invalid session input")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)

// StorageError wraps a backend failure with the failing operation.
// errors.Is(err, ErrStorageUnavailable) holds for every StorageError.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrInvalidSession) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// ThrottledError carries the retry hint for a throttled login.
type ThrottledError struct {
	RetryAfter float64 // seconds
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("%s: retry after %.0fs", ErrLoginThrottled, e.RetryAfter)
}

func (e ThrottledError) Unwrap() error { return ErrLoginThrottled }
