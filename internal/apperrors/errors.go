// Package apperrors holds the domain error taxonomy shared by the store,
// token and session layers. Callers match with errors.Is / errors.As.
package apperrors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountInactive     = errors.New("account is inactive")
	ErrAccountLocked       = errors.New("account is locked")
	ErrMissingToken        = errors.New("refresh token is required")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrNotFound            = errors.New("not found")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenInvalid        = errors.New("token invalid")
)

// StoreError wraps a persistence failure. It matches ErrStoreUnavailable and
// unwraps to the driver error.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// Unavailable wraps err as a StoreError for operation op.
func Unavailable(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// LockedError is returned for login attempts against an identity whose lock
// is still in force.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%s until %s", ErrAccountLocked, e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// LockoutError is returned by the failed attempt that reached the lockout
// threshold. It still matches ErrInvalidCredentials.
type LockoutError struct {
	Attempts int
	Until    time.Time
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("%s; too many failed attempts, account locked until %s",
		ErrInvalidCredentials, e.Until.UTC().Format(time.RFC3339))
}

func (e *LockoutError) Is(target error) bool { return target == ErrInvalidCredentials }
