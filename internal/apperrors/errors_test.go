package apperrors

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoreErrorMatching(t *testing.T) {
	err := fmt.Errorf("find user: %w", Unavailable("users.find", sql.ErrConnDone))

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NotErrorIs(t, err, ErrNotFound)

	var se *StoreError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "users.find", se.Op)
}

func TestLockErrors(t *testing.T) {
	until := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	locked := &LockedError{Until: until}
	assert.ErrorIs(t, locked, ErrAccountLocked)
	assert.NotErrorIs(t, locked, ErrInvalidCredentials)
	assert.Contains(t, locked.Error(), "2026-01-02T03:04:05Z")

	lockout := &LockoutError{Attempts: 3, Until: until}
	assert.ErrorIs(t, lockout, ErrInvalidCredentials)
	assert.NotErrorIs(t, lockout, ErrAccountLocked)
	assert.Contains(t, lockout.Error(), "too many failed attempts")
}
