// Package storage defines the repository contracts for identities and the
// refresh token ledger. Implementations live in the memory, sqlite and
// postgres subpackages; the redis subpackage implements TokenRepository only.
//
// Implementations return apperrors.ErrNotFound, apperrors.ErrDuplicateEmail
// and apperrors.ErrAccountLocked (as *apperrors.LockedError) for the domain
// outcomes below, and wrap every other failure with apperrors.Unavailable.
package storage

import (
	"context"
	"time"

	"github.com/example/authcore/internal/models"
)

type UserRepository interface {
	// CreateUser inserts rec and returns the generated id.
	CreateUser(ctx context.Context, rec *models.UserRecord) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	// UpdateUser applies the supplied fields of patch in a single write and
	// reports whether a row matched.
	UpdateUser(ctx context.Context, id int64, patch *models.UserPatch) (bool, error)
	// ListUsers returns every identity, newest created first.
	ListUsers(ctx context.Context) ([]models.User, error)

	// RecordLoginFailure atomically increments the failed attempt counter and
	// sets locked_until to lockUntil when the new count reaches threshold.
	// A lock that has already elapsed starts a fresh counting window. When a
	// lock is still in force at now the row is left unchanged and a
	// *apperrors.LockedError is returned.
	RecordLoginFailure(ctx context.Context, id int64, threshold int, lockUntil, now time.Time) (*models.LoginFailure, error)
	// ResetLoginFailures zeroes the counter and clears locked_until.
	ResetLoginFailures(ctx context.Context, id int64, now time.Time) error
}

type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) (int64, error)
	// RefreshTokenExists reports whether a record for token owned by userID
	// expires strictly after now.
	RefreshTokenExists(ctx context.Context, token string, userID int64, now time.Time) (bool, error)
	DeleteRefreshToken(ctx context.Context, token string) (bool, error)
	DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// Store is a full backend.
type Store interface {
	UserRepository
	TokenRepository
	Ping(ctx context.Context) error
	Close() error
}
