// Package bootstrap provisions the first administrator of an empty store.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
)

// Identities is the part of the identity store bootstrap needs.
type Identities interface {
	ListAll(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, in models.NewUser) (int64, error)
}

// Seed is the default administrator identity.
type Seed struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// EnsureDefaultAdmin creates the seed administrator when the store holds no
// identities and reports whether it did. A concurrent bootstrap that wins
// the insert counts as already present.
func EnsureDefaultAdmin(ctx context.Context, ids Identities, seed Seed, logger *slog.Logger) (bool, error) {
	users, err := ids.ListAll(ctx)
	if err != nil {
		return false, err
	}
	if len(users) > 0 {
		return false, nil
	}

	id, err := ids.Create(ctx, models.NewUser{
		FirstName: seed.FirstName,
		LastName:  seed.LastName,
		Email:     seed.Email,
		Password:  seed.Password,
		Role:      models.RoleAdmin,
		Status:    models.StatusActive,
	})
	if errors.Is(err, apperrors.ErrDuplicateEmail) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if logger != nil {
		logger.InfoContext(ctx, "default admin created", "user_id", id, "email", models.NormalizeEmail(seed.Email))
	}
	return true, nil
}
