// Package credentials is the identity store used by the session and mirror
// layers. It normalizes emails, hashes plaintext passwords before they
// reach a repository and stamps timestamps.
package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/example/authcore/internal/models"
	"github.com/example/authcore/internal/password"
	"github.com/example/authcore/internal/storage"
)

type Store struct {
	repo   storage.UserRepository
	hasher *password.Hasher
	now    func() time.Time
}

func New(repo storage.UserRepository, hasher *password.Hasher, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{repo: repo, hasher: hasher, now: now}
}

// Hasher exposes the password hasher so callers verify with the same cost.
func (s *Store) Hasher() *password.Hasher { return s.hasher }

func (s *Store) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repo.GetUserByEmail(ctx, models.NormalizeEmail(email))
}

func (s *Store) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ListAll returns every identity, newest first.
func (s *Store) ListAll(ctx context.Context) ([]models.User, error) {
	return s.repo.ListUsers(ctx)
}

// Create hashes in.Password and inserts the identity.
func (s *Store) Create(ctx context.Context, in models.NewUser) (int64, error) {
	if in.Password == "" {
		return 0, fmt.Errorf("create user: %w", ErrPasswordRequired)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return 0, err
	}
	return s.insert(ctx, in, hash)
}

// CreateHashed inserts an identity whose Password is already a hash. The
// value is stored as given.
func (s *Store) CreateHashed(ctx context.Context, in models.NewUser) (int64, error) {
	if in.Password == "" {
		return 0, fmt.Errorf("create user: %w", ErrPasswordRequired)
	}
	return s.insert(ctx, in, in.Password)
}

func (s *Store) insert(ctx context.Context, in models.NewUser, hash string) (int64, error) {
	rec, err := s.record(in, hash)
	if err != nil {
		return 0, err
	}
	return s.repo.CreateUser(ctx, rec)
}

func (s *Store) record(in models.NewUser, hash string) (*models.UserRecord, error) {
	email := models.NormalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("create user: %w", ErrEmailRequired)
	}
	role := in.Role
	if role == "" {
		role = models.RoleUser
	}
	if !role.Valid() {
		return nil, fmt.Errorf("create user: %w: %q", ErrInvalidRole, role)
	}
	status := in.Status
	if status == "" {
		status = models.StatusActive
	}
	if !status.Valid() {
		return nil, fmt.Errorf("create user: %w: %q", ErrInvalidStatus, status)
	}

	now := s.now().UTC()
	created, updated := now, now
	if in.CreatedAt != nil {
		created = *in.CreatedAt
		updated = created
	}
	if in.UpdatedAt != nil {
		updated = *in.UpdatedAt
	}
	return &models.UserRecord{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       status,
		CreatedAt:    created,
		UpdatedAt:    updated,
	}, nil
}

// Update changes only the supplied fields and always refreshes updatedAt.
// It reports false when id does not exist.
func (s *Store) Update(ctx context.Context, id int64, in models.UserUpdate) (bool, error) {
	patch := &models.UserPatch{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Role:      in.Role,
		Status:    in.Status,
		UpdatedAt: s.now().UTC(),
	}
	if in.Email != nil {
		email := models.NormalizeEmail(*in.Email)
		if email == "" {
			return false, fmt.Errorf("update user: %w", ErrEmailRequired)
		}
		patch.Email = &email
	}
	if in.Role != nil && !in.Role.Valid() {
		return false, fmt.Errorf("update user: %w: %q", ErrInvalidRole, *in.Role)
	}
	if in.Status != nil && !in.Status.Valid() {
		return false, fmt.Errorf("update user: %w: %q", ErrInvalidStatus, *in.Status)
	}
	if in.Password != nil {
		if *in.Password == "" {
			return false, fmt.Errorf("update user: %w", ErrPasswordRequired)
		}
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return false, err
		}
		patch.PasswordHash = &hash
	}
	return s.repo.UpdateUser(ctx, id, patch)
}
