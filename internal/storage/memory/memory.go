// Package memory is an in-process Store used for tests and the "memory"
// DB adapter. State is lost on exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
)

type DB struct {
	mu       sync.Mutex
	users    map[int64]*models.User
	byEmail  map[string]int64
	tokens   map[int64]*models.RefreshToken
	userSeq  int64
	tokenSeq int64
}

func New() *DB {
	return &DB{
		users:   map[int64]*models.User{},
		byEmail: map[string]int64{},
		tokens:  map[int64]*models.RefreshToken{},
	}
}

func (m *DB) Ping(context.Context) error { return nil }
func (m *DB) Close() error               { return nil }

func (m *DB) CreateUser(_ context.Context, rec *models.UserRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[rec.Email]; ok {
		return 0, apperrors.ErrDuplicateEmail
	}
	m.userSeq++
	u := &models.User{
		ID:           m.userSeq,
		FirstName:    rec.FirstName,
		LastName:     rec.LastName,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Role:         rec.Role,
		Status:       rec.Status,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
	m.users[u.ID] = u
	m.byEmail[u.Email] = u.ID
	return u.ID, nil
}

func (m *DB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *DB) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *DB) UpdateUser(_ context.Context, id int64, p *models.UserPatch) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	if p.Email != nil && *p.Email != u.Email {
		if _, taken := m.byEmail[*p.Email]; taken {
			return false, apperrors.ErrDuplicateEmail
		}
		delete(m.byEmail, u.Email)
		u.Email = *p.Email
		m.byEmail[u.Email] = u.ID
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	u.UpdatedAt = p.UpdatedAt
	return true, nil
}

func (m *DB) ListUsers(context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *DB) RecordLoginFailure(_ context.Context, id int64, threshold int, lockUntil, now time.Time) (*models.LoginFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if u.IsLocked(now) {
		return nil, &apperrors.LockedError{Until: *u.LockedUntil}
	}
	if u.LockedUntil != nil {
		u.FailedLoginCount = 0
		u.LockedUntil = nil
	}
	u.FailedLoginCount++
	if u.FailedLoginCount >= threshold {
		until := lockUntil
		u.LockedUntil = &until
	}
	u.UpdatedAt = now
	return &models.LoginFailure{Count: u.FailedLoginCount, LockedUntil: copyTime(u.LockedUntil)}, nil
}

func (m *DB) ResetLoginFailures(_ context.Context, id int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	u.FailedLoginCount = 0
	u.LockedUntil = nil
	u.UpdatedAt = now
	return nil
}

func (m *DB) CreateRefreshToken(_ context.Context, rt *models.RefreshToken) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[rt.UserID]; !ok {
		return 0, apperrors.ErrNotFound
	}
	m.tokenSeq++
	rec := *rt
	rec.ID = m.tokenSeq
	m.tokens[rec.ID] = &rec
	return rec.ID, nil
}

func (m *DB) RefreshTokenExists(_ context.Context, token string, userID int64, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.tokens {
		if t.Token == token && t.UserID == userID && t.Valid(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *DB) DeleteRefreshToken(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := false
	for id, t := range m.tokens {
		if t.Token == token {
			delete(m.tokens, id)
			removed = true
		}
	}
	return removed, nil
}

func (m *DB) DeleteUserRefreshTokens(_ context.Context, userID int64) (int64, error) {
	return m.deleteWhere(func(t *models.RefreshToken) bool { return t.UserID == userID }), nil
}

func (m *DB) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	return m.deleteWhere(func(t *models.RefreshToken) bool { return !t.Valid(now) }), nil
}

func (m *DB) deleteWhere(match func(*models.RefreshToken) bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, t := range m.tokens {
		if match(t) {
			delete(m.tokens, id)
			n++
		}
	}
	return n
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.LockedUntil = copyTime(u.LockedUntil)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
