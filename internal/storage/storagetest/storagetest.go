// Package storagetest is a conformance suite run against every
// storage.Store backend.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
	"github.com/example/authcore/internal/storage"
)

// Base is the reference instant used by the suite. It has no sub-second
// part so every backend stores it exactly.
var Base = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

// Run executes the suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("CreateAndFind", func(t *testing.T) { testCreateAndFind(t, newStore(t)) })
	t.Run("DuplicateEmail", func(t *testing.T) { testDuplicateEmail(t, newStore(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newStore(t)) })
	t.Run("PartialUpdate", func(t *testing.T) { testPartialUpdate(t, newStore(t)) })
	t.Run("UpdateEmailCollision", func(t *testing.T) { testUpdateEmailCollision(t, newStore(t)) })
	t.Run("ListNewestFirst", func(t *testing.T) { testListNewestFirst(t, newStore(t)) })
	t.Run("LoginFailures", func(t *testing.T) { testLoginFailures(t, newStore(t)) })
	t.Run("ConcurrentLoginFailures", func(t *testing.T) { testConcurrentLoginFailures(t, newStore(t)) })
	t.Run("ConcurrentLockThreshold", func(t *testing.T) { testConcurrentLockThreshold(t, newStore(t)) })
	t.Run("ExpiredLockStartsNewWindow", func(t *testing.T) { testExpiredLockWindow(t, newStore(t)) })
	t.Run("RefreshTokens", func(t *testing.T) { testRefreshTokens(t, newStore(t)) })
	t.Run("RefreshTokenUnknownUser", func(t *testing.T) { testRefreshTokenUnknownUser(t, newStore(t)) })
	t.Run("RefreshTokenCleanup", func(t *testing.T) { testRefreshTokenCleanup(t, newStore(t)) })
}

// Record builds an insertable user row for email.
func Record(email string, createdAt time.Time) *models.UserRecord {
	return &models.UserRecord{
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        email,
		PasswordHash: "$2a$04$abcdefghijklmnopqrstuuabcdefghijklmnopqrstuvwxyz01234",
		Role:         models.RoleUser,
		Status:       models.StatusActive,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

func testCreateAndFind(t *testing.T, s storage.Store) {
	ctx := context.Background()

	id, err := s.CreateUser(ctx, Record("ada@example.com", Base))
	require.NoError(t, err)
	require.NotZero(t, id)

	byEmail, err := s.GetUserByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.ID)
	assert.Equal(t, "Ada", byEmail.FirstName)
	assert.Equal(t, models.RoleUser, byEmail.Role)
	assert.Equal(t, models.StatusActive, byEmail.Status)
	assert.Zero(t, byEmail.FailedLoginCount)
	assert.Nil(t, byEmail.LockedUntil)
	assert.True(t, Base.Equal(byEmail.CreatedAt))

	byID, err := s.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, byEmail.Email, byID.Email)
	assert.Equal(t, byEmail.PasswordHash, byID.PasswordHash)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = s.GetUserByID(ctx, id+1000)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testDuplicateEmail(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.CreateUser(ctx, Record("dup@example.com", Base))
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, Record("dup@example.com", Base))
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
}

func testConcurrentCreate(t *testing.T, s storage.Store) {
	ctx := context.Background()

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		dups int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUser(ctx, Record("race@example.com", Base))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperrors.ErrDuplicateEmail):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, workers-1, dups)
}

func testPartialUpdate(t *testing.T, s storage.Store) {
	ctx := context.Background()

	id, err := s.CreateUser(ctx, Record("patch@example.com", Base))
	require.NoError(t, err)

	first := "Augusta"
	role := models.RoleAdmin
	later := Base.Add(time.Hour)
	ok, err := s.UpdateUser(ctx, id, &models.UserPatch{FirstName: &first, Role: &role, UpdatedAt: later})
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := s.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Augusta", u.FirstName)
	assert.Equal(t, "Lovelace", u.LastName)
	assert.Equal(t, models.RoleAdmin, u.Role)
	assert.Equal(t, models.StatusActive, u.Status)
	assert.Equal(t, "patch@example.com", u.Email)
	assert.True(t, later.Equal(u.UpdatedAt))
	assert.True(t, Base.Equal(u.CreatedAt))

	// An empty patch still refreshes updated_at.
	evenLater := later.Add(time.Hour)
	ok, err = s.UpdateUser(ctx, id, &models.UserPatch{UpdatedAt: evenLater})
	require.NoError(t, err)
	assert.True(t, ok)
	u, err = s.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, evenLater.Equal(u.UpdatedAt))
	assert.Equal(t, "Augusta", u.FirstName)

	ok, err = s.UpdateUser(ctx, id+1000, &models.UserPatch{FirstName: &first, UpdatedAt: later})
	require.NoError(t, err)
	assert.False(t, ok)
}

func testUpdateEmailCollision(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.CreateUser(ctx, Record("a@example.com", Base))
	require.NoError(t, err)
	id, err := s.CreateUser(ctx, Record("b@example.com", Base))
	require.NoError(t, err)

	taken := "a@example.com"
	_, err = s.UpdateUser(ctx, id, &models.UserPatch{Email: &taken, UpdatedAt: Base})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)

	u, err := s.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", u.Email)
}

func testListNewestFirst(t *testing.T, s storage.Store) {
	ctx := context.Background()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)

	for i := 0; i < 3; i++ {
		_, err := s.CreateUser(ctx, Record(fmt.Sprintf("u%d@example.com", i), Base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	users, err = s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, "u2@example.com", users[0].Email)
	assert.Equal(t, "u1@example.com", users[1].Email)
	assert.Equal(t, "u0@example.com", users[2].Email)
}

func testLoginFailures(t *testing.T, s storage.Store) {
	ctx := context.Background()

	id, err := s.CreateUser(ctx, Record("lock@example.com", Base))
	require.NoError(t, err)

	lockUntil := Base.Add(15 * time.Minute)
	for want := 1; want <= 2; want++ {
		res, err := s.RecordLoginFailure(ctx, id, 3, lockUntil, Base)
		require.NoError(t, err)
		assert.Equal(t, want, res.Count)
		assert.Nil(t, res.LockedUntil)
	}

	res, err := s.RecordLoginFailure(ctx, id, 3, lockUntil, Base)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	require.NotNil(t, res.LockedUntil)
	assert.True(t, lockUntil.Equal(*res.LockedUntil))

	// While locked the row is not touched.
	_, err = s.RecordLoginFailure(ctx, id, 3, lockUntil.Add(time.Hour), Base.Add(time.Minute))
	var locked *apperrors.LockedError
	require.ErrorAs(t, err, &locked)
	assert.True(t, lockUntil.Equal(locked.Until))

	u, err := s.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, u.FailedLoginCount)
	require.NotNil(t, u.LockedUntil)
	assert.True(t, lockUntil.Equal(*u.LockedUntil))

	require.NoError(t, s.ResetLoginFailures(ctx, id, Base.Add(time.Minute)))
	u, err = s.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, u.FailedLoginCount)
	assert.Nil(t, u.LockedUntil)

	assert.ErrorIs(t, s.ResetLoginFailures(ctx, id+1000, Base), apperrors.ErrNotFound)
	_, err = s.RecordLoginFailure(ctx, id+1000, 3, lockUntil, Base)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testConcurrentLoginFailures(t *testing.T, s storage.Store) {
	ctx := context.Background()

	id, err := s.CreateUser(ctx, Record("busy@example.com", Base))
	require.NoError(t, err)

	const attempts = 20
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordLoginFailure(ctx, id, 1000, Base.Add(time.Hour), Base)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := s.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, attempts, u.FailedLoginCount)
}

// testConcurrentLockThreshold races failures across a threshold of 3: exactly
// one attempt sets the lock and every later one sees it.
func testConcurrentLockThreshold(t *testing.T, s storage.Store) {
	ctx := context.Background()

	id, err := s.CreateUser(ctx, Record("race-lock@example.com", Base))
	require.NoError(t, err)

	const (
		attempts  = 20
		threshold = 3
	)
	lockUntil := Base.Add(15 * time.Minute)
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		counted    int
		locks      int
		lockedErrs int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.RecordLoginFailure(ctx, id, threshold, lockUntil, Base)
			mu.Lock()
			defer mu.Unlock()
			var locked *apperrors.LockedError
			switch {
			case errors.As(err, &locked):
				lockedErrs++
			case err != nil:
				t.Errorf("unexpected error: %v", err)
			default:
				counted++
				if res.LockedUntil != nil {
					locks++
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, threshold, counted)
	assert.Equal(t, 1, locks)
	assert.Equal(t, attempts-threshold, lockedErrs)

	u, err := s.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, threshold, u.FailedLoginCount)
	require.NotNil(t, u.LockedUntil)
	assert.True(t, lockUntil.Equal(*u.LockedUntil))
}

func testExpiredLockWindow(t *testing.T, s storage.Store) {
	ctx := context.Background()

	id, err := s.CreateUser(ctx, Record("window@example.com", Base))
	require.NoError(t, err)

	lockUntil := Base.Add(time.Minute)
	res, err := s.RecordLoginFailure(ctx, id, 1, lockUntil, Base)
	require.NoError(t, err)
	require.NotNil(t, res.LockedUntil)

	afterLock := lockUntil.Add(time.Second)
	res, err = s.RecordLoginFailure(ctx, id, 2, afterLock.Add(time.Minute), afterLock)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Nil(t, res.LockedUntil)
}

func testRefreshTokens(t *testing.T, s storage.Store) {
	ctx := context.Background()

	uid, err := s.CreateUser(ctx, Record("tokens@example.com", Base))
	require.NoError(t, err)

	expires := Base.Add(time.Hour)
	id1, err := s.CreateRefreshToken(ctx, &models.RefreshToken{Token: "rt-1", UserID: uid, ExpiresAt: expires, CreatedAt: Base})
	require.NoError(t, err)
	id2, err := s.CreateRefreshToken(ctx, &models.RefreshToken{Token: "rt-2", UserID: uid, ExpiresAt: expires, CreatedAt: Base})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	ok, err := s.RefreshTokenExists(ctx, "rt-1", uid, Base)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RefreshTokenExists(ctx, "rt-1", uid+1, Base)
	require.NoError(t, err)
	assert.False(t, ok, "owner must match")

	ok, err = s.RefreshTokenExists(ctx, "rt-1", uid, expires)
	require.NoError(t, err)
	assert.False(t, ok, "expiry is exclusive")

	removed, err := s.DeleteRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.DeleteRefreshToken(ctx, "rt-1")
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err = s.RefreshTokenExists(ctx, "rt-1", uid, Base)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.RefreshTokenExists(ctx, "rt-2", uid, Base)
	require.NoError(t, err)
	assert.True(t, ok, "other sessions survive")
}

func testRefreshTokenUnknownUser(t *testing.T, s storage.Store) {
	_, err := s.CreateRefreshToken(context.Background(), &models.RefreshToken{
		Token: "orphan", UserID: 424242, ExpiresAt: Base.Add(time.Hour), CreatedAt: Base,
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testRefreshTokenCleanup(t *testing.T, s storage.Store) {
	ctx := context.Background()

	a, err := s.CreateUser(ctx, Record("a@example.com", Base))
	require.NoError(t, err)
	b, err := s.CreateUser(ctx, Record("b@example.com", Base))
	require.NoError(t, err)

	add := func(token string, uid int64, expires time.Time) {
		_, err := s.CreateRefreshToken(ctx, &models.RefreshToken{Token: token, UserID: uid, ExpiresAt: expires, CreatedAt: Base})
		require.NoError(t, err)
	}
	add("a-1", a, Base.Add(time.Hour))
	add("a-2", a, Base.Add(time.Hour))
	add("b-old", b, Base.Add(-time.Hour))
	add("b-new", b, Base.Add(time.Hour))

	n, err := s.DeleteExpiredRefreshTokens(ctx, Base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteUserRefreshTokens(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := s.RefreshTokenExists(ctx, "b-new", b, Base)
	require.NoError(t, err)
	assert.True(t, ok)
}
