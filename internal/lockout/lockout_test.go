package lockout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
	"github.com/example/authcore/internal/storage/memory"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func setup(t *testing.T, policy Policy) (*Machine, *memory.DB, *clock, int64) {
	t.Helper()
	db := memory.New()
	c := &clock{t: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	id, err := db.CreateUser(context.Background(), &models.UserRecord{
		Email: "target@example.com", PasswordHash: "h", Role: models.RoleUser, Status: models.StatusActive,
		CreatedAt: c.t, UpdatedAt: c.t,
	})
	require.NoError(t, err)
	m, err := New(db, policy, c.Now)
	require.NoError(t, err)
	return m, db, c, id
}

func TestPolicyValidate(t *testing.T) {
	assert.Error(t, Policy{MaxFailedAttempts: 0, Duration: time.Minute}.Validate())
	assert.Error(t, Policy{MaxFailedAttempts: 3}.Validate())
	assert.NoError(t, Policy{MaxFailedAttempts: 1, Duration: time.Second}.Validate())
}

func TestRegisterFailure_LocksAtThreshold(t *testing.T) {
	m, db, c, id := setup(t, Policy{MaxFailedAttempts: 3, Duration: 15 * time.Minute})
	ctx := context.Background()

	for want := 1; want <= 2; want++ {
		out, err := m.RegisterFailure(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, out.Attempts)
		assert.False(t, out.Locked)
	}

	out, err := m.RegisterFailure(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Attempts)
	assert.True(t, out.Locked)
	assert.Equal(t, c.t.Add(15*time.Minute), out.LockedUntil)

	u, err := db.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, m.IsLocked(u))

	// Further failures inside the window do not touch the counter.
	c.t = c.t.Add(time.Minute)
	_, err = m.RegisterFailure(ctx, id)
	assert.ErrorIs(t, err, apperrors.ErrAccountLocked)
	u, err = db.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, u.FailedLoginCount)

	// The lock lapses on its own.
	c.t = c.t.Add(15 * time.Minute)
	assert.False(t, m.IsLocked(u))
}

func TestReset(t *testing.T) {
	m, db, _, id := setup(t, Policy{MaxFailedAttempts: 2, Duration: time.Minute})
	ctx := context.Background()

	_, err := m.RegisterFailure(ctx, id)
	require.NoError(t, err)
	_, err = m.RegisterFailure(ctx, id)
	require.NoError(t, err)

	u, err := db.GetUserByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u.LockedUntil)

	require.NoError(t, m.Reset(ctx, u))
	u, err = db.GetUserByID(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, u.FailedLoginCount)
	assert.Nil(t, u.LockedUntil)
	assert.False(t, m.IsLocked(u))

	// Already clean: no write needed.
	require.NoError(t, m.Reset(ctx, &models.User{ID: 12345}))
}

func TestRegisterFailure_ThresholdOne(t *testing.T) {
	m, _, _, id := setup(t, Policy{MaxFailedAttempts: 1, Duration: time.Minute})

	out, err := m.RegisterFailure(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, out.Locked)
}
