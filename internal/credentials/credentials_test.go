package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
	"github.com/example/authcore/internal/password"
	"github.com/example/authcore/internal/storage/memory"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	return New(memory.New(), password.NewHasher(bcrypt.MinCost), c.Now), c
}

func TestCreate_HashesAndNormalizes(t *testing.T) {
	s, c := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, models.NewUser{FirstName: "Grace", Email: "  Grace@Example.com ", Password: "hunter22"})
	require.NoError(t, err)

	u, err := s.FindByEmail(ctx, "GRACE@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, "grace@example.com", u.Email)
	assert.NotEqual(t, "hunter22", u.PasswordHash)
	assert.True(t, s.Hasher().Compare(u.PasswordHash, "hunter22"))
	assert.Equal(t, models.RoleUser, u.Role)
	assert.Equal(t, models.StatusActive, u.Status)
	assert.Equal(t, c.t, u.CreatedAt)
	assert.Equal(t, c.t, u.UpdatedAt)
}

func TestCreate_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, models.NewUser{Email: "dup@example.com", Password: "pw"})
	require.NoError(t, err)
	_, err = s.Create(ctx, models.NewUser{Email: "DUP@example.com", Password: "pw"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateEmail)
}

func TestCreate_Validation(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   models.NewUser
		want error
	}{
		{"no email", models.NewUser{Password: "pw"}, ErrEmailRequired},
		{"no password", models.NewUser{Email: "a@example.com"}, ErrPasswordRequired},
		{"bad role", models.NewUser{Email: "a@example.com", Password: "pw", Role: "root"}, ErrInvalidRole},
		{"bad status", models.NewUser{Email: "a@example.com", Password: "pw", Status: "gone"}, ErrInvalidStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestCreateHashed_StoresValueVerbatim(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	hash, err := s.Hasher().Hash("imported")
	require.NoError(t, err)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	id, err := s.CreateHashed(ctx, models.NewUser{Email: "imp@example.com", Password: hash, CreatedAt: &created})
	require.NoError(t, err)

	u, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, hash, u.PasswordHash)
	assert.Equal(t, created, u.CreatedAt)
	assert.Equal(t, created, u.UpdatedAt)
}

func TestUpdate_OnlySuppliedFields(t *testing.T) {
	s, c := newStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, models.NewUser{FirstName: "Alan", LastName: "Turing", Email: "alan@example.com", Password: "enigma"})
	require.NoError(t, err)
	before, err := s.FindByID(ctx, id)
	require.NoError(t, err)

	c.t = c.t.Add(time.Hour)
	status := models.StatusInactive
	newPass := "bombe"
	ok, err := s.Update(ctx, id, models.UserUpdate{Status: &status, Password: &newPass})
	require.NoError(t, err)
	assert.True(t, ok)

	after, err := s.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Alan", after.FirstName)
	assert.Equal(t, "Turing", after.LastName)
	assert.Equal(t, models.StatusInactive, after.Status)
	assert.Equal(t, before.Role, after.Role)
	assert.True(t, s.Hasher().Compare(after.PasswordHash, "bombe"))
	assert.Equal(t, c.t, after.UpdatedAt)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestUpdate_UnknownIDAndValidation(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	name := "x"
	ok, err := s.Update(ctx, 404, models.UserUpdate{FirstName: &name})
	require.NoError(t, err)
	assert.False(t, ok)

	role := models.Role("owner")
	_, err = s.Update(ctx, 1, models.UserUpdate{Role: &role})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestListAll_NewestFirst(t *testing.T) {
	s, c := newStore(t)
	ctx := context.Background()

	for _, e := range []string{"first@example.com", "second@example.com"} {
		_, err := s.Create(ctx, models.NewUser{Email: e, Password: "pw"})
		require.NoError(t, err)
		c.t = c.t.Add(time.Minute)
	}

	users, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "second@example.com", users[0].Email)
}
