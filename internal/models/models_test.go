package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIsLocked(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name  string
		until *time.Time
		want  bool
	}{
		{"no lock", nil, false},
		{"lock in force", &future, true},
		{"lock elapsed", &past, false},
		{"lock ends exactly now", &now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{LockedUntil: tt.until}
			assert.Equal(t, tt.want, u.IsLocked(now))
		})
	}
}

func TestUserJSONOmitsHash(t *testing.T) {
	u := User{ID: 1, Email: "a@example.com", PasswordHash: "$2a$12$secret"}
	b, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")
	assert.Empty(t, u.Redacted().PasswordHash)
	assert.NotEmpty(t, u.PasswordHash)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@example.com", NormalizeEmail("  Jane@Example.COM "))
}

func TestUserUpdateEmpty(t *testing.T) {
	assert.True(t, UserUpdate{}.Empty())
	name := "x"
	assert.False(t, UserUpdate{FirstName: &name}.Empty())
}

func TestRefreshTokenValid(t *testing.T) {
	now := time.Now()
	rt := &RefreshToken{ExpiresAt: now}
	assert.False(t, rt.Valid(now))
	assert.True(t, rt.Valid(now.Add(-time.Nanosecond)))
}
