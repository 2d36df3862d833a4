package token

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newTestIssuer(t *testing.T, c *clock) *Issuer {
	t.Helper()
	i, err := NewIssuer(Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "authcore",
		Now:           c.Now,
	})
	require.NoError(t, err)
	return i
}

func TestNewIssuer_Validation(t *testing.T) {
	_, err := NewIssuer(Config{AccessSecret: "a"})
	assert.Error(t, err)

	_, err = NewIssuer(Config{AccessSecret: "same", RefreshSecret: "same"})
	assert.Error(t, err)

	i, err := NewIssuer(Config{AccessSecret: "a", RefreshSecret: "b"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAccessTTL, i.AccessTTL())
}

func TestAccessToken_RoundTrip(t *testing.T) {
	c := &clock{t: time.Now()}
	i := newTestIssuer(t, c)

	s, err := i.IssueAccessToken(42, "ada@example.com", models.RoleAdmin)
	require.NoError(t, err)

	claims, err := i.Verify(s, Access)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "42", claims.Subject)
	assert.WithinDuration(t, c.t.Add(15*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestRefreshToken_MinimalClaimsAndUnique(t *testing.T) {
	c := &clock{t: time.Now()}
	i := newTestIssuer(t, c)

	a, err := i.IssueRefreshToken(7, "bob@example.com")
	require.NoError(t, err)
	b, err := i.IssueRefreshToken(7, "bob@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	claims, err := i.Verify(a, Refresh)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Empty(t, claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestVerify_SecretsAreNotInterchangeable(t *testing.T) {
	i := newTestIssuer(t, &clock{t: time.Now()})

	access, err := i.IssueAccessToken(1, "a@example.com", models.RoleUser)
	require.NoError(t, err)
	refresh, err := i.IssueRefreshToken(1, "a@example.com")
	require.NoError(t, err)

	_, err = i.Verify(access, Refresh)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
	_, err = i.Verify(refresh, Access)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestVerify_ExpiredIsDistinct(t *testing.T) {
	c := &clock{t: time.Now()}
	i := newTestIssuer(t, c)

	s, err := i.IssueRefreshToken(1, "a@example.com")
	require.NoError(t, err)

	c.t = c.t.Add(8 * 24 * time.Hour)
	_, err = i.Verify(s, Refresh)
	assert.ErrorIs(t, err, apperrors.ErrTokenExpired)
	assert.NotErrorIs(t, err, apperrors.ErrTokenInvalid)
}

func TestVerify_Invalid(t *testing.T) {
	c := &clock{t: time.Now()}
	i := newTestIssuer(t, c)

	good, err := i.IssueAccessToken(1, "a@example.com", models.RoleUser)
	require.NoError(t, err)
	parts := strings.Split(good, ".")
	require.Len(t, parts, 3)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1})
	noneToken, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	other, err := NewIssuer(Config{AccessSecret: "other-a", RefreshSecret: "other-r", Issuer: "authcore", Now: c.Now})
	require.NoError(t, err)
	forged, err := other.IssueAccessToken(1, "a@example.com", models.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"tampered signature", parts[0] + "." + parts[1] + ".AAAA"},
		{"alg none", noneToken},
		{"foreign secret", forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := i.Verify(tt.token, Access)
			assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
		})
	}
}

func TestVerify_ExpiredWithBadSignatureIsInvalid(t *testing.T) {
	c := &clock{t: time.Now()}
	i := newTestIssuer(t, c)
	other, err := NewIssuer(Config{AccessSecret: "x1", RefreshSecret: "x2", Issuer: "authcore", Now: c.Now})
	require.NoError(t, err)

	forged, err := other.IssueRefreshToken(1, "a@example.com")
	require.NoError(t, err)
	c.t = c.t.Add(30 * 24 * time.Hour)

	_, err = i.Verify(forged, Refresh)
	assert.ErrorIs(t, err, apperrors.ErrTokenInvalid)
}
