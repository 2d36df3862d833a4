package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
)

func newTestLedger(t *testing.T) (*Ledger, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "test:"), mr
}

func TestLedger_StoreExistsDelete(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	id1, err := l.CreateRefreshToken(ctx, &models.RefreshToken{Token: "tok-a", UserID: 1, ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	require.NoError(t, err)
	id2, err := l.CreateRefreshToken(ctx, &models.RefreshToken{Token: "tok-b", UserID: 1, ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	ok, err := l.RefreshTokenExists(ctx, "tok-a", 1, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.RefreshTokenExists(ctx, "tok-a", 2, now)
	require.NoError(t, err)
	assert.False(t, ok, "owner must match")

	ok, err = l.RefreshTokenExists(ctx, "tok-a", 1, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "expiry is exclusive")

	removed, err := l.DeleteRefreshToken(ctx, "tok-a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = l.DeleteRefreshToken(ctx, "tok-a")
	require.NoError(t, err)
	assert.False(t, removed)

	ok, err = l.RefreshTokenExists(ctx, "tok-b", 1, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedger_TokenTextIsNotStored(t *testing.T) {
	l, mr := newTestLedger(t)
	now := time.Now()

	_, err := l.CreateRefreshToken(context.Background(), &models.RefreshToken{Token: "very-secret", UserID: 5, ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	require.NoError(t, err)

	for _, k := range mr.Keys() {
		assert.NotContains(t, k, "very-secret")
	}
}

func TestLedger_ExpiresWithRedisTTL(t *testing.T) {
	l, mr := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	_, err := l.CreateRefreshToken(ctx, &models.RefreshToken{Token: "short", UserID: 3, ExpiresAt: now.Add(time.Minute), CreatedAt: now})
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	ok, err := l.RefreshTokenExists(ctx, "short", 3, now)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := l.DeleteExpiredRefreshTokens(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLedger_DeleteUserTokens(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	for _, tok := range []string{"u1-a", "u1-b"} {
		_, err := l.CreateRefreshToken(ctx, &models.RefreshToken{Token: tok, UserID: 1, ExpiresAt: now.Add(time.Hour), CreatedAt: now})
		require.NoError(t, err)
	}
	_, err := l.CreateRefreshToken(ctx, &models.RefreshToken{Token: "u2-a", UserID: 2, ExpiresAt: now.Add(time.Hour), CreatedAt: now})
	require.NoError(t, err)

	n, err := l.DeleteUserRefreshTokens(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ok, err := l.RefreshTokenExists(ctx, "u1-a", 1, now)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = l.RefreshTokenExists(ctx, "u2-a", 2, now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedger_Unavailable(t *testing.T) {
	l, mr := newTestLedger(t)
	mr.Close()

	_, err := l.CreateRefreshToken(context.Background(), &models.RefreshToken{Token: "x", UserID: 1, ExpiresAt: time.Now().Add(time.Hour)})
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)

	_, err = l.RefreshTokenExists(context.Background(), "x", 1, time.Now())
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.ErrorIs(t, l.Ping(context.Background()), apperrors.ErrStoreUnavailable)
}

func TestLedger_KeysShareSlotAndIndexStaysClean(t *testing.T) {
	l, mr := newTestLedger(t)
	ctx := context.Background()
	now := time.Now()

	for _, tok := range []string{"slot-a", "slot-b"} {
		_, err := l.CreateRefreshToken(ctx, &models.RefreshToken{Token: tok, UserID: 7, ExpiresAt: now.Add(time.Hour), CreatedAt: now})
		require.NoError(t, err)
	}
	for _, k := range mr.Keys() {
		assert.Contains(t, k, "{rt}", "key %s outside the ledger hash slot", k)
	}

	removed, err := l.DeleteRefreshToken(ctx, "slot-a")
	require.NoError(t, err)
	assert.True(t, removed)

	members, err := mr.Members(l.userKey(7))
	require.NoError(t, err)
	assert.Equal(t, []string{l.tokenKey("slot-b")}, members)

	n, err := l.DeleteUserRefreshTokens(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, mr.Exists(l.userKey(7)))

	n, err = l.DeleteUserRefreshTokens(ctx, 7)
	require.NoError(t, err)
	assert.Zero(t, n)
}
