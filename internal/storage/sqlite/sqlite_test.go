package sqlite

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/storage"
	"github.com/example/authcore/internal/storage/storagetest"
)

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(context.Background(), ":memory:", 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return setupTestStorage(t)
	})
}

func TestNew_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.db")

	s, err := New(ctx, path, 0)
	require.NoError(t, err)
	id, err := s.CreateUser(ctx, storagetest.Record("keep@example.com", storagetest.Base))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(ctx, path, 0)
	require.NoError(t, err)
	defer s.Close()

	u, err := s.GetUserByEmail(ctx, "keep@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
}

func TestNew_MigratesQuietly(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	s := setupTestStorage(t)
	v, err := s.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	// A second store on its own database migrates independently.
	other := setupTestStorage(t)
	v, err = other.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	assert.Empty(t, buf.String(), "migrations must not write to the standard logger")
}

func TestClosedStoreIsUnavailable(t *testing.T) {
	s, err := New(context.Background(), ":memory:", 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.GetUserByEmail(context.Background(), "x@example.com")
	assert.ErrorIs(t, err, apperrors.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), apperrors.ErrStoreUnavailable)
}

func TestMillisRoundTrip(t *testing.T) {
	ts := time.Date(2026, 7, 1, 8, 30, 15, 123_000_000, time.UTC)
	assert.True(t, ts.Equal(fromMillis(toMillis(ts))))
}
