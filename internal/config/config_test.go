package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	c, err := LoadFrom(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, "postgres", c.DBAdapter)
	assert.Equal(t, "postgres", c.PostgresDriver)
	assert.Equal(t, "host=localhost port=5432 user=authcore dbname=authcore sslmode=disable", c.PostgresDSN)
	assert.Equal(t, 5*time.Second, c.DBQueryTimeout)
	assert.Equal(t, "sql", c.LedgerBackend)
	assert.Equal(t, 15*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenTTL)
	assert.Equal(t, 5, c.MaxFailedAttempts)
	assert.Equal(t, 15*time.Minute, c.LockoutDuration)
	assert.Equal(t, 12, c.BcryptCost)
	assert.True(t, c.MirrorRequireHashed)
	assert.Equal(t, 30, c.LoginRatePerMinute)
}

func TestLoadFrom_Overrides(t *testing.T) {
	c, err := LoadFrom(map[string]string{
		"DB_ADAPTER":            "sqlite",
		"SQLITE_FILE":           "/tmp/auth.db",
		"LEDGER_BACKEND":        "redis",
		"REDIS_ADDR":            "cache:6379",
		"MAX_FAILED_ATTEMPTS":   "3",
		"LOCKOUT_DURATION":      "30m",
		"MIRROR_REQUIRE_HASHED": "false",
	})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/auth.db", c.SQLiteFile)
	assert.Equal(t, "redis", c.LedgerBackend)
	assert.Equal(t, 3, c.MaxFailedAttempts)
	assert.Equal(t, 30*time.Minute, c.LockoutDuration)
	assert.False(t, c.MirrorRequireHashed)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"bad adapter", map[string]string{"DB_ADAPTER": "mongo"}},
		{"bad driver", map[string]string{"POSTGRES_DRIVER": "mysql"}},
		{"bad ledger", map[string]string{"LEDGER_BACKEND": "etcd"}},
		{"bad port", map[string]string{"PORT": "http"}},
		{"unparsable duration", map[string]string{"LOCKOUT_DURATION": "soon"}},
		{"zero threshold", map[string]string{"MAX_FAILED_ATTEMPTS": "0"}},
		{"same secrets", map[string]string{"ACCESS_TOKEN_SECRET": "s", "REFRESH_TOKEN_SECRET": "s"}},
		{"production defaults", map[string]string{"ENV": "production", "DB_ADAPTER": "memory"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.vars)
			assert.Error(t, err)
		})
	}
}

func TestLoadFrom_Production(t *testing.T) {
	c, err := LoadFrom(map[string]string{
		"ENV":                  "prod",
		"DB_ADAPTER":           "memory",
		"ACCESS_TOKEN_SECRET":  "a-real-secret",
		"REFRESH_TOKEN_SECRET": "another-real-secret",
		"ADMIN_PASSWORD":       "a-real-password",
	})
	require.NoError(t, err)
	assert.True(t, c.IsProduction())
}

func TestBuildPostgresDSN(t *testing.T) {
	c := &Config{PostgresDSN: "postgres://u@h/db"}
	dsn, err := c.BuildPostgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u@h/db", dsn)

	c = &Config{PostgresHost: "db", PostgresUser: "u", PostgresDB: "auth", PostgresPassword: "pw"}
	dsn, err = c.BuildPostgresDSN()
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=u dbname=auth sslmode=disable password=pw", dsn)

	_, err = (&Config{PostgresHost: "db"}).BuildPostgresDSN()
	assert.Error(t, err)
}
