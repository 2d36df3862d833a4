// Package app wires configuration into the storage backends and services
// shared by the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	goredis "github.com/redis/go-redis/v9"

	"github.com/example/authcore/internal/config"
	"github.com/example/authcore/internal/credentials"
	"github.com/example/authcore/internal/httpapi"
	"github.com/example/authcore/internal/ledger"
	"github.com/example/authcore/internal/lockout"
	"github.com/example/authcore/internal/mirror"
	"github.com/example/authcore/internal/password"
	"github.com/example/authcore/internal/session"
	"github.com/example/authcore/internal/storage"
	"github.com/example/authcore/internal/storage/memory"
	"github.com/example/authcore/internal/storage/postgres"
	redisledger "github.com/example/authcore/internal/storage/redis"
	"github.com/example/authcore/internal/storage/sqlite"
	"github.com/example/authcore/internal/token"
)

// App holds the constructed services. Close releases the backends.
type App struct {
	Config      *config.Config
	Store       storage.Store
	Credentials *credentials.Store
	Ledger      *ledger.Ledger
	Sessions    *session.Service
	Mirror      *mirror.Reconciler
	// Pingers are the backends a readiness probe should check.
	Pingers []httpapi.Pinger

	closers []func() error
}

// OpenStore opens the identity store selected by DB_ADAPTER.
func OpenStore(ctx context.Context, c *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch c.DBAdapter {
	case "sqlite":
		if dir := filepath.Dir(c.SQLiteFile); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		s, err := sqlite.New(ctx, c.SQLiteFile, c.DBQueryTimeout)
		if err != nil {
			return nil, fmt.Errorf("sqlite init: %w", err)
		}
		logger.Info("using sqlite database", "file", c.SQLiteFile)
		return s, nil
	case "postgres":
		logger.Info("applying database migrations")
		if err := postgres.ApplyMigrations(logger, c.PostgresDriver, c.PostgresDSN); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		p, err := postgres.New(ctx, c.PostgresDriver, c.PostgresDSN, c.DBQueryTimeout)
		if err != nil {
			return nil, fmt.Errorf("postgres init: %w", err)
		}
		logger.Info("connected to postgres", "driver", c.PostgresDriver)
		return p, nil
	case "memory":
		logger.Warn("using in-memory database (not recommended for production)")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported DB_ADAPTER: %s (supported: postgres, sqlite, memory)", c.DBAdapter)
	}
}

// New builds every service from c.
func New(ctx context.Context, c *config.Config, logger *slog.Logger) (*App, error) {
	store, err := OpenStore(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Config: c, Store: store}
	a.closers = append(a.closers, store.Close)
	a.Pingers = append(a.Pingers, store)

	var tokenRepo ledger.Repository = store
	if c.LedgerBackend == "redis" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		})
		rl := redisledger.New(client, "")
		if err := rl.Ping(ctx); err != nil {
			_ = client.Close()
			_ = a.Close()
			return nil, fmt.Errorf("redis ledger: %w", err)
		}
		logger.Info("refresh token ledger in redis", "addr", c.RedisAddr)
		a.closers = append(a.closers, client.Close)
		a.Pingers = append(a.Pingers, rl)
		tokenRepo = rl
	}

	hasher := password.NewHasher(c.BcryptCost)
	a.Credentials = credentials.New(store, hasher, nil)

	lm, err := lockout.New(store, lockout.Policy{
		MaxFailedAttempts: c.MaxFailedAttempts,
		Duration:          c.LockoutDuration,
	}, nil)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  c.AccessTokenSecret,
		RefreshSecret: c.RefreshTokenSecret,
		AccessTTL:     c.AccessTokenTTL,
		RefreshTTL:    c.RefreshTokenTTL,
		Issuer:        c.TokenIssuer,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Ledger = ledger.New(tokenRepo, c.RefreshLedgerTTL, nil)
	a.Sessions = session.New(session.Deps{
		Users:   a.Credentials,
		Hasher:  hasher,
		Lockout: lm,
		Tokens:  issuer,
		Ledger:  a.Ledger,
		Logger:  logger,
	})
	a.Mirror = mirror.New(a.Credentials, mirror.Options{
		RequireHashed: c.MirrorRequireHashed,
		Logger:        logger,
	})
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
