// Package postgres is the PostgreSQL storage.Store backend. It runs on
// database/sql with either lib/pq ("postgres") or pgx ("pgx") as the driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/dbx"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

type PostgresDB struct {
	db      *sql.DB
	timeout time.Duration
}

// New opens a pool with driverName ("postgres" or "pgx") and checks it.
// Migrations are applied separately with ApplyMigrations.
func New(ctx context.Context, driverName, dsn string, timeout time.Duration) (*PostgresDB, error) {
	if driverName == "" {
		driverName = "postgres"
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := dbx.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresDB{db: db, timeout: timeout}, nil
}

// NewWithDB wraps an existing pool.
func NewWithDB(db *sql.DB, timeout time.Duration) *PostgresDB {
	return &PostgresDB{db: db, timeout: timeout}
}

func (p *PostgresDB) Ping(ctx context.Context) error {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	if err := p.db.PingContext(ctx); err != nil {
		return apperrors.Unavailable("ping", err)
	}
	return nil
}

func (p *PostgresDB) Close() error { return p.db.Close() }

func (p *PostgresDB) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return dbx.WithTimeout(ctx, p.timeout)
}

// sqlState extracts the SQLSTATE from either driver's error type.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool { return sqlState(err) == codeUniqueViolation }

func isForeignKeyViolation(err error) bool { return sqlState(err) == codeForeignKeyViolation }

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
