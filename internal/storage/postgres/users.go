package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/dbx"
	"github.com/example/authcore/internal/models"
)

const userColumns = `id, first_name, last_name, email, password_hash, role, status,
	failed_login_count, locked_until, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u            models.User
		role, status string
		lockedUntil  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role, &status,
		&u.FailedLoginCount, &lockedUntil, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.Status = models.Status(status)
	u.LockedUntil = nullTime(lockedUntil)
	return &u, nil
}

func (p *PostgresDB) CreateUser(ctx context.Context, rec *models.UserRecord) (int64, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	const q = `INSERT INTO users (first_name, last_name, email, password_hash, role, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	var id int64
	err := p.db.QueryRowContext(ctx, q, rec.FirstName, rec.LastName, rec.Email, rec.PasswordHash,
		string(rec.Role), string(rec.Status), rec.CreatedAt, rec.UpdatedAt).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperrors.ErrDuplicateEmail
		}
		return 0, apperrors.Unavailable("create user", err)
	}
	return id, nil
}

func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Unavailable("get user by email", err)
	}
	return u, nil
}

func (p *PostgresDB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Unavailable("get user by id", err)
	}
	return u, nil
}

func (p *PostgresDB) UpdateUser(ctx context.Context, id int64, patch *models.UserPatch) (bool, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	const q = `UPDATE users SET
		first_name    = COALESCE($2, first_name),
		last_name     = COALESCE($3, last_name),
		email         = COALESCE($4, email),
		password_hash = COALESCE($5, password_hash),
		role          = COALESCE($6, role),
		status        = COALESCE($7, status),
		updated_at    = $8
		WHERE id = $1`
	var role, status *string
	if patch.Role != nil {
		r := string(*patch.Role)
		role = &r
	}
	if patch.Status != nil {
		st := string(*patch.Status)
		status = &st
	}
	res, err := p.db.ExecContext(ctx, q, id,
		dbx.NullString(patch.FirstName),
		dbx.NullString(patch.LastName),
		dbx.NullString(patch.Email),
		dbx.NullString(patch.PasswordHash),
		dbx.NullString(role),
		dbx.NullString(status),
		patch.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperrors.ErrDuplicateEmail
		}
		return false, apperrors.Unavailable("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.Unavailable("update user", err)
	}
	return n > 0, nil
}

func (p *PostgresDB) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, apperrors.Unavailable("list users", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.Unavailable("list users", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("list users", err)
	}
	return users, nil
}

func (p *PostgresDB) RecordLoginFailure(ctx context.Context, id int64, threshold int, lockUntil, now time.Time) (*models.LoginFailure, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	const q = `UPDATE users SET
		failed_login_count = CASE WHEN locked_until IS NULL THEN failed_login_count + 1 ELSE 1 END,
		locked_until = CASE
			WHEN (CASE WHEN locked_until IS NULL THEN failed_login_count + 1 ELSE 1 END) >= $2 THEN $3::timestamptz
			ELSE NULL END,
		updated_at = $4
		WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $4)
		RETURNING failed_login_count, locked_until`

	var out *models.LoginFailure
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var (
			count  int
			locked sql.NullTime
		)
		err := tx.QueryRowContext(ctx, q, id, threshold, lockUntil, now).Scan(&count, &locked)
		if err == nil {
			out = &models.LoginFailure{Count: count, LockedUntil: nullTime(locked)}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		// No row matched: either the id is unknown or a lock is in force.
		var current sql.NullTime
		if err := tx.QueryRowContext(ctx, `SELECT locked_until FROM users WHERE id = $1`, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return err
		}
		if current.Valid {
			return &apperrors.LockedError{Until: current.Time}
		}
		return sql.ErrNoRows
	})
	if err != nil {
		var locked *apperrors.LockedError
		if errors.Is(err, apperrors.ErrNotFound) || errors.As(err, &locked) {
			return nil, err
		}
		return nil, apperrors.Unavailable("record login failure", err)
	}
	return out, nil
}

func (p *PostgresDB) ResetLoginFailures(ctx context.Context, id int64, now time.Time) error {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return apperrors.Unavailable("reset login failures", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("reset login failures", err)
	}
	if n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
