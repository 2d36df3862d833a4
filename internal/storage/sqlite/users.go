package sqlite

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
		u                    models.User
		role, status         string
		lockedUntil          sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role, &status,
		&u.FailedLoginCount, &lockedUntil, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.Status = models.Status(status)
	u.LockedUntil = nullMillis(lockedUntil)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}

func (s *Storage) CreateUser(ctx context.Context, rec *models.UserRecord) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	const q = `INSERT INTO users (first_name, last_name, email, password_hash, role, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, rec.FirstName, rec.LastName, rec.Email, rec.PasswordHash,
		string(rec.Role), string(rec.Status), toMillis(rec.CreatedAt), toMillis(rec.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperrors.ErrDuplicateEmail
		}
		return 0, apperrors.Unavailable("create user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.Unavailable("create user", err)
	}
	return id, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Unavailable("get user by email", err)
	}
	return u, nil
}

func (s *Storage) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.Unavailable("get user by id", err)
	}
	return u, nil
}

func (s *Storage) UpdateUser(ctx context.Context, id int64, p *models.UserPatch) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	const q = `UPDATE users SET
		first_name    = COALESCE(?, first_name),
		last_name     = COALESCE(?, last_name),
		email         = COALESCE(?, email),
		password_hash = COALESCE(?, password_hash),
		role          = COALESCE(?, role),
		status        = COALESCE(?, status),
		updated_at    = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q,
		dbx.NullString(p.FirstName),
		dbx.NullString(p.LastName),
		dbx.NullString(p.Email),
		dbx.NullString(p.PasswordHash),
		nullRole(p.Role),
		nullStatus(p.Status),
		toMillis(p.UpdatedAt),
		id,
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

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, apperrors.Unavailable("list users", err)
	}
	defer func() {
		_ = rows.Close()
	}()

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

func (s *Storage) RecordLoginFailure(ctx context.Context, id int64, threshold int, lockUntil, now time.Time) (*models.LoginFailure, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	const q = `UPDATE users SET
		failed_login_count = CASE WHEN locked_until IS NULL THEN failed_login_count + 1 ELSE 1 END,
		locked_until = CASE
			WHEN (CASE WHEN locked_until IS NULL THEN failed_login_count + 1 ELSE 1 END) >= ? THEN ?
			ELSE NULL END,
		updated_at = ?
		WHERE id = ? AND (locked_until IS NULL OR locked_until <= ?)
		RETURNING failed_login_count, locked_until`

	var out *models.LoginFailure
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var (
			count  int
			locked sql.NullInt64
		)
		nowMs := toMillis(now)
		err := tx.QueryRowContext(ctx, q, threshold, toMillis(lockUntil), nowMs, id, nowMs).Scan(&count, &locked)
		if err == nil {
			out = &models.LoginFailure{Count: count, LockedUntil: nullMillis(locked)}
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		// No row matched: either the id is unknown or a lock is in force.
		var current sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT locked_until FROM users WHERE id = ?`, id).Scan(&current); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return err
		}
		if current.Valid {
			return &apperrors.LockedError{Until: fromMillis(current.Int64)}
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

func (s *Storage) ResetLoginFailures(ctx context.Context, id int64, now time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET failed_login_count = 0, locked_until = NULL, updated_at = ? WHERE id = ?`,
		toMillis(now), id)
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

func nullRole(r *models.Role) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}

func nullStatus(st *models.Status) sql.NullString {
	if st == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*st), Valid: true}
}
