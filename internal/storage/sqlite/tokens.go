package sqlite

import (
	"context"
	"time"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
)

func (s *Storage) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		rt.Token, rt.UserID, toMillis(rt.ExpiresAt), toMillis(rt.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, apperrors.ErrNotFound
		}
		return 0, apperrors.Unavailable("create refresh token", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperrors.Unavailable("create refresh token", err)
	}
	return id, nil
}

func (s *Storage) RefreshTokenExists(ctx context.Context, token string, userID int64, now time.Time) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token = ? AND user_id = ? AND expires_at > ?)`,
		token, userID, toMillis(now)).Scan(&exists)
	if err != nil {
		return false, apperrors.Unavailable("find refresh token", err)
	}
	return exists, nil
}

func (s *Storage) DeleteRefreshToken(ctx context.Context, token string) (bool, error) {
	n, err := s.deleteTokens(ctx, "delete refresh token", `DELETE FROM refresh_tokens WHERE token = ?`, token)
	return n > 0, err
}

func (s *Storage) DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	return s.deleteTokens(ctx, "delete user refresh tokens", `DELETE FROM refresh_tokens WHERE user_id = ?`, userID)
}

func (s *Storage) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteTokens(ctx, "delete expired refresh tokens", `DELETE FROM refresh_tokens WHERE expires_at <= ?`, toMillis(now))
}

func (s *Storage) deleteTokens(ctx context.Context, op, q string, arg any) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, q, arg)
	if err != nil {
		return 0, apperrors.Unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Unavailable(op, err)
	}
	return n, nil
}
