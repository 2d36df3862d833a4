package postgres

import (
	"context"
	"time"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/models"
)

func (p *PostgresDB) CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) (int64, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO refresh_tokens (token, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		rt.Token, rt.UserID, rt.ExpiresAt, rt.CreatedAt).Scan(&id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, apperrors.ErrNotFound
		}
		return 0, apperrors.Unavailable("create refresh token", err)
	}
	return id, nil
}

func (p *PostgresDB) RefreshTokenExists(ctx context.Context, token string, userID int64, now time.Time) (bool, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	var exists bool
	err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token = $1 AND user_id = $2 AND expires_at > $3)`,
		token, userID, now).Scan(&exists)
	if err != nil {
		return false, apperrors.Unavailable("find refresh token", err)
	}
	return exists, nil
}

func (p *PostgresDB) DeleteRefreshToken(ctx context.Context, token string) (bool, error) {
	n, err := p.deleteTokens(ctx, "delete refresh token", `DELETE FROM refresh_tokens WHERE token = $1`, token)
	return n > 0, err
}

func (p *PostgresDB) DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	return p.deleteTokens(ctx, "delete user refresh tokens", `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
}

func (p *PostgresDB) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return p.deleteTokens(ctx, "delete expired refresh tokens", `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
}

func (p *PostgresDB) deleteTokens(ctx context.Context, op, q string, arg any) (int64, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx, q, arg)
	if err != nil {
		return 0, apperrors.Unavailable(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.Unavailable(op, err)
	}
	return n, nil
}
