// Package ledger is the server-side record of issued refresh tokens. A token
// is usable only while a matching record exists with an expiry after now;
// deleting the record revokes the token before its signed expiry.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/authcore/internal/models"
)

// DefaultTTL is the ledger expiry applied to new records.
const DefaultTTL = 7 * 24 * time.Hour

// Repository is the persistence the ledger needs; storage.TokenRepository
// satisfies it.
type Repository interface {
	CreateRefreshToken(ctx context.Context, rt *models.RefreshToken) (int64, error)
	RefreshTokenExists(ctx context.Context, token string, userID int64, now time.Time) (bool, error)
	DeleteRefreshToken(ctx context.Context, token string) (bool, error)
	DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type Ledger struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time
}

// New returns a Ledger. A non-positive ttl uses DefaultTTL and a nil now
// uses time.Now.
func New(repo Repository, ttl time.Duration, now func() time.Time) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Ledger{repo: repo, ttl: ttl, now: now}
}

// Store records token for userID with expiry now+TTL, independent of any
// expiry embedded in the token itself.
func (l *Ledger) Store(ctx context.Context, token string, userID int64) (int64, error) {
	now := l.now()
	id, err := l.repo.CreateRefreshToken(ctx, &models.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(l.ttl),
		CreatedAt: now,
	})
	if err != nil {
		return 0, fmt.Errorf("store refresh token: %w", err)
	}
	return id, nil
}

func (l *Ledger) Exists(ctx context.Context, token string, userID int64) (bool, error) {
	ok, err := l.repo.RefreshTokenExists(ctx, token, userID, l.now())
	if err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return ok, nil
}

func (l *Ledger) Remove(ctx context.Context, token string) (bool, error) {
	removed, err := l.repo.DeleteRefreshToken(ctx, token)
	if err != nil {
		return false, fmt.Errorf("remove refresh token: %w", err)
	}
	return removed, nil
}

// RemoveAllForUser revokes every session of userID.
func (l *Ledger) RemoveAllForUser(ctx context.Context, userID int64) (int64, error) {
	n, err := l.repo.DeleteUserRefreshTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("remove user refresh tokens: %w", err)
	}
	return n, nil
}

// Prune deletes records that are no longer usable.
func (l *Ledger) Prune(ctx context.Context) (int64, error) {
	n, err := l.repo.DeleteExpiredRefreshTokens(ctx, l.now())
	if err != nil {
		return 0, fmt.Errorf("prune refresh tokens: %w", err)
	}
	return n, nil
}

// RunPruner calls Prune every interval until ctx is done.
func (l *Ledger) RunPruner(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.Prune(ctx)
			if err != nil {
				logger.Warn("ledger prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("ledger pruned", "removed", n)
			}
		}
	}
}
