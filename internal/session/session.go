// Package session orchestrates login, refresh and logout over the identity
// store, the lockout machine, the token issuer and the refresh token
// ledger.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/example/authcore/internal/apperrors"
	"github.com/example/authcore/internal/ledger"
	"github.com/example/authcore/internal/lockout"
	"github.com/example/authcore/internal/models"
	"github.com/example/authcore/internal/password"
	"github.com/example/authcore/internal/token"
)

// Users is the read side of the identity store.
type Users interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
}

type Deps struct {
	Users   Users
	Hasher  *password.Hasher
	Lockout *lockout.Machine
	Tokens  *token.Issuer
	Ledger  *ledger.Ledger
	Logger  *slog.Logger
}

type Service struct {
	users   Users
	hasher  *password.Hasher
	lockout *lockout.Machine
	tokens  *token.Issuer
	ledger  *ledger.Ledger
	log     *slog.Logger
}

func New(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		users:   d.Users,
		hasher:  d.Hasher,
		lockout: d.Lockout,
		tokens:  d.Tokens,
		ledger:  d.Ledger,
		log:     logger.With("component", "session"),
	}
}

type LoginResult struct {
	User         models.User
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

type RefreshResult struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// Login verifies email and password. Unknown emails and wrong passwords
// both fail with ErrInvalidCredentials. Tokens are only returned once the
// refresh token is recorded in the ledger.
func (s *Service) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.hasher.CompareDummy(pass)
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if u.Status != models.StatusActive {
		return nil, apperrors.ErrAccountInactive
	}
	if s.lockout.IsLocked(u) {
		return nil, &apperrors.LockedError{Until: *u.LockedUntil}
	}

	if !s.hasher.Compare(u.PasswordHash, pass) {
		return nil, s.failedAttempt(ctx, u)
	}

	if err := s.lockout.Reset(ctx, u); err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshToken(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Store(ctx, refresh, u.ID); err != nil {
		s.log.ErrorContext(ctx, "refresh token not recorded, login aborted", "user_id", u.ID, "error", err)
		return nil, err
	}

	u.FailedLoginCount = 0
	u.LockedUntil = nil
	s.log.InfoContext(ctx, "login succeeded", "user_id", u.ID)
	return &LoginResult{
		User:         u.Redacted(),
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    s.tokens.AccessTTL(),
	}, nil
}

func (s *Service) failedAttempt(ctx context.Context, u *models.User) error {
	out, err := s.lockout.RegisterFailure(ctx, u.ID)
	if err != nil {
		// A concurrent attempt locked the account first.
		var locked *apperrors.LockedError
		if errors.As(err, &locked) {
			return locked
		}
		return err
	}
	if out.Locked {
		s.log.WarnContext(ctx, "account locked after failed logins",
			"user_id", u.ID, "attempts", out.Attempts, "locked_until", out.LockedUntil)
		return &apperrors.LockoutError{Attempts: out.Attempts, Until: out.LockedUntil}
	}
	return apperrors.ErrInvalidCredentials
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, apperrors.ErrMissingToken
	}

	claims, err := s.tokens.Verify(refreshToken, token.Refresh)
	if err != nil {
		s.log.DebugContext(ctx, "refresh token rejected", "error", err)
		return nil, apperrors.ErrInvalidRefreshToken
	}

	ok, err := s.ledger.Exists(ctx, refreshToken, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	u, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, err
	}
	if u.Status != models.StatusActive {
		return nil, apperrors.ErrInvalidRefreshToken
	}

	access, err := s.tokens.IssueAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: access, ExpiresIn: s.tokens.AccessTTL()}, nil
}

// Logout removes refreshToken from the ledger. Missing and unknown tokens
// succeed; store failures are returned because revocation was not
// confirmed.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	removed, err := s.ledger.Remove(ctx, refreshToken)
	if err != nil {
		return err
	}
	s.log.DebugContext(ctx, "logout", "removed", removed)
	return nil
}

// LogoutAll revokes every refresh token of userID.
func (s *Service) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.ledger.RemoveAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.log.InfoContext(ctx, "all sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// Authenticate verifies an access token for protected routes.
func (s *Service) Authenticate(_ context.Context, accessToken string) (*token.Claims, error) {
	if accessToken == "" {
		return nil, apperrors.ErrTokenInvalid
	}
	return s.tokens.Verify(accessToken, token.Access)
}

// TokenInfo describes a token for introspection. Inactive tokens carry no
// other fields.
type TokenInfo struct {
	Active    bool        `json:"active"`
	Kind      string      `json:"tokenType,omitempty"`
	UserID    int64       `json:"userId,omitempty"`
	Email     string      `json:"email,omitempty"`
	Role      models.Role `json:"role,omitempty"`
	ExpiresAt int64       `json:"exp,omitempty"`
}

// Introspect reports whether raw is a live access token or a refresh token
// still present in the ledger. Only store failures are returned as errors.
func (s *Service) Introspect(ctx context.Context, raw string) (TokenInfo, error) {
	if raw == "" {
		return TokenInfo{}, nil
	}
	if c, err := s.tokens.Verify(raw, token.Access); err == nil {
		return tokenInfo(token.Access, c), nil
	}
	c, err := s.tokens.Verify(raw, token.Refresh)
	if err != nil {
		return TokenInfo{}, nil
	}
	ok, err := s.ledger.Exists(ctx, raw, c.UserID)
	if err != nil {
		return TokenInfo{}, err
	}
	if !ok {
		return TokenInfo{}, nil
	}
	return tokenInfo(token.Refresh, c), nil
}

func tokenInfo(kind token.Kind, c *token.Claims) TokenInfo {
	info := TokenInfo{Active: true, Kind: kind.String(), UserID: c.UserID, Email: c.Email, Role: c.Role}
	if c.ExpiresAt != nil {
		info.ExpiresAt = c.ExpiresAt.Unix()
	}
	return info
}
