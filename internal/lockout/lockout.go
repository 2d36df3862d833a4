// Package lockout implements the per-identity brute force lockout.
//
// An identity is Locked while its lockedUntil is after the current time and
// Unlocked otherwise. Lock state is always derived from the stored record;
// nothing is cached between attempts. Failed attempts are counted by the
// repository in a single atomic statement.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/authcore/internal/models"
)

const (
	DefaultMaxFailedAttempts = 5
	DefaultDuration          = 15 * time.Minute
)

// Policy is process-wide and fixed at startup.
type Policy struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

func (p Policy) Validate() error {
	if p.MaxFailedAttempts < 1 {
		return errors.New("lockout: max failed attempts must be at least 1")
	}
	if p.Duration <= 0 {
		return errors.New("lockout: duration must be positive")
	}
	return nil
}

// Repository is the part of storage.UserRepository the machine drives.
type Repository interface {
	RecordLoginFailure(ctx context.Context, id int64, threshold int, lockUntil, now time.Time) (*models.LoginFailure, error)
	ResetLoginFailures(ctx context.Context, id int64, now time.Time) error
}

// Outcome describes a recorded failure.
type Outcome struct {
	Attempts    int
	Locked      bool
	LockedUntil time.Time
}

type Machine struct {
	repo   Repository
	policy Policy
	now    func() time.Time
}

func New(repo Repository, policy Policy, now func() time.Time) (*Machine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Machine{repo: repo, policy: policy, now: now}, nil
}

func (m *Machine) Policy() Policy { return m.policy }

// IsLocked reports whether u is locked right now.
func (m *Machine) IsLocked(u *models.User) bool {
	return u.IsLocked(m.now())
}

// RegisterFailure counts a failed password verification for userID. The
// attempt that reaches the threshold locks the identity for the policy
// duration. If a lock is already in force the repository returns an
// *apperrors.LockedError and nothing changes.
func (m *Machine) RegisterFailure(ctx context.Context, userID int64) (Outcome, error) {
	now := m.now()
	res, err := m.repo.RecordLoginFailure(ctx, userID, m.policy.MaxFailedAttempts, now.Add(m.policy.Duration), now)
	if err != nil {
		return Outcome{}, fmt.Errorf("record failed login: %w", err)
	}
	out := Outcome{Attempts: res.Count}
	if res.LockedUntil != nil {
		out.Locked = true
		out.LockedUntil = *res.LockedUntil
	}
	return out, nil
}

// Reset moves the identity to Unlocked with a zero counter.
func (m *Machine) Reset(ctx context.Context, u *models.User) error {
	if u.FailedLoginCount == 0 && u.LockedUntil == nil {
		return nil
	}
	if err := m.repo.ResetLoginFailures(ctx, u.ID, m.now()); err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	return nil
}
