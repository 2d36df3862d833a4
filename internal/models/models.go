package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool { return r == RoleUser || r == RoleAdmin }

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusInactive }

// User is a stored identity. PasswordHash never leaves the process in
// serialized form.
type User struct {
	ID               int64      `json:"id"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Role             Role       `json:"role"`
	Status           Status     `json:"status"`
	FailedLoginCount int        `json:"failedLoginCount"`
	LockedUntil      *time.Time `json:"lockedUntil,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Redacted returns a copy without the password hash.
func (u User) Redacted() User {
	u.PasswordHash = ""
	return u
}

// IsLocked reports whether the lock is in force at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// NewUser carries the fields accepted on creation. Password is either
// plaintext or an existing hash depending on the create path used.
type NewUser struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      Role
	Status    Status
	CreatedAt *time.Time
	UpdatedAt *time.Time
}

// UserUpdate is a partial update: nil fields are left untouched.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
	Role      *Role
	Status    *Status
}

// Empty reports whether no field is supplied.
func (u UserUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil &&
		u.Password == nil && u.Role == nil && u.Status == nil
}

// UserRecord is the row handed to a repository on insert.
type UserRecord struct {
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserPatch is the repository-level partial update, with the password
// already hashed and UpdatedAt always set.
type UserPatch struct {
	FirstName    *string
	LastName     *string
	Email        *string
	PasswordHash *string
	Role         *Role
	Status       *Status
	UpdatedAt    time.Time
}

// LoginFailure is the outcome of an atomic failed-attempt update.
type LoginFailure struct {
	Count       int
	LockedUntil *time.Time
}

// RefreshToken is a ledger row.
type RefreshToken struct {
	ID        int64
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Valid reports whether the record can still be exchanged at now.
func (t *RefreshToken) Valid(now time.Time) bool {
	return now.Before(t.ExpiresAt)
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
