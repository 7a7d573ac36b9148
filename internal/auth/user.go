// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Field length constraints. Usernames and emails are capped at 100
// characters after sanitization.
const (
	MinUsernameLength = 1
	MaxUsernameLength = 100
	MaxEmailLength    = 100
)

// Role is a closed-set label determining access to protected resources.
type Role string

// Known roles. RoleUser is the default for new accounts.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents a registered account. PasswordHash is an opaque PHC
// string produced by a PasswordHasher; the plaintext never appears in a
// User, a log line, or a store.
type User struct {
	ID             ulid.ULID
	Username       string
	Email          string
	PasswordHash   string
	Role           Role
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewUser creates a validated User. Inputs are expected to be sanitized
// upstream; validation here guards the length and role invariants that
// must hold regardless of what the transport layer did.
func NewUser(username, email, passwordHash string, role Role) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("AUTH_INVALID_HASH").Errorf("password hash cannot be empty")
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, oops.Code("AUTH_INVALID_ROLE").
			With("role", string(role)).
			Errorf("unknown role %q", role)
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IsLocked returns true if the user is currently locked out.
func (u *User) IsLocked() bool {
	return IsLockedOut(u.LockedUntil)
}

// RecordFailure increments the failure counter and sets lockout if the
// threshold is reached.
func (u *User) RecordFailure() {
	u.FailedAttempts++
	u.LockedUntil = ComputeLockoutTime(u.FailedAttempts)
	u.UpdatedAt = time.Now().UTC()
}

// RecordSuccess resets the failure counter and lockout.
func (u *User) RecordSuccess() {
	u.FailedAttempts = 0
	u.LockedUntil = nil
	u.UpdatedAt = time.Now().UTC()
}

// ValidateUsername validates a username against the length bounds.
// Content rules (markup, control characters) are the sanitizer's job and
// have already been applied by the time a username reaches the domain.
func ValidateUsername(username string) error {
	if username == "" {
		return oops.Code("AUTH_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("AUTH_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	return nil
}

// ValidateEmail checks the email length bounds. Syntax is the transport
// validation layer's responsibility.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("AUTH_INVALID_EMAIL").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("AUTH_INVALID_EMAIL").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	return nil
}

// UserRepository manages user persistence. Implementations must bind all
// values through query parameters; untrusted input never reaches a query
// string by interpolation.
type UserRepository interface {
	// Create stores a new user. A username uniqueness conflict is
	// reported by wrapping ErrDuplicateUser.
	Create(ctx context.Context, user *User) error

	// GetByUsername retrieves a user by username (case-insensitive).
	// Returns ErrNotFound if no such user exists.
	GetByUsername(ctx context.Context, username string) (*User, error)

	// Update updates an existing user's mutable fields (failure counter,
	// lockout, password hash).
	Update(ctx context.Context, user *User) error

	// List returns all users ordered by username.
	List(ctx context.Context) ([]*User, error)
}
