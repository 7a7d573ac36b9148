// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// Service provides registration and credential verification.
type Service struct {
	users    UserRepository
	registry *Registry
	hasher   PasswordHasher
	logger   *slog.Logger
}

// NewService creates a Service. All dependencies are required.
func NewService(users UserRepository, registry *Registry, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("users repository is required")
	}
	if registry == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("session registry is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		registry: registry,
		hasher:   hasher,
		logger:   logger,
	}, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing
// attacks: verification still runs so a lookup miss costs the same
// argon2id work as a mismatch.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a user with the given credentials. The username and
// email are expected to be sanitized upstream; the password is hashed
// here and the plaintext discarded. Exactly one record is created on
// success and none on failure.
func (s *Service) Register(ctx context.Context, username, email, password string, role Role) (*User, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(username, email, hash, role)
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateUser) {
			return nil, oops.Code("AUTH_DUPLICATE_USER").
				With("username", username).
				Wrap(ErrDuplicateUser)
		}
		return nil, oops.Code("AUTH_STORE_UNAVAILABLE").
			With("operation", "create user").
			Wrap(errors.Join(ErrStoreUnavailable, err))
	}

	s.logger.InfoContext(ctx, "user registered",
		"user_id", user.ID.String(),
		"role", string(user.Role),
	)
	return user, nil
}

// Authenticate verifies a username/password pair. It returns false for
// unknown usernames, absent or empty stored hashes, and wrong passwords
// alike, so callers cannot enumerate usernames. The error return is
// reserved for store failures.
func (s *Service) Authenticate(ctx context.Context, username, password string) (bool, error) {
	user, targetHash, err := s.lookupForVerify(ctx, username)
	if err != nil {
		return false, err
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		// Malformed stored hash (or the dummy): plain mismatch, never a crash.
		return false, nil
	}
	return user != nil && valid, nil
}

// Login verifies credentials and, on success, mints a session token bound
// to the user's role. Lockout is checked after password verification to
// keep the timing of the two failure paths aligned.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, string, error) {
	user, targetHash, err := s.lookupForVerify(ctx, username)
	if err != nil {
		return nil, "", err
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		valid = false
	}

	if user == nil || !valid {
		if user != nil {
			user.RecordFailure()
			// Best effort; the failed login stands regardless.
			if updateErr := s.users.Update(ctx, user); updateErr != nil {
				s.logger.WarnContext(ctx, "failed to record login failure",
					"user_id", user.ID.String(),
					"error", updateErr,
				)
			}
		}
		return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	if user.IsLocked() {
		return nil, "", oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", user.LockedUntil).
			Wrap(ErrAccountLocked)
	}

	user.RecordSuccess()
	if updateErr := s.users.Update(ctx, user); updateErr != nil {
		s.logger.WarnContext(ctx, "failed to reset failure counter",
			"user_id", user.ID.String(),
			"error", updateErr,
		)
	}

	session, token, err := s.registry.Issue(user.ID, user.Role)
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session token").
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "login succeeded",
		"user_id", user.ID.String(),
		"session_id", session.ID.String(),
	)
	return session, token, nil
}

// Logout revokes the session for a token. Unknown tokens are ignored.
func (s *Service) Logout(token string) {
	s.registry.Revoke(token)
}

// lookupForVerify fetches the user and picks the hash to verify against:
// the stored one, or the dummy when the user is unknown or has no hash,
// so every path performs one argon2id verification.
func (s *Service) lookupForVerify(ctx context.Context, username string) (*User, string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, dummyPasswordHash, nil
		}
		return nil, "", oops.Code("AUTH_STORE_UNAVAILABLE").
			With("operation", "get user by username").
			Wrap(errors.Join(ErrStoreUnavailable, err))
	}
	if user.PasswordHash == "" {
		return nil, dummyPasswordHash, nil
	}
	return user, user.PasswordHash, nil
}
