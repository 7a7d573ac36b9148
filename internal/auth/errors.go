// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package auth

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUser is returned when a username is already taken.
	// Uniqueness is enforced by the store; the service surfaces the
	// conflict as this domain error rather than a storage failure.
	ErrDuplicateUser = errors.New("duplicate user")

	// ErrStoreUnavailable is returned when the persistence layer cannot
	// be reached. Callers decide whether to retry; the service does not.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidCredentials is returned for both unknown usernames and
	// wrong passwords, deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrAccountLocked is returned when login is refused because of too
	// many recent failures, even if the password is correct.
	ErrAccountLocked = errors.New("account temporarily locked")
)
