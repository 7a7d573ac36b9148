// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package auth

import (
	"time"
)

// Lockout policy.
const (
	// LockoutDuration is the time a user is locked out after too many failures.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of failures that triggers a lockout.
	LockoutThreshold = 7
)

// IsLockedOut returns true if the lockout time is in the future.
func IsLockedOut(lockedUntil *time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(time.Now())
}

// ComputeLockoutTime returns the lockout timestamp for the given failure count.
// Returns nil if failures < LockoutThreshold.
func ComputeLockoutTime(failures int) *time.Time {
	if failures < LockoutThreshold {
		return nil
	}
	lockout := time.Now().Add(LockoutDuration)
	return &lockout
}
