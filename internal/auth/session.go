// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	// SessionTokenBytes of entropy per token; 32 bytes = 64 hex chars,
	// far beyond guessable. Tokens are sparse identifiers, never
	// sequential.
	SessionTokenBytes = 32

	// DefaultSessionTTL is the session lifetime when the registry is not
	// configured otherwise.
	DefaultSessionTTL = 24 * time.Hour
)

// Session binds an opaque token to a role snapshot taken at login time.
// The role is not re-checked against the user store on every request; a
// role change takes effect at the next login.
type Session struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	Role      Role
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpiredAt returns true if the session would be expired at the given
// time. Taking the clock as a parameter keeps expiry deterministic in tests.
func (s *Session) IsExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// GenerateSessionToken creates a token from a cryptographically secure
// random source. Returns the hex-encoded token.
func GenerateSessionToken() (string, error) {
	buf := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(buf), nil
}
