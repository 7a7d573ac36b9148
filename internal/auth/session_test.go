// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package auth_test

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safevault/safevault/internal/auth"
)

func TestGenerateSessionToken(t *testing.T) {
	t.Run("produces hex token of expected length", func(t *testing.T) {
		token, err := auth.GenerateSessionToken()
		require.NoError(t, err)
		assert.Len(t, token, auth.SessionTokenBytes*2)

		_, err = hex.DecodeString(token)
		assert.NoError(t, err)
	})

	t.Run("tokens are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			token, err := auth.GenerateSessionToken()
			require.NoError(t, err)
			assert.False(t, seen[token], "duplicate token generated")
			seen[token] = true
		}
	})
}

func TestSessionIsExpiredAt(t *testing.T) {
	now := time.Now().UTC()
	session := &auth.Session{
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}

	assert.False(t, session.IsExpiredAt(now))
	assert.False(t, session.IsExpiredAt(now.Add(time.Hour)))
	assert.True(t, session.IsExpiredAt(now.Add(time.Hour+time.Second)))
}
