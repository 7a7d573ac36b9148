// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package auth

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Registry is the process-wide owner of the token→session mapping. It is
// in-memory only: a restart invalidates all outstanding sessions.
//
// Thread-safety: a single RWMutex guards the map. Hold times stay short;
// no I/O ever happens under the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // keyed by token
	ttl      time.Duration
}

// NewRegistry creates a session registry. A non-positive ttl falls back
// to DefaultSessionTTL.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// copySession returns a defensive copy so callers cannot mutate
// registry-owned state.
func copySession(s *Session) *Session {
	c := *s
	return &c
}

// Issue mints a fresh token bound to the user's role snapshot and stores
// the session. Token generation happens outside the lock; two concurrent
// issues never collide because each token carries 32 bytes of fresh
// entropy.
func (r *Registry) Issue(userID ulid.ULID, role Role) (*Session, string, error) {
	token, err := GenerateSessionToken()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	session := &Session{
		ID:        ulid.Make(),
		UserID:    userID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}

	r.mu.Lock()
	r.sessions[token] = session
	r.mu.Unlock()

	return copySession(session), token, nil
}

// Resolve looks up the session for a token. Returns ErrNotFound for
// unknown tokens. Expired sessions are removed lazily and reported as
// not found; a token is never observed half-written or half-removed.
func (r *Registry) Resolve(token string) (*Session, error) {
	if token == "" {
		return nil, ErrNotFound
	}

	r.mu.RLock()
	session, ok := r.sessions[token]
	if ok && !session.IsExpiredAt(time.Now()) {
		c := copySession(session)
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	if ok {
		// Expired: upgrade to a write lock and sweep this entry. The
		// re-check handles a racing Revoke or Sweep having won.
		r.mu.Lock()
		if current, still := r.sessions[token]; still && current.IsExpiredAt(time.Now()) {
			delete(r.sessions, token)
		}
		r.mu.Unlock()
	}

	return nil, ErrNotFound
}

// Revoke removes a session. Revoking an absent token is not an error.
func (r *Registry) Revoke(token string) {
	if token == "" {
		return
	}
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// Sweep removes all sessions expired at the given time and returns the
// count removed. The serve loop calls this periodically so abandoned
// tokens do not accumulate between resolves.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for token, session := range r.sessions {
		if session.IsExpiredAt(now) {
			delete(r.sessions, token)
			removed++
		}
	}
	return removed
}

// Active returns the number of stored sessions, expired or not. Used by
// the active-sessions gauge.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
