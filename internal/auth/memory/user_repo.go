// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

// Package memory implements auth repositories in process memory. Used by
// tests and the memory store mode; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"

	"github.com/safevault/safevault/internal/auth"
)

// UserRepository implements auth.UserRepository with an in-memory map.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*auth.User // keyed by lowercased username
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users: make(map[string]*auth.User),
	}
}

// copyUser returns a defensive copy so callers never share map-owned state.
func copyUser(u *auth.User) *auth.User {
	c := *u
	if u.LockedUntil != nil {
		t := *u.LockedUntil
		c.LockedUntil = &t
	}
	return &c
}

// Create stores a new user, enforcing case-insensitive username
// uniqueness the way the real store's unique index does.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	key := strings.ToLower(user.Username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[key]; exists {
		return oops.Code("USER_DUPLICATE").
			With("username", user.Username).
			Wrap(auth.ErrDuplicateUser)
	}
	r.users[key] = copyUser(user)
	return nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[strings.ToLower(username)]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	return copyUser(user), nil
}

// Update replaces a stored user's mutable fields.
func (r *UserRepository) Update(_ context.Context, user *auth.User) error {
	key := strings.ToLower(user.Username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[key]; !ok {
		return oops.Code("USER_NOT_FOUND").
			With("username", user.Username).
			Wrap(auth.ErrNotFound)
	}
	r.users[key] = copyUser(user)
	return nil
}

// List returns all users ordered by username.
func (r *UserRepository) List(_ context.Context) ([]*auth.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*auth.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
	})
	return users, nil
}

// Count returns the number of stored users.
func (r *UserRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
