// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

// Package access provides authorization for SafeVault.
//
// Authorization outcomes are explicit Decision values, not errors: a
// request that fails authorization is ordinary control flow for the
// caller, never a crash. The Gate is a pure lookup-and-compare over the
// session registry; it has no side effects and performs no I/O.
package access

import (
	"github.com/safevault/safevault/internal/auth"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Unauthenticated: token missing, empty, unknown, or expired.
	// A malformed token is treated identically - never a fatal error.
	Unauthenticated Decision = iota

	// Forbidden: the token is valid but its role does not match.
	Forbidden

	// Allowed: the token resolves to exactly the required role.
	Allowed
)

// String returns the decision name for logs and metrics labels.
func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Forbidden:
		return "forbidden"
	default:
		return "unauthenticated"
	}
}

// SessionResolver resolves a token to a session. Satisfied by
// *auth.Registry; the interface keeps the gate testable without one.
type SessionResolver interface {
	Resolve(token string) (*auth.Session, error)
}

// Gate authorizes requests against the session registry.
type Gate struct {
	sessions SessionResolver
	roles    *RoleSet
}

// NewGate creates a Gate over the given resolver, using the default role
// permission set if roles is nil.
func NewGate(sessions SessionResolver, roles *RoleSet) (*Gate, error) {
	if sessions == nil {
		return nil, errNilResolver
	}
	if roles == nil {
		var err error
		roles, err = CompileRoles(DefaultRolePermissions())
		if err != nil {
			return nil, err
		}
	}
	return &Gate{sessions: sessions, roles: roles}, nil
}

// Authorize checks a token against a required role. Role comparison is an
// exact match; there is no role hierarchy.
func (g *Gate) Authorize(token string, required auth.Role) Decision {
	session, err := g.sessions.Resolve(token)
	if err != nil {
		return Unauthenticated
	}
	if session.Role != required {
		return Forbidden
	}
	return Allowed
}

// Decide checks whether the token's role grants a permission for the
// given action on the given resource. Unknown tokens map to
// Unauthenticated; a resolved token whose role lacks the grant maps to
// Forbidden. Deny is the default.
func (g *Gate) Decide(token, action, resource string) Decision {
	session, err := g.sessions.Resolve(token)
	if err != nil {
		return Unauthenticated
	}
	if !g.roles.Grants(session.Role, action, resource) {
		return Forbidden
	}
	return Allowed
}

// Can reports whether the token's role grants a permission pattern for
// the given action on the given resource.
func (g *Gate) Can(token, action, resource string) bool {
	return g.Decide(token, action, resource) == Allowed
}
