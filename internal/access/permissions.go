// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package access

import (
	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/safevault/safevault/internal/auth"
)

var errNilResolver = oops.Code("ACCESS_NIL_RESOLVER").Errorf("session resolver is required")

// compiledPermission holds a permission pattern and its compiled glob.
type compiledPermission struct {
	pattern string
	glob    glob.Glob
}

// RoleSet maps roles to compiled permission patterns. Immutable after
// construction; it requires no synchronization.
type RoleSet struct {
	roles map[auth.Role][]compiledPermission
}

// DefaultRolePermissions returns the built-in role → permission patterns.
// Patterns are "action:resource" globs with ':' as the separator.
func DefaultRolePermissions() map[auth.Role][]string {
	return map[auth.Role][]string{
		auth.RoleUser: {
			"read:profile",
		},
		auth.RoleAdmin: {
			"read:profile",
			"*:users",
			"read:admin",
		},
	}
}

// CompileRoles compiles role permission patterns into a RoleSet.
// Returns an error if any pattern fails to compile.
func CompileRoles(perms map[auth.Role][]string) (*RoleSet, error) {
	compiled := make(map[auth.Role][]compiledPermission, len(perms))
	for role, patterns := range perms {
		list := make([]compiledPermission, 0, len(patterns))
		for _, p := range patterns {
			g, err := glob.Compile(p, ':')
			if err != nil {
				return nil, oops.In("access").
					Code("INVALID_PERMISSION_PATTERN").
					With("role", string(role)).
					With("pattern", p).
					Wrap(err)
			}
			list = append(list, compiledPermission{pattern: p, glob: g})
		}
		compiled[role] = list
	}
	return &RoleSet{roles: compiled}, nil
}

// Grants reports whether the role has a pattern matching action:resource.
func (rs *RoleSet) Grants(role auth.Role, action, resource string) bool {
	perms, ok := rs.roles[role]
	if !ok {
		return false
	}
	target := action + ":" + resource
	for _, p := range perms {
		if p.glob.Match(target) {
			return true
		}
	}
	return false
}
