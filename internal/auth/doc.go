// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

// Package auth provides authentication primitives for SafeVault.
//
// # Domain Types
//
// User and Session should be created through their constructors:
//   - NewUser - creates a User with validated username, email, and role
//   - the Registry issues Sessions; callers never build one by hand
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types.
//
// # Services
//
// Service coordinates registration and credential verification against a
// UserRepository and a PasswordHasher, and mints session tokens through
// the Registry on successful login. The Registry owns the token→session
// mapping exclusively; all access goes through Issue, Resolve, and Revoke.
package auth
