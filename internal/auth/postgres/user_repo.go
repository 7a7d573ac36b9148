// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

// Package postgres implements auth repositories backed by PostgreSQL.
//
// Every statement binds untrusted values through query parameters.
// Interpolating input into SQL text is never acceptable here, no matter
// how sanitized the value looks.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/safevault/safevault/internal/auth"
)

// poolIface is the subset of pgxpool.Pool the repository needs. Declared
// here so tests can substitute a pgxmock pool.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user. A unique violation on the username index is
// reported as auth.ErrDuplicateUser.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, email, password_hash, role,
			failed_attempts, locked_until, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID.String(),
		user.Username,
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.FailedAttempts,
		user.LockedUntil,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_DUPLICATE").
				With("username", user.Username).
				Wrap(auth.ErrDuplicateUser)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, role,
		       failed_attempts, locked_until, created_at, updated_at
		FROM users
		WHERE LOWER(username) = LOWER($1)
	`, username)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// Update updates a user's mutable fields.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET email = $2, password_hash = $3, role = $4,
		    failed_attempts = $5, locked_until = $6, updated_at = $7
		WHERE id = $1
	`,
		user.ID.String(),
		user.Email,
		user.PasswordHash,
		string(user.Role),
		user.FailedAttempts,
		user.LockedUntil,
		user.UpdatedAt,
	)
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("user_id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// List returns all users ordered by username.
func (r *UserRepository) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, username, email, password_hash, role,
		       failed_attempts, locked_until, created_at, updated_at
		FROM users
		ORDER BY LOWER(username)
	`)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "list users").
			Wrap(err)
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		user, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, oops.Code("USER_LIST_FAILED").
				With("operation", "scan user row").
				Wrap(scanErr)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "iterate user rows").
			Wrap(err)
	}
	return users, nil
}

// CountByUsername returns the number of rows matching the exact username.
// Used by tests to prove the table survives hostile input and remains
// queryable.
func (r *UserRepository) CountByUsername(ctx context.Context, username string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM users WHERE username = $1`,
		username).Scan(&count)
	if err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").
			With("operation", "count users by username").
			Wrap(err)
	}
	return count, nil
}

// scanUser scans a user row into the domain type.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		u       auth.User
		idStr   string
		roleStr string
	)
	if err := row.Scan(
		&idStr,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&roleStr,
		&u.FailedAttempts,
		&u.LockedUntil,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").
			With("id", idStr).
			Wrap(err)
	}
	u.ID = id
	u.Role = auth.Role(roleStr)
	return &u, nil
}
