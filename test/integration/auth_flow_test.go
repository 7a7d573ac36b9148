// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/safevault/safevault/internal/access"
	"github.com/safevault/safevault/internal/auth"
	"github.com/safevault/safevault/internal/auth/postgres"
	"github.com/safevault/safevault/internal/store"
)

// testEnv holds the resources shared by the auth flow specs.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	repo      *postgres.UserRepository
	registry  *auth.Registry
	service   *auth.Service
	gate      *access.Gate
}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	env := &testEnv{ctx: ctx, cancel: cancel}

	container, err := pgcontainer.Run(ctx,
		"postgres:18-alpine",
		pgcontainer.WithDatabase("safevault_test"),
		pgcontainer.WithUsername("safevault"),
		pgcontainer.WithPassword("safevault"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}
	_ = migrator.Close()

	pool, err := store.Connect(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}

	env.repo = postgres.NewUserRepository(pool)
	env.registry = auth.NewRegistry(time.Hour)
	env.service, err = auth.NewService(env.repo, env.registry, auth.NewArgon2idHasher(), nil)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}
	env.gate, err = access.NewGate(env.registry, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}

	return env, nil
}

func (env *testEnv) teardown() {
	if env.container != nil {
		_ = env.container.Terminate(env.ctx)
	}
	env.cancel()
}

var _ = Describe("Auth flow", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		env.teardown()
	})

	It("registers a regular user and an admin", func() {
		alice, err := env.service.Register(env.ctx, "alice", "alice@example.com", "Password123!", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(alice.Role).To(Equal(auth.RoleUser))

		bob, err := env.service.Register(env.ctx, "bob", "bob@example.com", "Hunter2hunter2!", auth.RoleAdmin)
		Expect(err).NotTo(HaveOccurred())
		Expect(bob.Role).To(Equal(auth.RoleAdmin))
	})

	It("rejects a duplicate username", func() {
		_, err := env.service.Register(env.ctx, "alice", "other@example.com", "Password456!", "")
		Expect(err).To(MatchError(auth.ErrDuplicateUser))
	})

	It("rejects a duplicate username differing only in case", func() {
		_, err := env.service.Register(env.ctx, "ALICE", "upper@example.com", "Password456!", "")
		Expect(err).To(MatchError(auth.ErrDuplicateUser))
	})

	It("stores a hostile username as inert data", func() {
		const hostile = "a'); DROP TABLE Users; --"

		_, err := env.service.Register(env.ctx, hostile, "hostile@example.com", "Password123!", "")
		Expect(err).NotTo(HaveOccurred())

		count, err := env.repo.CountByUsername(env.ctx, hostile)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))

		// The users table survived and is still queryable.
		stored, err := env.repo.GetByUsername(env.ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Username).To(Equal("alice"))
	})

	It("authenticates valid credentials and rejects invalid ones", func() {
		ok, err := env.service.Authenticate(env.ctx, "alice", "Password123!")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())

		ok, err = env.service.Authenticate(env.ctx, "alice", "WrongPassword!")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())

		ok, err = env.service.Authenticate(env.ctx, "nobody", "Password123!")
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})

	It("authorizes by role snapshot", func() {
		_, aliceToken, err := env.service.Login(env.ctx, "alice", "Password123!")
		Expect(err).NotTo(HaveOccurred())
		_, bobToken, err := env.service.Login(env.ctx, "bob", "Hunter2hunter2!")
		Expect(err).NotTo(HaveOccurred())

		Expect(env.gate.Authorize("", auth.RoleAdmin)).To(Equal(access.Unauthenticated))
		Expect(env.gate.Authorize("bogus-token", auth.RoleAdmin)).To(Equal(access.Unauthenticated))
		Expect(env.gate.Authorize(aliceToken, auth.RoleAdmin)).To(Equal(access.Forbidden))
		Expect(env.gate.Authorize(bobToken, auth.RoleAdmin)).To(Equal(access.Allowed))

		Expect(env.gate.Can(bobToken, "list", "users")).To(BeTrue())
		Expect(env.gate.Can(aliceToken, "list", "users")).To(BeFalse())
	})

	It("revokes a session on logout", func() {
		_, token, err := env.service.Login(env.ctx, "alice", "Password123!")
		Expect(err).NotTo(HaveOccurred())
		Expect(env.gate.Authorize(token, auth.RoleUser)).To(Equal(access.Allowed))

		env.service.Logout(token)
		Expect(env.gate.Authorize(token, auth.RoleUser)).To(Equal(access.Unauthenticated))
	})

	It("locks an account after repeated failures", func() {
		_, err := env.service.Register(env.ctx, "carol", "carol@example.com", "Password123!", "")
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < auth.LockoutThreshold; i++ {
			_, _, loginErr := env.service.Login(env.ctx, "carol", "WrongPassword!")
			Expect(loginErr).To(MatchError(auth.ErrInvalidCredentials))
		}

		_, _, err = env.service.Login(env.ctx, "carol", "Password123!")
		Expect(err).To(MatchError(auth.ErrAccountLocked))
	})
})
