// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/safevault/safevault/internal/access"
	"github.com/safevault/safevault/internal/auth"
	"github.com/safevault/safevault/internal/auth/memory"
	"github.com/safevault/safevault/internal/auth/postgres"
	"github.com/safevault/safevault/internal/config"
	"github.com/safevault/safevault/internal/httpapi"
	"github.com/safevault/safevault/internal/logging"
	"github.com/safevault/safevault/internal/observability"
	"github.com/safevault/safevault/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readinessTimeout  = 2 * time.Second
	readHeaderTimeout = 10 * time.Second
	sweepInterval     = 10 * time.Minute
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the SafeVault HTTP server",
		Long: `Start the HTTP server exposing registration, login, logout, and
the admin endpoints, plus a separate observability server for metrics
and health probes.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen-addr", ":8080", "API listen address")
	cmd.Flags().String("observability-addr", "127.0.0.1:9100", "metrics/health HTTP address")
	cmd.Flags().String("database-url", "", "PostgreSQL connection string (or set DATABASE_URL)")
	cmd.Flags().String("store", config.StorePostgres, "user store backend (postgres or memory)")
	cmd.Flags().Duration("session-ttl", auth.DefaultSessionTTL, "session token lifetime")
	cmd.Flags().String("log-format", "json", "log format (json or text)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("safevault", version, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting safevault",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store,
		"session_ttl", cfg.SessionTTL.String(),
	)

	var (
		users auth.UserRepository
		pool  *pgxpool.Pool
	)
	switch cfg.Store {
	case config.StoreMemory:
		users = memory.NewUserRepository()
	default:
		pool, err = store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := migrateUp(cfg.DatabaseURL); err != nil {
			return err
		}
		users = postgres.NewUserRepository(pool)
	}

	registry := auth.NewRegistry(cfg.SessionTTL)
	hasher := auth.NewArgon2idHasher()

	svc, err := auth.NewService(users, registry, hasher, slog.Default())
	if err != nil {
		return err
	}
	gate, err := access.NewGate(registry, nil)
	if err != nil {
		return err
	}

	ready := func() bool {
		if pool == nil {
			return true
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	}
	obs := observability.NewServer(cfg.ObservabilityAddr, ready, func() float64 {
		return float64(registry.Active())
	})
	obsErrCh, err := obs.Start()
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if stopErr := obs.Stop(stopCtx); stopErr != nil {
			slog.Error("observability server shutdown failed", "error", stopErr)
		}
	}()

	handler := httpapi.NewHandler(svc, users, gate, obs.Metrics(), slog.Default())
	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           httpapi.NewRouter(handler),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Expired sessions are removed lazily on resolve; the sweep keeps
	// abandoned tokens from accumulating between resolves.
	go sweepLoop(ctx, registry)

	apiErrCh := make(chan error, 1)
	go func() {
		if serveErr := apiServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrCh <- serveErr
		}
	}()

	slog.Info("api server started", "addr", cfg.ListenAddr)

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case serveErr := <-apiErrCh:
		return oops.Code("SERVER_FAILED").With("addr", cfg.ListenAddr).Wrap(serveErr)
	case obsErr := <-obsErrCh:
		if obsErr != nil {
			return oops.Code("SERVER_FAILED").With("addr", cfg.ObservabilityAddr).Wrap(obsErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		return oops.Code("SHUTDOWN_FAILED").Wrap(err)
	}

	slog.Info("api server stopped")
	return nil
}

// migrateUp applies pending migrations before the server starts taking
// requests. The migrator holds its own connection, released on Close.
func migrateUp(databaseURL string) error {
	migrator, err := store.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("migrator close failed", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return err
	}
	slog.Info("migrations applied")
	return nil
}

func sweepLoop(ctx context.Context, registry *auth.Registry) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := registry.Sweep(now); removed > 0 {
				slog.Debug("swept expired sessions", "removed", removed)
			}
		}
	}
}
