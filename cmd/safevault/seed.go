// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/safevault/safevault/internal/auth"
	"github.com/safevault/safevault/internal/auth/postgres"
	"github.com/safevault/safevault/internal/config"
	"github.com/safevault/safevault/internal/sanitize"
	"github.com/safevault/safevault/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// seedFile is the YAML shape of a seed users file.
type seedFile struct {
	Users []seedUser `yaml:"users"`
}

type seedUser struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed initial user accounts from a YAML file",
		Long: `Creates the accounts listed in the seed file, typically an initial
admin. This command is idempotent - existing usernames are skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.file, "file", "", "path to the seed users YAML file (required)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string, seedCfg *seedConfig) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required (set DATABASE_URL)")
	}

	data, err := os.ReadFile(seedCfg.file)
	if err != nil {
		return oops.Code("SEED_FAILED").
			With("operation", "read seed file").
			With("path", seedCfg.file).
			Wrap(err)
	}

	var seeds seedFile
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return oops.Code("SEED_FAILED").
			With("operation", "parse seed file").
			With("path", seedCfg.file).
			Wrap(err)
	}
	if len(seeds.Users) == 0 {
		return oops.Code("SEED_FAILED").
			With("path", seedCfg.file).
			Errorf("seed file contains no users")
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), seedCfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	cmd.Println("Running migrations...")
	if err := migrateUp(cfg.DatabaseURL); err != nil {
		return err
	}

	users := postgres.NewUserRepository(pool)
	registry := auth.NewRegistry(cfg.SessionTTL)
	svc, err := auth.NewService(users, registry, auth.NewArgon2idHasher(), slog.Default())
	if err != nil {
		return err
	}

	created, skipped := 0, 0
	for _, seed := range seeds.Users {
		username := sanitize.Text(seed.Username, auth.MaxUsernameLength)
		email := sanitize.Email(seed.Email)

		_, err := svc.Register(ctx, username, email, seed.Password, auth.Role(seed.Role))
		if err != nil {
			if errors.Is(err, auth.ErrDuplicateUser) {
				cmd.Printf("User %q already exists, skipping\n", username)
				skipped++
				continue
			}
			return oops.Code("SEED_FAILED").
				With("operation", "create seed user").
				With("username", username).
				Wrap(err)
		}
		cmd.Printf("Created user %q\n", username)
		created++
	}

	cmd.Printf("Seeding complete: %d created, %d skipped\n", created, skipped)
	return nil
}
