// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the SafeVault CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "safevault",
		Short: "SafeVault - a hardened registration and login backend",
		Long: `SafeVault is a user registration and login backend with input
sanitization, salted password hashing, and role-based authorization.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())

	return cmd
}
