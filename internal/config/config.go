// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SafeVault Contributors

// Package config loads runtime configuration from defaults, an optional
// YAML file, the DATABASE_URL environment variable, and command-line
// flags, in that order of increasing precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Store kinds.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all runtime settings.
type Config struct {
	ListenAddr        string        `koanf:"listen_addr"`
	ObservabilityAddr string        `koanf:"observability_addr"`
	DatabaseURL       string        `koanf:"database_url"`
	Store             string        `koanf:"store"`
	SessionTTL        time.Duration `koanf:"session_ttl"`
	LogFormat         string        `koanf:"log_format"`
}

// defaults returns the baseline configuration.
func defaults() *Config {
	return &Config{
		ListenAddr:        ":8080",
		ObservabilityAddr: "127.0.0.1:9100",
		Store:             StorePostgres,
		SessionTTL:        24 * time.Hour,
		LogFormat:         "json",
	}
}

// Load builds the configuration. path may be empty (no file); flags may
// be nil (no flag overrides).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	cfg := defaults()

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_FAILED").
				With("path", path).
				Wrap(err)
		}
	}

	if flags != nil {
		// Flag names use dashes; config keys use underscores.
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "_"), value
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	// DATABASE_URL from the environment wins over the file but not over
	// an explicit flag.
	if cfg.DatabaseURL == "" || !flagChanged(flags, "database-url") {
		if env := os.Getenv("DATABASE_URL"); env != "" {
			cfg.DatabaseURL = env
		}
	}

	return cfg, cfg.validate()
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	f := flags.Lookup(name)
	return f != nil && f.Changed
}

func (c *Config) validate() error {
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return oops.Code("CONFIG_INVALID").
			With("store", c.Store).
			Errorf("store must be %q or %q", StorePostgres, StoreMemory)
	}
	if c.Store == StorePostgres && c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("database_url is required for the postgres store (set DATABASE_URL)")
	}
	if c.SessionTTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			With("session_ttl", c.SessionTTL.String()).
			Errorf("session_ttl must be positive")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", c.LogFormat).
			Errorf("log_format must be json or text")
	}
	return nil
}
