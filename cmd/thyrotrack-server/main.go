package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/thyrotrack/thyrotrack/internal/config"
	"github.com/thyrotrack/thyrotrack/internal/domain/records"
	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
	"github.com/thyrotrack/thyrotrack/internal/platform/storage"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "thyrotrack-server",
		Short:         "Thyroid health tracker API and chat relay",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(seedCmd())
	return rootCmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loadConfig loads and validates configuration for every subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openRecords opens the configured storage driver and the record store on
// top of it. Callers close the returned kv.Store.
func openRecords(ctx context.Context, cfg *config.Config, logger zerolog.Logger, obs records.Observer) (*records.Store, kv.Store, error) {
	backend, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := records.Open(ctx, backend, logger, records.Options{
		OnCorrupt: records.CorruptPolicy(cfg.StorageOnCorrupt),
		Observer:  obs,
	})
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return store, backend, nil
}
