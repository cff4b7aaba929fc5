package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thyrotrack/thyrotrack/internal/domain/records"
	"github.com/thyrotrack/thyrotrack/internal/platform/sandbox"
)

var errStoreNotEmpty = errors.New("store already holds records; pass --force to replace them")

func seedCmd() *cobra.Command {
	var (
		months int
		seed   int64
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the store with a synthetic treatment history for demos",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			store, backend, err := openRecords(commandContext(cmd), cfg, logger, nil)
			if err != nil {
				return err
			}
			defer backend.Close()

			seedCfg := sandbox.DefaultSeedConfig()
			seedCfg.Months = months
			seedCfg.Seed = seed
			result, err := seedStore(commandContext(cmd), store, seedCfg, force)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s.\n", result)
			return nil
		},
	}
	cmd.Flags().IntVar(&months, "months", 12, "Months of history to generate")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 picks one from the clock)")
	cmd.Flags().BoolVar(&force, "force", false, "Replace existing records")
	return cmd
}

// seedStore replaces the contents of store with generated history. It
// refuses to overwrite existing records unless force is set.
func seedStore(ctx context.Context, store *records.Store, cfg sandbox.SeedConfig, force bool) (sandbox.SeedResult, error) {
	if !force && !isEmpty(store.Export()) {
		return sandbox.SeedResult{}, errStoreNotEmpty
	}
	if cfg.EndDate.IsZero() {
		end, err := time.Parse(records.DateLayout, store.Today())
		if err != nil {
			return sandbox.SeedResult{}, fmt.Errorf("parse today: %w", err)
		}
		cfg.EndDate = end
	}
	snap, result := sandbox.NewSeeder(cfg).Generate()
	if err := store.Import(ctx, snap); err != nil {
		return sandbox.SeedResult{}, fmt.Errorf("import seed data: %w", err)
	}
	return result, nil
}

func isEmpty(s records.Snapshot) bool {
	return len(s.ThyroidPanels) == 0 && len(s.Vitals) == 0 &&
		len(s.MedicationChanges) == 0 && len(s.MedicationChecks) == 0
}
