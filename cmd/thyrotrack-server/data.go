package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/thyrotrack/thyrotrack/internal/domain/records"
)

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every collection as one JSON document",
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

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer f.Close()
				w = f
			}
			if err := writeSnapshot(w, store); err != nil {
				return err
			}
			if out != "" && out != "-" {
				logger.Info().Str("file", out).Msg("export written")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Output file (default stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace every collection with the contents of an export",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				return fmt.Errorf("--in is required")
			}
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

			var r io.Reader = cmd.InOrStdin()
			if in != "-" {
				f, err := os.Open(in)
				if err != nil {
					return fmt.Errorf("open %s: %w", in, err)
				}
				defer f.Close()
				r = f
			}
			snap, err := readSnapshot(commandContext(cmd), r, store)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d thyroid panel(s), %d vital(s), %d medication change(s), %d medication check(s).\n",
				len(snap.ThyroidPanels), len(snap.Vitals), len(snap.MedicationChanges), len(snap.MedicationChecks))
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Export file to read (\"-\" for stdin)")
	return cmd
}

func writeSnapshot(w io.Writer, store *records.Store) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(store.Export()); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

func readSnapshot(ctx context.Context, r io.Reader, store *records.Store) (records.Snapshot, error) {
	snap, err := records.DecodeSnapshot(r)
	if err != nil {
		return records.Snapshot{}, err
	}
	if err := store.Import(ctx, snap); err != nil {
		return records.Snapshot{}, fmt.Errorf("import: %w", err)
	}
	return store.Export(), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
