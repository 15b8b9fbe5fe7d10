// CLAUDE:SUMMARY import command: validate a reference CSV directory and replace the reference tables in SQLite.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/combine-registry/pkg/refdata"
	"github.com/hazyhaar/combine-registry/pkg/store"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var from, dbPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a reference data directory into the SQLite database",
		Long: "Reads manifest.yaml and the CSV tables of a reference data directory, validates them " +
			"and replaces the reference tables stored in the database. Corrections are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if from == "" {
				from = cfg.RefdataDir
			}
			if dbPath == "" {
				dbPath = cfg.DBPath
			}

			tables, m, err := refdata.LoadCSV(from)
			if err != nil {
				return err
			}
			snap, err := refdata.Build(tables)
			if err != nil {
				return fmt.Errorf("validate %s: %w", from, err)
			}

			st, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.ImportTables(cmd.Context(), tables); err != nil {
				return err
			}

			stats := snap.Stats()
			ctx.logger.Info("reference data imported", "id", m.ID, "version", stats.Version, "db", dbPath,
				"models", stats.Models, "aliases", stats.Aliases, "variants", stats.Variants, "typo_rules", stats.TypoRules)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s (%s): %d models, %d aliases, %d variants, %d typo rules\n",
				m.ID, stats.Version, stats.Models, stats.Aliases, stats.Variants, stats.TypoRules)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Reference data directory (defaults to refdata_dir)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to db_path)")
	return cmd
}
