// CLAUDE:SUMMARY snapshot command: compile the reference CSV tables into tables.gob.
package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/combine-registry/pkg/refdata"
)

func newSnapshotCommand(ctx *commandContext) *cobra.Command {
	var dir, out string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Compile the CSV reference tables into tables.gob",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.RefdataDir
			}
			if out == "" {
				out = filepath.Join(dir, refdata.GobFile)
			}

			tables, _, err := refdata.LoadCSV(dir)
			if err != nil {
				return err
			}
			if _, err := refdata.Build(tables); err != nil {
				return fmt.Errorf("validate %s: %w", dir, err)
			}
			if err := refdata.SaveGob(tables, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Reference data directory (defaults to refdata_dir)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Output file (defaults to <dir>/tables.gob)")
	return cmd
}
