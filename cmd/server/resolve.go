package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/combine-registry/pkg/engine"
	"github.com/hazyhaar/combine-registry/pkg/match"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var year int
	var region string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve <input>...",
		Short: "Resolve brand and model inputs against the reference data",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := ctx.loadSnapshot(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("load reference data: %w", err)
			}
			eng := ctx.newEngine(cfg, snap, nil)

			var c *match.Context
			if year != 0 || region != "" {
				c = &match.Context{Year: year, Region: region}
			}
			out := cmd.OutOrStdout()
			failed := 0
			for _, in := range args {
				results, err := eng.Normalize(in, c)
				if err != nil {
					failed++
				}
				if asJSON {
					writeResolveJSON(out, in, results, err)
					continue
				}
				writeResolveTable(out, eng, in, results, err)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d inputs could not be resolved", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Manufacturing year hint")
	cmd.Flags().StringVar(&region, "region", "", "Region hint")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON lines")
	return cmd
}

func writeResolveTable(w io.Writer, eng *engine.Engine, input string, results []match.Result, err error) {
	fmt.Fprintf(w, "%s -> %q\n", input, eng.Snapshot().Canon().Canonicalize(input))
	if err != nil {
		fmt.Fprintf(w, "  %v\n", err)
		var merr *match.Error
		if errors.As(err, &merr) {
			for _, h := range merr.Hints {
				fmt.Fprintf(w, "  - %s\n", h)
			}
		}
		fmt.Fprintln(w)
		return
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		confirm := ""
		if r.NeedsConfirmation {
			confirm = "yes"
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			r.ID,
			string(r.Kind),
			strconv.FormatFloat(r.Confidence, 'f', 4, 64),
			strconv.Itoa(r.Distance),
			confirm,
		}
	}
	fmt.Fprintln(w, renderTable(
		[]string{"#", "Canonical ID", "Kind", "Confidence", "Distance", "Confirm"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	fmt.Fprintln(w)
}

type resolveLine struct {
	Input   string         `json:"input"`
	Results []match.Result `json:"results,omitempty"`
	Error   string         `json:"error,omitempty"`
	Hints   []string       `json:"hints,omitempty"`
}

func writeResolveJSON(w io.Writer, input string, results []match.Result, err error) {
	line := resolveLine{Input: input, Results: results}
	if err != nil {
		line.Error = err.Error()
		var merr *match.Error
		if errors.As(err, &merr) {
			line.Hints = merr.Hints
		}
	}
	json.NewEncoder(w).Encode(line)
}
