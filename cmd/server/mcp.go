package main

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/combine-registry/pkg/api"
	"github.com/hazyhaar/combine-registry/pkg/store"
)

func newMCPCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the registry tools over MCP on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			snap, err := ctx.loadSnapshot(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("load reference data: %w", err)
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			eng := ctx.newEngine(cfg, snap, st)
			defer eng.Wait()
			srv := api.NewMCPServer(eng, version, ctx.logger)
			return server.ServeStdio(srv)
		},
	}
}
