package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/combine-registry/pkg/api"
	"github.com/hazyhaar/combine-registry/pkg/chassis"
	"github.com/hazyhaar/combine-registry/pkg/engine"
	"github.com/hazyhaar/combine-registry/pkg/metrics"
	"github.com/hazyhaar/combine-registry/pkg/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: "Serves the REST API over plain HTTP. With tls.enabled the same port serves HTTPS on TCP " +
			"and QUIC on UDP, carrying HTTP/3 and MCP sessions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return runServe(cmd.Context(), ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

func runServe(parent context.Context, cc *commandContext, cfg config) error {
	logger := cc.logger
	if parent == nil {
		parent = context.Background()
	}

	snap, err := cc.loadSnapshot(parent, cfg)
	if err != nil {
		return fmt.Errorf("load reference data: %w", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	eng := cc.newEngine(cfg, snap, st)
	stats := snap.Stats()
	logger.Info("reference data loaded", "source", cfg.Source, "version", stats.Version,
		"models", stats.Models, "aliases", stats.Aliases, "variants", stats.Variants, "typo_rules", stats.TypoRules)

	if cfg.Metrics {
		metrics.Register()
	}
	router := api.NewRouter(eng, api.RouterOptions{Logger: logger, Metrics: cfg.Metrics})
	if cfg.TLS.Enabled {
		return runChassis(parent, cc, cfg, eng, router)
	}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := serveSignals(parent, cc, cfg, eng)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("combine-registry listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	eng.Wait()
	return err
}

// runChassis serves router over HTTPS and QUIC, with MCP sessions on QUIC.
func runChassis(parent context.Context, cc *commandContext, cfg config, eng *engine.Engine, router http.Handler) error {
	srv, err := chassis.New(chassis.Config{
		Addr:      cfg.Addr,
		CertFile:  cfg.TLS.CertFile,
		KeyFile:   cfg.TLS.KeyFile,
		Handler:   router,
		MCPServer: api.NewMCPServer(eng, version, cc.logger),
		Logger:    cc.logger,
	})
	if err != nil {
		return err
	}
	ctx, stop := serveSignals(parent, cc, cfg, eng)
	defer stop()

	serveErr := srv.Serve(ctx)
	cc.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = errors.Join(serveErr, srv.Stop(shutdownCtx))
	eng.Wait()
	return err
}

// serveSignals returns a context canceled on SIGINT or SIGTERM and reloads
// the reference data on SIGHUP until stop is called.
func serveSignals(parent context.Context, cc *commandContext, cfg config, eng *engine.Engine) (context.Context, func()) {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-sighup:
				cc.logger.Info("SIGHUP received, reloading reference data")
				reload(ctx, cc, cfg, eng)
			case <-ctx.Done():
				return
			}
		}
	}()
	return ctx, func() {
		signal.Stop(sighup)
		cancel()
	}
}

// reload rebuilds the snapshot and swaps it in. On failure the current
// snapshot keeps serving.
func reload(ctx context.Context, cc *commandContext, cfg config, eng *engine.Engine) {
	snap, err := cc.loadSnapshot(ctx, cfg)
	if err != nil {
		cc.logger.Error("reload failed", "error", err)
		return
	}
	eng.Swap(snap)
}
