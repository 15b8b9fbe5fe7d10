package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/combine-registry/pkg/cache"
	"github.com/hazyhaar/combine-registry/pkg/engine"
	"github.com/hazyhaar/combine-registry/pkg/feedback"
	"github.com/hazyhaar/combine-registry/pkg/match"
	"github.com/hazyhaar/combine-registry/pkg/refdata"
	"github.com/hazyhaar/combine-registry/pkg/store"
)

const (
	sourceFiles  = "files"
	sourceSQLite = "sqlite"
)

type config struct {
	Addr       string `yaml:"addr"`
	RefdataDir string `yaml:"refdata_dir"`
	// Source selects where reference tables are read from: "files" (the
	// refdata directory) or "sqlite" (tables imported into the database).
	Source     string           `yaml:"source"`
	DBPath     string           `yaml:"db_path"`
	Cache      cacheConfig      `yaml:"cache"`
	Thresholds match.Thresholds `yaml:"thresholds"`
	Log        logConfig        `yaml:"log"`
	Metrics    bool             `yaml:"metrics"`
	// TLS switches serve to HTTPS plus QUIC (HTTP/3 and MCP) on Addr.
	TLS        tlsConfig        `yaml:"tls"`
}

type tlsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type cacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

type logConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaultConfig() config {
	return config{
		Addr:       ":8430",
		RefdataDir: "refdata",
		Source:     sourceFiles,
		DBPath:     "registry.db",
		Cache:      cacheConfig{TTL: cache.DefaultTTL, MaxEntries: 100_000},
		Thresholds: match.DefaultThresholds(),
		Log:        logConfig{Level: "info", Format: "text"},
		Metrics:    true,
	}
}

// loadConfig reads path over the defaults. A missing file is not an error.
func loadConfig(path string) (config, bool, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, false, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, false, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, true, nil
}

func (c config) validate() error {
	if c.Source != sourceFiles && c.Source != sourceSQLite {
		return fmt.Errorf("source must be %q or %q, got %q", sourceFiles, sourceSQLite, c.Source)
	}
	th := c.Thresholds
	if th.Low < 0 || th.Medium > 1 || th.Low > th.Medium {
		return fmt.Errorf("thresholds must satisfy 0 <= low <= medium <= 1, got %v/%v", th.Low, th.Medium)
	}
	if c.Cache.TTL < 0 || c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache ttl and max_entries must not be negative")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("tls cert_file and key_file must be set together")
	}
	return nil
}

func newLogger(w io.Writer, lc logConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     config
	configErr  error
	logger     *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(*c.configFlag)
		cfg, found, err := loadConfig(path)
		c.config, c.configErr = cfg, err
		c.logger = newLogger(os.Stderr, cfg.Log)
		if err == nil && !found {
			c.logger.Info("no config file, using defaults", "path", path)
		}
	})
	return c.config, c.configErr
}

// loadSnapshot reads the reference tables from the configured source.
func (c *commandContext) loadSnapshot(ctx context.Context, cfg config) (*refdata.Snapshot, error) {
	if cfg.Source == sourceSQLite {
		st, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.LoadSnapshot(ctx)
	}
	return refdata.Load(cfg.RefdataDir)
}

// newEngine builds an engine over snap. appender may be nil.
func (c *commandContext) newEngine(cfg config, snap *refdata.Snapshot, appender feedback.Appender) *engine.Engine {
	return engine.New(snap, engine.Options{
		Cache:      cache.New(cache.Options{TTL: cfg.Cache.TTL, MaxEntries: cfg.Cache.MaxEntries}),
		Thresholds: cfg.Thresholds,
		Appender:   appender,
		Logger:     c.logger,
	})
}
