// Package engine ties the normalization pipeline together: canonicalize, check
// the result cache, resolve against the active reference snapshot, and record
// corrections.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/combine-registry/pkg/cache"
	"github.com/hazyhaar/combine-registry/pkg/feedback"
	"github.com/hazyhaar/combine-registry/pkg/match"
	"github.com/hazyhaar/combine-registry/pkg/metrics"
	"github.com/hazyhaar/combine-registry/pkg/refdata"
)

// Options configure an Engine.
type Options struct {
	// Cache defaults to a 24h cache with no size bound.
	Cache      *cache.Cache
	Thresholds match.Thresholds
	// Appender receives correction records. Nil discards them.
	Appender feedback.Appender
	Logger   *slog.Logger
	Now      func() time.Time
}

type state struct {
	snap     *refdata.Snapshot
	resolver *match.Resolver
}

// Engine serves normalization requests. Reads never lock; Swap replaces the
// reference snapshot atomically.
type Engine struct {
	state  atomic.Pointer[state]
	cache  *cache.Cache
	sink   *feedback.Sink
	th     match.Thresholds
	logger *slog.Logger
	now    func() time.Time
}

// New returns an Engine serving snap.
func New(snap *refdata.Snapshot, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Thresholds == (match.Thresholds{}) {
		opts.Thresholds = match.DefaultThresholds()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(cache.Options{Now: opts.Now})
	}
	e := &Engine{
		cache:  opts.Cache,
		th:     opts.Thresholds,
		logger: opts.Logger,
		now:    opts.Now,
	}
	e.sink = feedback.NewSink(feedback.Options{
		Canonicalize: e.canonicalize,
		Cache:        opts.Cache,
		Appender:     opts.Appender,
		Logger:       opts.Logger,
		Now:          opts.Now,
	})
	e.install(snap)
	return e
}

func (e *Engine) install(snap *refdata.Snapshot) {
	e.state.Store(&state{
		snap:     snap,
		resolver: match.NewResolver(snap, match.Options{Thresholds: e.th, Now: e.now}),
	})
	metrics.SetReferenceModels(snap.Stats().Models)
}

func (e *Engine) canonicalize(s string) string {
	return e.state.Load().snap.Canon().Canonicalize(s)
}

// Normalize resolves input to ranked candidates. A cache hit returns the
// cached primary result alone. Errors are *match.Error values wrapping
// match.ErrInvalidInput or match.ErrNormalizationFailed.
func (e *Engine) Normalize(input string, c *match.Context) ([]match.Result, error) {
	// Read before the state so a Swap or correction during resolution is seen.
	gen := e.cache.Generation()
	st := e.state.Load()
	key := st.snap.Canon().Canonicalize(input)
	if key == "" {
		metrics.IncFailure("invalid_input")
		return nil, match.InvalidInput(input)
	}

	if r, ok := e.cache.Get(key); ok {
		metrics.IncCache(true)
		e.logger.Debug("normalize cache hit", "key", key, "id", r.ID)
		return []match.Result{r}, nil
	}
	metrics.IncCache(false)

	start := time.Now()
	results, err := st.resolver.ResolveKey(input, key, c)
	metrics.ObserveResolve(time.Since(start))
	if err != nil {
		reason := "normalization_failed"
		if errors.Is(err, match.ErrInvalidInput) {
			reason = "invalid_input"
		}
		metrics.IncFailure(reason)
		e.logger.Debug("normalize failed", "key", key, "error", err)
		return nil, err
	}

	primary := results[0]
	metrics.IncResolution(string(primary.Kind))
	e.logger.Debug("normalize resolved", "key", key, "id", primary.ID,
		"kind", primary.Kind, "confidence", primary.Confidence, "candidates", len(results))

	primary.CachedAt = e.now().UTC()
	// Dropped when a Swap or correction invalidated the cache meanwhile.
	e.cache.PutIfCurrent(key, primary, gen)
	return results, nil
}

// RecordCorrection records that accepted, not rejected, is the right
// identifier for original. The cached answer for original is dropped
// immediately; the record is appended in the background.
func (e *Engine) RecordCorrection(ctx context.Context, original, rejected, accepted, region string) (feedback.Record, error) {
	return e.sink.RecordCorrection(ctx, original, rejected, accepted, region)
}

// Swap installs a new reference snapshot and flushes the result cache.
func (e *Engine) Swap(snap *refdata.Snapshot) {
	e.install(snap)
	e.cache.Flush()
	st := snap.Stats()
	e.logger.Info("reference data swapped", "version", st.Version, "models", st.Models,
		"aliases", st.Aliases, "variants", st.Variants)
}

// Snapshot returns the active reference snapshot.
func (e *Engine) Snapshot() *refdata.Snapshot { return e.state.Load().snap }

// Thresholds returns the confidence thresholds in use.
func (e *Engine) Thresholds() match.Thresholds { return e.th }

// Stats describes the engine's current state.
type Stats struct {
	Reference    refdata.Stats    `json:"reference"`
	Thresholds   match.Thresholds `json:"thresholds"`
	CacheEntries int              `json:"cache_entries"`
	CacheTTL     string           `json:"cache_ttl"`
}

// Stats returns reference table sizes and cache occupancy.
func (e *Engine) Stats() Stats {
	return Stats{
		Reference:    e.Snapshot().Stats(),
		Thresholds:   e.th,
		CacheEntries: e.cache.Len(),
		CacheTTL:     e.cache.TTL().String(),
	}
}

// Wait blocks until pending correction appends have finished.
func (e *Engine) Wait() { e.sink.Wait() }
