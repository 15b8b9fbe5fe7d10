// Package feedback records user corrections of resolved identifiers. Records
// are handed to an external append target; reference tables are never
// modified here.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/combine-registry/pkg/canon"
	"github.com/hazyhaar/combine-registry/pkg/match"
	"github.com/hazyhaar/combine-registry/pkg/metrics"
)

// Record is one correction: what the user typed, what was suggested and what
// they confirmed instead.
type Record struct {
	ID             string    `json:"id"`
	OriginalInput  string    `json:"original_input"`
	CanonicalInput string    `json:"canonical_input"`
	Rejected       string    `json:"rejected_canonical,omitempty"`
	Accepted       string    `json:"accepted_canonical"`
	Region         string    `json:"region,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Appender is the downstream persistence target for records.
type Appender interface {
	AppendCorrection(ctx context.Context, r Record) error
}

// Invalidator drops cached results for a canonical input.
type Invalidator interface {
	Invalidate(key string)
}

// Options configure a Sink.
type Options struct {
	// Canonicalize maps raw input to its cache key. Defaults to the fixed
	// canonicalization steps without typo rules.
	Canonicalize func(string) string
	Cache        Invalidator
	Appender     Appender
	Logger       *slog.Logger
	Now          func() time.Time
}

// Sink validates corrections, invalidates the cached answer and appends the
// record in the background.
type Sink struct {
	canonicalize func(string) string
	cache        Invalidator
	appender     Appender
	logger       *slog.Logger
	now          func() time.Time
	wg           sync.WaitGroup
}

// NewSink returns a Sink. A nil Appender discards records.
func NewSink(opts Options) *Sink {
	if opts.Canonicalize == nil {
		opts.Canonicalize = canon.MustCompile(nil).Canonicalize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Sink{
		canonicalize: opts.Canonicalize,
		cache:        opts.Cache,
		appender:     opts.Appender,
		logger:       opts.Logger,
		now:          opts.Now,
	}
}

// RecordCorrection validates a correction, invalidates the cache entry of the
// canonical original input and queues the record for append. Append failures
// are logged and counted, never returned.
func (s *Sink) RecordCorrection(ctx context.Context, original, rejected, accepted, region string) (Record, error) {
	key := s.canonicalize(original)
	if key == "" {
		return Record{}, match.InvalidInput(original)
	}
	acceptedID := canon.ID(s.canonicalize(accepted))
	if acceptedID == "" {
		return Record{}, fmt.Errorf("%w: accepted identifier is empty", match.ErrInvalidInput)
	}

	r := Record{
		ID:             uuid.NewString(),
		OriginalInput:  original,
		CanonicalInput: key,
		Rejected:       canon.ID(s.canonicalize(rejected)),
		Accepted:       acceptedID,
		Region:         region,
		CreatedAt:      s.now().UTC(),
	}

	if s.cache != nil {
		s.cache.Invalidate(key)
	}

	if s.appender == nil {
		metrics.IncCorrection("discarded")
		return r, nil
	}
	s.wg.Add(1)
	go s.append(context.WithoutCancel(ctx), r)
	return r, nil
}

func (s *Sink) append(ctx context.Context, r Record) {
	defer s.wg.Done()
	if err := s.appender.AppendCorrection(ctx, r); err != nil {
		metrics.IncCorrection("failed")
		s.logger.Warn("correction append failed", "id", r.ID, "input", r.CanonicalInput, "error", err)
		return
	}
	metrics.IncCorrection("appended")
	s.logger.Debug("correction recorded", "id", r.ID, "input", r.CanonicalInput, "accepted", r.Accepted)
}

// Wait blocks until every queued append has finished.
func (s *Sink) Wait() { s.wg.Wait() }

// MemoryAppender keeps records in memory.
type MemoryAppender struct {
	mu      sync.Mutex
	records []Record
	// Err, when set, is returned by every append.
	Err error
}

func (m *MemoryAppender) AppendCorrection(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.records = append(m.records, r)
	return nil
}

// Records returns a copy of the appended records in append order.
func (m *MemoryAppender) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}
