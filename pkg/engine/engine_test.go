package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/combine-registry/pkg/cache"
	"github.com/hazyhaar/combine-registry/pkg/feedback"
	"github.com/hazyhaar/combine-registry/pkg/match"
	"github.com/hazyhaar/combine-registry/pkg/refdata"
	"github.com/hazyhaar/combine-registry/pkg/refdata/refdatatest"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	engine *Engine
	cache  *cache.Cache
	app    *feedback.MemoryAppender
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	c := cache.New(cache.Options{TTL: 24 * time.Hour, Now: clk.Now})
	app := &feedback.MemoryAppender{}
	e := New(refdatatest.Snapshot(t), Options{Cache: c, Appender: app, Now: clk.Now})
	return &fixture{engine: e, cache: c, app: app, clock: clk}
}

func TestNormalize_CachesPrimary(t *testing.T) {
	f := newFixture(t)

	first, err := f.engine.Normalize("x9 1100", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first call returned %d results, want 2", len(first))
	}
	if !first[0].CachedAt.IsZero() {
		t.Error("fresh result carries CachedAt")
	}

	second, err := f.engine.Normalize("X9  1100", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("cache hit returned %d results, want 1", len(second))
	}
	if second[0].ID != first[0].ID || second[0].Confidence != first[0].Confidence {
		t.Errorf("cache hit %+v differs from %+v", second[0], first[0])
	}
	if !second[0].CachedAt.Equal(f.clock.Now()) {
		t.Errorf("CachedAt = %v, want %v", second[0].CachedAt, f.clock.Now())
	}
	if len(second[0].Alternatives) != 0 {
		t.Error("cached result kept alternatives")
	}
}

func TestNormalize_TTLExpiry(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Normalize("x9 1100", nil); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	f.clock.Advance(24 * time.Hour)
	got, err := f.engine.Normalize("x9 1100", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(got) != 2 || !got[0].CachedAt.IsZero() {
		t.Errorf("expired entry served from cache: %+v", got)
	}
}

func TestNormalize_Errors(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Normalize("...", nil); !errors.Is(err, match.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	_, err := f.engine.Normalize("zzz99 unknown tractor", nil)
	var merr *match.Error
	if !errors.As(err, &merr) || !errors.Is(err, match.ErrNormalizationFailed) {
		t.Fatalf("err = %v, want *match.Error ErrNormalizationFailed", err)
	}
	if len(merr.Hints) == 0 {
		t.Error("failure carries no hints")
	}
	if f.cache.Len() != 0 {
		t.Error("failure was cached")
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	f := newFixture(t)
	ctx := &match.Context{Year: 2022}
	for _, in := range []string{"lexion 8990", "jd s790", "class 8900 lexion"} {
		f.cache.Flush()
		a, _ := f.engine.Normalize(in, ctx)
		f.cache.Flush()
		b, _ := f.engine.Normalize(in, ctx)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("Normalize(%q) not deterministic: %+v vs %+v", in, a, b)
		}
	}
}

func TestRecordCorrection_InvalidatesCache(t *testing.T) {
	f := newFixture(t)
	// A wrong answer sits in the cache.
	f.cache.Put("x9 1100", match.Result{ID: "john_deere_x9_1000", Kind: match.KindFuzzy, Confidence: 0.69})
	got, err := f.engine.Normalize("x9 1100", nil)
	if err != nil || got[0].ID != "john_deere_x9_1000" {
		t.Fatalf("setup: Normalize = %+v, %v", got, err)
	}

	rec, err := f.engine.RecordCorrection(context.Background(), "x9 1100", "john_deere_x9_1000", "john_deere_x9_1100", "")
	if err != nil {
		t.Fatalf("RecordCorrection: %v", err)
	}
	f.engine.Wait()

	got, err = f.engine.Normalize("x9 1100", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got[0].ID == "john_deere_x9_1000" && !got[0].CachedAt.IsZero() {
		t.Fatal("cached wrong answer served after correction")
	}
	if got[0].ID != "john_deere_x9_1100" {
		t.Errorf("primary = %s, want john_deere_x9_1100", got[0].ID)
	}

	records := f.app.Records()
	if len(records) != 1 || records[0].ID != rec.ID {
		t.Fatalf("appended %+v", records)
	}
	// Corrections never touch the reference tables.
	if f.engine.Snapshot().Stats() != refdatatest.Snapshot(t).Stats() {
		t.Error("correction modified reference data")
	}
}

func TestRecordCorrection_DuringResolve(t *testing.T) {
	f := newFixture(t)

	// Normalize reads the generation before resolving; a correction for the
	// same input lands before its result is stored.
	gen := f.cache.Generation()
	if _, err := f.engine.RecordCorrection(context.Background(), "x9 1100", "", "john_deere_x9_1100", ""); err != nil {
		t.Fatalf("RecordCorrection: %v", err)
	}
	f.engine.Wait()
	if f.cache.PutIfCurrent("x9 1100", match.Result{ID: "john_deere_x9_1000"}, gen) {
		t.Fatal("result resolved before the correction was cached")
	}

	// Later calls cache again.
	if _, err := f.engine.Normalize("x9 1100", nil); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	got, err := f.engine.Normalize("x9 1100", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got[0].CachedAt.IsZero() {
		t.Error("second Normalize after a correction was not served from cache")
	}
}

func TestSwap(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.Normalize("x9 1100", nil); err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	tables := refdatatest.Tables()
	tables.Version = "v2"
	tables.Models = append(tables.Models, refdata.Model{Brand: "john_deere", Model: "x9_1100", FirstYear: 2021})
	tables.Variants = append(tables.Variants, refdata.ModelVariant{Variant: "x9 1100", Brand: "john_deere", Model: "x9_1100", Weight: 1})
	snap, err := refdata.Build(tables)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	f.engine.Swap(snap)

	if f.cache.Len() != 0 {
		t.Errorf("cache not flushed on swap, Len = %d", f.cache.Len())
	}
	got, err := f.engine.Normalize("x9 1100", nil)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got[0].Kind != match.KindVariant {
		t.Errorf("kind after swap = %s, want variant", got[0].Kind)
	}
	if st := f.engine.Stats(); st.Reference.Version != "v2" {
		t.Errorf("Stats version = %q, want v2", st.Reference.Version)
	}
}

func TestConcurrentNormalizeAndSwap(t *testing.T) {
	f := newFixture(t)
	snap := refdatatest.Snapshot(t)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := f.engine.Normalize("jd s790", nil); err != nil {
					t.Errorf("Normalize: %v", err)
					return
				}
			}
		}()
	}
	for j := 0; j < 10; j++ {
		f.engine.Swap(snap)
	}
	wg.Wait()
}
