package match

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/combine-registry/pkg/canon"
	"github.com/hazyhaar/combine-registry/pkg/refdata"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// MinYear is the earliest plausible manufacturing year for a model with no
// known production span.
const MinYear = 1950

// Options configure a Resolver.
type Options struct {
	Thresholds Thresholds
	// Now supplies the current time for year plausibility. Defaults to time.Now.
	Now func() time.Time
}

// Resolver runs the matching pipeline over one reference snapshot. It keeps no
// per-call state and is safe for concurrent use.
type Resolver struct {
	snap *refdata.Snapshot
	th   Thresholds
	now  func() time.Time
}

// NewResolver returns a Resolver over snap.
func NewResolver(snap *refdata.Snapshot, opts Options) *Resolver {
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Resolver{snap: snap, th: opts.Thresholds, now: opts.Now}
}

// Snapshot returns the reference snapshot the resolver reads.
func (r *Resolver) Snapshot() *refdata.Snapshot { return r.snap }

// Resolve canonicalizes raw and resolves it. Results are ordered by
// non-increasing confidence, at most MaxResults of them.
func (r *Resolver) Resolve(raw string, c *Context) ([]Result, error) {
	return r.ResolveKey(raw, r.snap.Canon().Canonicalize(raw), c)
}

// ResolveKey resolves an input already canonicalized to key. raw is only
// carried into errors.
func (r *Resolver) ResolveKey(raw, key string, c *Context) ([]Result, error) {
	if key == "" {
		return nil, invalidInput(raw)
	}
	if res, ok := r.exact(key); ok {
		return []Result{res}, nil
	}
	if res, ok := r.variant(key); ok {
		return []Result{res}, nil
	}
	if res, ok := r.brandAlias(key); ok {
		return []Result{res}, nil
	}
	if results := r.fuzzy(key, c); len(results) > 0 {
		return results, nil
	}
	_, _, brandKnown := r.snap.MatchBrand(key)
	return nil, failed(raw, key, brandKnown)
}

func (r *Resolver) exact(key string) (Result, bool) {
	e, ok := r.snap.Exact(key)
	if !ok {
		return Result{}, false
	}
	return Result{ID: e.ID, Brand: e.Brand, Model: e.Model, Confidence: 1, Kind: KindExact}, true
}

func (r *Resolver) variant(key string) (Result, bool) {
	v, ok := r.snap.Variant(key)
	if !ok {
		return Result{}, false
	}
	v.Hit()
	e := v.Entry
	return Result{
		ID:                e.ID,
		Brand:             e.Brand,
		Model:             e.Model,
		Confidence:        VariantConfidence,
		Kind:              KindVariant,
		NeedsConfirmation: VariantConfidence < r.th.Medium,
	}, true
}

func (r *Resolver) brandAlias(key string) (Result, bool) {
	a, fragment, ok := r.snap.MatchBrand(key)
	if !ok || fragment == "" {
		return Result{}, false
	}
	res := Result{
		Brand:             a.Brand,
		Confidence:        a.Weight,
		Kind:              KindBrandAlias,
		NeedsConfirmation: a.Weight < r.th.Medium,
	}
	if e := r.withinBrand(a.Brand, fragment); e != nil {
		res.ID, res.Model = e.ID, e.Model
	} else {
		res.Model = canon.ID(fragment)
		res.ID = a.Brand + "_" + res.Model
	}
	return res, true
}

// withinBrand finds the brand's model the fragment names: by model key, by
// compact form ("x91100"), by a variant of that brand, then by the same words
// in another order ("8900 lexion").
func (r *Resolver) withinBrand(brand, fragment string) *refdata.Entry {
	entries := r.snap.BrandEntries(brand)
	for _, e := range entries {
		if e.ModelKey == fragment {
			return e
		}
	}
	compact := canon.Compact(fragment)
	for _, e := range entries {
		if canon.Compact(e.ModelKey) == compact {
			return e
		}
	}
	if v, ok := r.snap.Variant(fragment); ok && v.Entry.Brand == brand {
		return v.Entry
	}
	words := sortedWords(fragment)
	for _, e := range entries {
		if slices.Equal(sortedWords(e.ModelKey), words) {
			return e
		}
	}
	return nil
}

type candidate struct {
	entry    *refdata.Entry
	score    float64
	distance int
	clues    int
}

// better orders candidates: score, then clue count, then distance, then load
// order, so equal scores always rank the same way.
func better(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.clues != b.clues {
		return a.clues > b.clues
	}
	if a.distance != b.distance {
		return a.distance < b.distance
	}
	return a.entry.Order() < b.entry.Order()
}

func (r *Resolver) fuzzy(key string, c *Context) []Result {
	inputBrand := ""
	if a, _, ok := r.snap.MatchBrand(key); ok {
		inputBrand = a.Brand
	}
	inputClues := clueTokens(key)
	padded := " " + key + " "

	var cands []candidate
	for _, e := range r.snap.Entries() {
		brandMatch := inputBrand == e.Brand || strings.Contains(padded, " "+e.BrandKey+" ")
		yearOK := r.yearPlausible(e, c)

		var best candidate
		found := false
		for _, s := range compareKeys(e) {
			// Distance is at least the length gap, so similarity never
			// exceeds the length ratio.
			if lengthSimilarity(len(key), len(s)) < r.th.Low {
				continue
			}
			d := fuzzy.LevenshteinDistance(key, s)
			if similarity(d, len(key), len(s)) < r.th.Low {
				continue
			}
			f := Factors{
				Distance:         d,
				LengthSimilarity: lengthSimilarity(len(key), len(s)),
				BrandMatch:       brandMatch,
				YearPlausible:    yearOK,
				Clues:            countClues(inputClues, s),
			}
			cand := candidate{entry: e, score: min(Score(f), fuzzyCeiling), distance: d, clues: f.Clues}
			if !found || better(cand, best) {
				best, found = cand, true
			}
		}
		if found && best.score >= r.th.Low {
			cands = append(cands, best)
		}
	}
	if len(cands) == 0 {
		return nil
	}

	sort.SliceStable(cands, func(i, j int) bool { return better(cands[i], cands[j]) })
	if len(cands) > MaxResults {
		cands = cands[:MaxResults]
	}

	results := make([]Result, len(cands))
	for i, cand := range cands {
		conf := round4(cand.score)
		results[i] = Result{
			ID:                cand.entry.ID,
			Brand:             cand.entry.Brand,
			Model:             cand.entry.Model,
			Confidence:        conf,
			Distance:          cand.distance,
			Kind:              KindFuzzy,
			NeedsConfirmation: conf < r.th.Medium,
		}
	}
	if len(results) > 1 {
		results[0].Alternatives = slices.Clone(results[1:])
	}
	return results
}

// compareKeys lists the strings an entry is compared against: its full key,
// its model-only key and its variant keys.
func compareKeys(e *refdata.Entry) []string {
	out := make([]string, 0, 2+len(e.Variants))
	out = append(out, e.Key, e.ModelKey)
	return append(out, e.Variants...)
}

func (r *Resolver) yearPlausible(e *refdata.Entry, c *Context) bool {
	if c == nil || c.Year == 0 {
		return true
	}
	if plausible, known := e.Years(c.Year); known {
		return plausible
	}
	return c.Year >= MinYear && c.Year <= r.now().Year()+1
}

func sortedWords(s string) []string {
	words := canon.Tokens(s)
	sort.Strings(words)
	return words
}
