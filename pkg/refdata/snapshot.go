package refdata

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/hazyhaar/combine-registry/pkg/canon"
)

// maxAliasWords bounds multi-word brand aliases ("john deere", "case ih").
const maxAliasWords = 3

// Entry is one member of the matchable universe.
type Entry struct {
	ID        string // john_deere_x9_1100
	Brand     string // john_deere
	Model     string // x9_1100
	Key       string // john deere x9 1100
	BrandKey  string // john deere
	ModelKey  string // x9 1100
	FirstYear int
	LastYear  int
	// Variants lists the canonical keys of the variants resolving here.
	Variants []string
	order    int
}

// Order is the entry's position in load order, used to break ties.
func (e *Entry) Order() int { return e.order }

// Years reports whether year falls within the known production span.
// known is false when the entry carries no span.
func (e *Entry) Years(year int) (plausible, known bool) {
	if e.FirstYear == 0 && e.LastYear == 0 {
		return true, false
	}
	if e.FirstYear != 0 && year < e.FirstYear-1 {
		return false, true
	}
	if e.LastYear != 0 && year > e.LastYear+1 {
		return false, true
	}
	return true, true
}

// Variant is an indexed ModelVariant.
type Variant struct {
	Key    string
	Weight float64
	Entry  *Entry
	uses   atomic.Int64
}

// Hit records one resolution through this variant.
func (v *Variant) Hit() { v.uses.Add(1) }

// Uses returns how many lookups this variant has resolved.
func (v *Variant) Uses() int64 { return v.uses.Load() }

// Alias is an indexed, active BrandAlias.
type Alias struct {
	Key      string
	Brand    string
	BrandKey string
	Weight   float64
}

// Snapshot is a validated, read-only view of the reference tables. All lookups
// are safe for concurrent use without locking.
type Snapshot struct {
	version  string
	canon    *canon.Canonicalizer
	entries  []*Entry
	byKey    map[string]*Entry
	byID     map[string]*Entry
	byBrand  map[string][]*Entry
	variants map[string]*Variant
	ordered  []*Variant
	aliases  map[string]*Alias
	aliasLen int
}

// Build validates tables and freezes them into a Snapshot. Ambiguous data is
// refused rather than resolved by picking one mapping.
func Build(t Tables) (*Snapshot, error) {
	c, err := canon.Compile(t.Typos)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	s := &Snapshot{
		version:  t.Version,
		canon:    c,
		byKey:    make(map[string]*Entry),
		byID:     make(map[string]*Entry),
		byBrand:  make(map[string][]*Entry),
		variants: make(map[string]*Variant),
		aliases:  make(map[string]*Alias),
	}

	for i, m := range t.Models {
		if _, err := s.addModel(m.Brand, m.Model, m.FirstYear, m.LastYear); err != nil {
			return nil, fmt.Errorf("model %d: %w", i, err)
		}
	}

	for i, a := range t.Brands {
		if err := s.addAlias(a); err != nil {
			return nil, fmt.Errorf("brand alias %d %q: %w", i, a.Alias, err)
		}
	}

	for i, v := range t.Variants {
		if err := s.addVariant(v); err != nil {
			return nil, fmt.Errorf("model variant %d %q: %w", i, v.Variant, err)
		}
	}

	// A variant spelled like another model's canonical form would shadow it.
	for _, v := range s.ordered {
		if e, ok := s.byKey[v.Key]; ok && e != v.Entry {
			return nil, fmt.Errorf("%w: variant %q resolves to %s but is the canonical form of %s",
				ErrIntegrity, v.Key, v.Entry.ID, e.ID)
		}
	}

	if len(s.entries) == 0 {
		return nil, fmt.Errorf("%w: no canonical models", ErrIntegrity)
	}
	return s, nil
}

func (s *Snapshot) addModel(brand, model string, first, last int) (*Entry, error) {
	brandKey := s.canon.Canonicalize(brand)
	modelKey := s.canon.Canonicalize(model)
	if brandKey == "" || modelKey == "" {
		return nil, fmt.Errorf("%w: empty brand or model (%q, %q)", ErrIntegrity, brand, model)
	}
	if first != 0 && last != 0 && first > last {
		return nil, fmt.Errorf("%w: first year %d after last year %d", ErrIntegrity, first, last)
	}
	key := s.canon.Canonicalize(brandKey + " " + modelKey)
	if e, ok := s.byKey[key]; ok {
		return e, nil
	}

	e := &Entry{
		ID:        canon.ID(key),
		Brand:     canon.ID(brandKey),
		Model:     canon.ID(modelKey),
		Key:       key,
		BrandKey:  brandKey,
		ModelKey:  modelKey,
		FirstYear: first,
		LastYear:  last,
		order:     len(s.entries),
	}
	s.entries = append(s.entries, e)
	s.byKey[key] = e
	s.byID[e.ID] = e
	s.byBrand[e.Brand] = append(s.byBrand[e.Brand], e)
	return e, nil
}

func (s *Snapshot) addAlias(a BrandAlias) error {
	if !a.Active {
		return nil
	}
	key := s.canon.Canonicalize(a.Alias)
	brandKey := s.canon.Canonicalize(a.Brand)
	if key == "" || brandKey == "" {
		return fmt.Errorf("%w: empty alias or brand", ErrIntegrity)
	}
	if err := checkWeight(a.Weight); err != nil {
		return err
	}
	words := len(canon.Tokens(key))
	if words > maxAliasWords {
		return fmt.Errorf("%w: alias longer than %d words", ErrIntegrity, maxAliasWords)
	}
	brand := canon.ID(brandKey)
	if prev, ok := s.aliases[key]; ok {
		if prev.Brand != brand {
			return fmt.Errorf("%w: alias maps to both %s and %s", ErrIntegrity, prev.Brand, brand)
		}
		return nil
	}
	s.aliases[key] = &Alias{Key: key, Brand: brand, BrandKey: brandKey, Weight: a.Weight}
	if words > s.aliasLen {
		s.aliasLen = words
	}
	return nil
}

func (s *Snapshot) addVariant(v ModelVariant) error {
	key := s.canon.Canonicalize(v.Variant)
	if key == "" {
		return fmt.Errorf("%w: empty variant", ErrIntegrity)
	}
	if err := checkWeight(v.Weight); err != nil {
		return err
	}
	e, err := s.addModel(v.Brand, v.Model, 0, 0)
	if err != nil {
		return err
	}
	if prev, ok := s.variants[key]; ok {
		if prev.Entry != e {
			return fmt.Errorf("%w: variant maps to both %s and %s", ErrIntegrity, prev.Entry.ID, e.ID)
		}
		return nil
	}
	iv := &Variant{Key: key, Weight: v.Weight, Entry: e}
	s.variants[key] = iv
	s.ordered = append(s.ordered, iv)
	e.Variants = append(e.Variants, key)
	return nil
}

func checkWeight(w float64) error {
	if w < 0 || w > 1 || w != w {
		return fmt.Errorf("%w: weight %v outside [0,1]", ErrIntegrity, w)
	}
	return nil
}

// Canon returns the canonicalizer compiled from the typo rules.
func (s *Snapshot) Canon() *canon.Canonicalizer { return s.canon }

// Version returns the version string of the loaded tables.
func (s *Snapshot) Version() string { return s.version }

// Exact looks up a canonical key ("john deere s790").
func (s *Snapshot) Exact(key string) (*Entry, bool) {
	e, ok := s.byKey[key]
	return e, ok
}

// ByID looks up a canonical identifier ("john_deere_s790").
func (s *Snapshot) ByID(id string) (*Entry, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Variant looks up a canonical variant key.
func (s *Snapshot) Variant(key string) (*Variant, bool) {
	v, ok := s.variants[key]
	return v, ok
}

// Variants returns all variants in load order.
func (s *Snapshot) Variants() []*Variant { return s.ordered }

// Entries returns the universe in load order.
func (s *Snapshot) Entries() []*Entry { return s.entries }

// BrandEntries returns the models of a canonical brand token in load order.
func (s *Snapshot) BrandEntries(brand string) []*Entry { return s.byBrand[brand] }

// MatchBrand finds the longest alias (up to three words) at the start of a
// canonical key and returns it with the remaining words.
func (s *Snapshot) MatchBrand(key string) (*Alias, string, bool) {
	tokens := canon.Tokens(key)
	n := min(s.aliasLen, len(tokens))
	for ; n >= 1; n-- {
		if a, ok := s.aliases[strings.Join(tokens[:n], " ")]; ok {
			return a, strings.Join(tokens[n:], " "), true
		}
	}
	return nil, "", false
}

// Stats summarizes a snapshot.
type Stats struct {
	Version   string `json:"version"`
	Models    int    `json:"models"`
	Brands    int    `json:"brands"`
	Aliases   int    `json:"aliases"`
	Variants  int    `json:"variants"`
	TypoRules int    `json:"typo_rules"`
}

// Stats returns table sizes.
func (s *Snapshot) Stats() Stats {
	return Stats{
		Version:   s.version,
		Models:    len(s.entries),
		Brands:    len(s.byBrand),
		Aliases:   len(s.aliases),
		Variants:  len(s.ordered),
		TypoRules: s.canon.RuleCount(),
	}
}
