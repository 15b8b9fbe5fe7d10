// Package refdata holds the reference vocabulary the resolver matches against:
// canonical models, brand aliases, model variants and typo rules. Tables are
// loaded once, validated, and frozen into an immutable Snapshot.
package refdata

import (
	"errors"

	"github.com/hazyhaar/combine-registry/pkg/canon"
)

// ErrIntegrity marks reference data that cannot be served unambiguously.
var ErrIntegrity = errors.New("reference data integrity")

// Model is one canonical brand+model pair. Years are optional production
// bounds (0 = unknown).
type Model struct {
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	FirstYear int    `json:"first_year,omitempty"`
	LastYear  int    `json:"last_year,omitempty"`
}

// BrandAlias maps an alternate brand spelling to a canonical brand token.
type BrandAlias struct {
	Alias  string  `json:"alias"`
	Brand  string  `json:"brand"`
	Weight float64 `json:"weight"`
	Active bool    `json:"active"`
}

// ModelVariant maps an alternate spelling to a canonical brand+model pair.
type ModelVariant struct {
	Variant string  `json:"variant"`
	Brand   string  `json:"brand"`
	Model   string  `json:"model"`
	Weight  float64 `json:"weight"`
}

// Tables is the raw, ordered import of the reference data.
type Tables struct {
	Version  string         `json:"version"`
	Models   []Model        `json:"models"`
	Brands   []BrandAlias   `json:"brands"`
	Variants []ModelVariant `json:"variants"`
	Typos    []canon.Rule   `json:"typos"`
}
