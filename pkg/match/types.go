// Package match resolves canonical input against a reference snapshot:
// exact, variant, brand alias and fuzzy stages, tried in that order.
package match

import "time"

// Kind tags the stage that produced a Result.
type Kind string

const (
	KindExact      Kind = "exact"
	KindVariant    Kind = "variant"
	KindBrandAlias Kind = "brand_alias"
	KindFuzzy      Kind = "fuzzy"
)

// MaxResults caps the candidates returned by one resolution.
const MaxResults = 3

// VariantConfidence is the fixed confidence of a variant match.
const VariantConfidence = 0.95

// fuzzyCeiling keeps computed confidences strictly below an exact match.
const fuzzyCeiling = 0.99

// Result is one resolved candidate. It is a plain value; copies never share
// state with the resolver or the cache.
type Result struct {
	ID                string    `json:"canonical_id"`
	Brand             string    `json:"brand"`
	Model             string    `json:"model"`
	Confidence        float64   `json:"confidence"`
	Distance          int       `json:"edit_distance"`
	Kind              Kind      `json:"match_kind"`
	NeedsConfirmation bool      `json:"needs_confirmation"`
	Alternatives      []Result  `json:"alternative_matches,omitempty"`
	CachedAt          time.Time `json:"cached_at,omitzero"`
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	if r.Alternatives != nil {
		alts := make([]Result, len(r.Alternatives))
		for i, a := range r.Alternatives {
			alts[i] = a.Clone()
		}
		r.Alternatives = alts
	}
	return r
}

// Context carries optional hints supplied with the input. Zero values mean
// absent.
type Context struct {
	Year   int    `json:"year,omitempty"`
	Region string `json:"region,omitempty"`
}

// Thresholds gate which fuzzy candidates survive and which results need a
// human confirmation.
type Thresholds struct {
	Low    float64 `yaml:"low" json:"low"`
	Medium float64 `yaml:"medium" json:"medium"`
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.6, Medium: 0.8}
}
