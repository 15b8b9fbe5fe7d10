package match

import "math"

// Factors are the per-comparison signals fed to Score. They live for one
// comparison only.
type Factors struct {
	Distance         int
	LengthSimilarity float64
	BrandMatch       bool
	YearPlausible    bool
	Clues            int
}

// Signal weights. They sum to 1.
const (
	weightDistance = 0.4
	weightLength   = 0.2
	weightBrand    = 0.2
	weightYear     = 0.1
	weightClues    = 0.1

	// Distances at or beyond this saturate the distance term at zero.
	distanceSaturation = 10
	// Clue count that earns the full clue term.
	fullClues = 3
)

// Score fuses factors into a confidence in [0,1]. It is pure and total.
func Score(f Factors) float64 {
	d := max(f.Distance, 0)
	distanceTerm := 1 - float64(d)/float64(max(d, distanceSaturation))

	lengthTerm := f.LengthSimilarity
	if math.IsNaN(lengthTerm) {
		lengthTerm = 0
	}
	lengthTerm = clamp01(lengthTerm)

	clueTerm := clamp01(float64(max(f.Clues, 0)) / fullClues)

	score := weightDistance*distanceTerm +
		weightLength*lengthTerm +
		weightBrand*boolTerm(f.BrandMatch) +
		weightYear*boolTerm(f.YearPlausible) +
		weightClues*clueTerm
	return clamp01(score)
}

// lengthSimilarity is the ratio of the shorter length to the longer one.
func lengthSimilarity(a, b int) float64 {
	if a == 0 && b == 0 {
		return 1
	}
	return float64(min(a, b)) / float64(max(a, b))
}

// similarity is 1 - distance/max(len(a), len(b)).
func similarity(distance, a, b int) float64 {
	longest := max(a, b)
	if longest == 0 {
		return 1
	}
	return 1 - float64(distance)/float64(longest)
}

func boolTerm(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
