package match

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var (
	// ErrInvalidInput: the input canonicalizes to nothing.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNormalizationFailed: no stage produced a candidate.
	ErrNormalizationFailed = errors.New("normalization failed")
)

// Error is the typed error returned by resolution. Kind is one of the
// sentinel errors above.
type Error struct {
	Kind  error
	Input string
	Hints []string
}

func (e *Error) Error() string {
	if len(e.Hints) == 0 {
		return fmt.Sprintf("%v: %q", e.Kind, e.Input)
	}
	return fmt.Sprintf("%v: %q (%s)", e.Kind, e.Input, strings.Join(e.Hints, "; "))
}

func (e *Error) Unwrap() error { return e.Kind }

func invalidInput(input string) *Error {
	return &Error{
		Kind:  ErrInvalidInput,
		Input: input,
		Hints: []string{"enter a brand and model, e.g. \"john deere s790\""},
	}
}

// failed builds a NormalizationFailed error with hints derived from what the
// input is missing.
func failed(input, key string, brandKnown bool) *Error {
	hints := []string{"check the spelling of brand and model"}
	if !strings.ContainsFunc(key, unicode.IsDigit) {
		hints = append(hints, "include the model number")
	}
	if len(strings.Fields(key)) > 1 {
		hints = append(hints, "try the model number alone")
	}
	if !brandKnown {
		hints = append(hints, "add a known brand name, e.g. \"claas\" or \"new holland\"")
	}
	return &Error{Kind: ErrNormalizationFailed, Input: input, Hints: hints}
}

// InvalidInput returns a typed ErrInvalidInput error for input.
func InvalidInput(input string) error { return invalidInput(input) }
