// CLAUDE:SUMMARY Contextual clue extraction (series tokens, bare numbers) used to rank fuzzy candidates.
package match

import (
	"regexp"
	"strings"

	"github.com/hazyhaar/combine-registry/pkg/canon"
)

var (
	// seriesToken: letters immediately followed by digits ("x9", "s790", "cr10").
	seriesToken = regexp.MustCompile(`[a-z]+[0-9]+`)
	// numberToken: a bare number word ("1100", "8900").
	numberToken = regexp.MustCompile(`\b[0-9]+\b`)
)

// clueTokens extracts the distinct series and numeric tokens of a canonical
// string, in order of appearance.
func clueTokens(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{seriesToken, numberToken} {
		for _, tok := range re.FindAllString(s, -1) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}

// countClues counts input tokens that reappear in candidate, either as one
// of its words or clue tokens, or (for tokens of three characters or more)
// inside its compact form.
func countClues(input []string, candidate string) int {
	if len(input) == 0 {
		return 0
	}
	words := make(map[string]struct{})
	for _, w := range canon.Tokens(candidate) {
		words[w] = struct{}{}
	}
	for _, w := range clueTokens(candidate) {
		words[w] = struct{}{}
	}
	compact := canon.Compact(candidate)

	n := 0
	for _, tok := range input {
		if _, ok := words[tok]; ok {
			n++
			continue
		}
		if len(tok) >= 3 && strings.Contains(compact, tok) {
			n++
		}
	}
	return n
}
