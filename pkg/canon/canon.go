// Package canon folds free-form equipment strings into the canonical form used
// for every lookup key: lowercase ASCII letters, digits and single spaces, with
// the typo rules of the reference data applied.
package canon

import (
	"fmt"
	"regexp"
	"regexp/syntax"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxPasses bounds the rewrite loop. Accepted rule sets settle in one or two.
const maxPasses = 8

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Rule is one ordered typo rewrite: a regular expression and its replacement.
// Replacements may use $1-style expansions.
type Rule struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

type compiledRule struct {
	re  *regexp.Regexp
	rep string
}

// Canonicalizer applies the fixed canonicalization steps followed by the
// compiled typo rules. It holds no mutable state and is safe for concurrent use.
type Canonicalizer struct {
	rules []compiledRule
}

// Compile builds a Canonicalizer from rules in table order.
// A rule whose literal replacement is matched again by its own pattern is
// rejected, as is a rule set that does not settle on the replacements or on
// a sample string each pattern matches (for example (x) -> $1$1).
func Compile(rules []Rule) (*Canonicalizer, error) {
	c := &Canonicalizer{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Pattern == "" {
			return nil, fmt.Errorf("typo rule %d: empty pattern", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("typo rule %d %q: %w", i, r.Pattern, err)
		}
		if !strings.Contains(r.Replacement, "$") && r.Replacement != "" && re.MatchString(r.Replacement) {
			return nil, fmt.Errorf("typo rule %d %q: replacement %q matches its own pattern", i, r.Pattern, r.Replacement)
		}
		c.rules = append(c.rules, compiledRule{re: re, rep: r.Replacement})
	}

	// Rules can still chase each other (a -> b, b -> a) or grow through
	// expansions. Every replacement and pattern sample must reach a fixpoint.
	for i, r := range rules {
		for _, in := range []string{r.Replacement, sample(r.Pattern)} {
			once, ok := c.canonicalize(in)
			if !ok {
				return nil, fmt.Errorf("typo rule %d %q: rule set does not converge on %q", i, r.Pattern, in)
			}
			if again, _ := c.canonicalize(once); again != once {
				return nil, fmt.Errorf("typo rule %d %q: rule set does not converge on %q", i, r.Pattern, in)
			}
		}
	}
	return c, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// static rule tables.
func MustCompile(rules []Rule) *Canonicalizer {
	c, err := Compile(rules)
	if err != nil {
		panic(err)
	}
	return c
}

// Canonicalize returns the canonical form of raw. It never fails; input that
// holds no letters or digits canonicalizes to "". If the typo rules do not
// settle on raw, the form before any rule is returned.
func (c *Canonicalizer) Canonicalize(raw string) string {
	s, _ := c.canonicalize(raw)
	return s
}

// canonicalize reports false when the rules did not reach a fixpoint within
// maxPasses or grew the string past maxGrowth.
func (c *Canonicalizer) canonicalize(raw string) (string, bool) {
	base := clean(fold(raw))
	if c == nil || len(c.rules) == 0 || base == "" {
		return base, true
	}
	limit := maxGrowth(len(base))
	s := base
	for i := 0; i < maxPasses; i++ {
		next := clean(c.rewrite(s))
		if next == s {
			return s, true
		}
		if len(next) > limit {
			break
		}
		s = next
	}
	return base, false
}

// maxGrowth bounds how far typo rules may lengthen a string of n bytes.
func maxGrowth(n int) int { return 2*n + 64 }

// RuleCount returns the number of compiled typo rules.
func (c *Canonicalizer) RuleCount() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

func (c *Canonicalizer) rewrite(s string) string {
	for _, r := range c.rules {
		s = r.re.ReplaceAllString(s, r.rep)
	}
	return s
}

// fold lowercases and strips accents (Claäs -> claas).
func fold(s string) string {
	result, _, err := transform.String(stripAccents, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return result
}

// clean keeps [a-z0-9], turns underscores and whitespace into single spaces
// and trims the result.
func clean(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case r == '_' || unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// Tokens splits a canonical string into its space-separated words.
func Tokens(s string) []string {
	return strings.Fields(s)
}

// Compact removes the spaces of a canonical string ("x9 1100" -> "x91100").
func Compact(s string) string {
	return strings.ReplaceAll(s, " ", "")
}

// Key turns a canonical identifier such as "john_deere_x9_1100" into its
// canonical lookup key "john deere x9 1100".
func (c *Canonicalizer) Key(id string) string {
	return c.Canonicalize(id)
}

// ID joins canonical words with underscores ("john deere" -> "john_deere").
func ID(parts ...string) string {
	words := make([]string, 0, len(parts)*2)
	for _, p := range parts {
		words = append(words, strings.Fields(p)...)
	}
	return strings.Join(words, "_")
}

// sample builds one short string the pattern matches: the first rune of each
// class, the minimum count of each repeat, the first branch of each
// alternation. Assertions contribute nothing.
func sample(pattern string) string {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return ""
	}
	var b strings.Builder
	writeSample(&b, re)
	return b.String()
}

func writeSample(b *strings.Builder, re *syntax.Regexp) {
	switch re.Op {
	case syntax.OpLiteral:
		b.WriteString(string(re.Rune))
	case syntax.OpCharClass:
		if len(re.Rune) > 0 {
			b.WriteRune(re.Rune[0])
		}
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		b.WriteByte('a')
	case syntax.OpCapture, syntax.OpPlus:
		writeSample(b, re.Sub[0])
	case syntax.OpRepeat:
		for i := 0; i < min(re.Min, 16); i++ {
			writeSample(b, re.Sub[0])
		}
	case syntax.OpConcat:
		for _, sub := range re.Sub {
			writeSample(b, sub)
		}
	case syntax.OpAlternate:
		writeSample(b, re.Sub[0])
	}
}
