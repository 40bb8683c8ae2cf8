// Package mention decides whether a piece of text refers to a target company.
//
// Matching is deliberately permissive: a result that names only the first
// token of the company still counts, because missing a real mention costs
// more than keeping a coincidental one.
package mention

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minTokenLen is the exclusive lower bound on token length for variants.
const minTokenLen = 2

// maxVariantTokens is the longest token prefix used as a variant.
const maxVariantTokens = 3

// Normalize decomposes s, drops diacritics and punctuation, lowercases it and
// collapses whitespace. Punctuation is removed rather than replaced, so
// "S.A." becomes "sa".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Variants returns the token-prefix variants of a target name: the first
// significant token, the first two, and the first three. Only tokens longer
// than two characters are significant. A name with no significant tokens
// yields its whole normalized form.
func Variants(name string) []string {
	normalized := Normalize(name)
	if normalized == "" {
		return nil
	}

	var tokens []string
	for _, tok := range strings.Fields(normalized) {
		if len([]rune(tok)) > minTokenLen {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return []string{normalized}
	}

	n := min(len(tokens), maxVariantTokens)
	variants := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		variants = append(variants, strings.Join(tokens[:i], " "))
	}
	return variants
}

// IsValidMention reports whether text contains any variant of targetName.
func IsValidMention(text, targetName string) bool {
	variants := Variants(targetName)
	if len(variants) == 0 {
		return false
	}
	haystack := Normalize(text)
	for _, v := range variants {
		if strings.Contains(haystack, v) {
			return true
		}
	}
	return false
}
