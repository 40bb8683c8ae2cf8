// Package candidate pulls company-like names out of free text.
//
// Extraction is heuristic and tuned for Brazilian business text. False
// positives are expected; callers validate candidates against the target
// before trusting them.
package candidate

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minNameLen = 4
	maxNameLen = 99
)

var (
	// "Cliente: Acme Ltda", "Case: Acme", "Parceiro: Acme S/A"
	labelPattern = regexp.MustCompile(`(?im)\b(?:cliente|case|parceiro)\s*:\s*([^\n;|]+)`)

	// Capitalized words followed by a legal-entity suffix.
	suffixPattern = regexp.MustCompile(
		`((?:[\p{Lu}\d][\p{L}\d&'-]*\s+(?:(?:de|da|do|das|dos|e)\s+)?){1,5})` +
			`(Ltda|LTDA|S\.A\.|S/A|Eireli|EIRELI|ME|EPP|Inc|LLC)(?:[^\p{L}\d]|$)`)

	// "Grupo Pão de Açúcar", "Grupo Boticário"
	groupPattern = regexp.MustCompile(`\bGrupo\s+([\p{Lu}\d][\p{L}\d&'-]*(?:\s+(?:(?:de|da|do)\s+)?[\p{Lu}\d][\p{L}\d&'-]*){0,2})`)

	labelStops = []string{" - ", " – ", " — ", " | ", " (", "\t"}
)

// ExtractNames returns the distinct candidate names found in text, sorted.
// Names shorter than 4 or longer than 99 characters are discarded.
func ExtractNames(text string) []string {
	seen := make(map[string]struct{})
	add := func(name string) {
		name = clean(name)
		n := utf8.RuneCountInString(name)
		if n < minNameLen || n > maxNameLen {
			return
		}
		seen[name] = struct{}{}
	}

	for _, m := range labelPattern.FindAllStringSubmatch(text, -1) {
		add(cutLabelValue(m[1]))
	}
	for _, m := range suffixPattern.FindAllStringSubmatch(text, -1) {
		add(strings.TrimSpace(m[1]) + " " + m[2])
	}
	for _, m := range groupPattern.FindAllStringSubmatch(text, -1) {
		add("Grupo " + m[1])
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// cutLabelValue ends a labeled value at the first separator or sentence end.
func cutLabelValue(v string) string {
	for _, stop := range labelStops {
		if i := strings.Index(v, stop); i >= 0 {
			v = v[:i]
		}
	}
	// A period after a lowercase letter ends the sentence; after an uppercase
	// letter it is usually part of an abbreviation such as "S.A.".
	runes := []rune(v)
	for i := 1; i < len(runes); i++ {
		if runes[i] != '.' {
			continue
		}
		atEnd := i == len(runes)-1 || unicode.IsSpace(runes[i+1])
		if atEnd && unicode.IsLower(runes[i-1]) {
			return string(runes[:i])
		}
	}
	return v
}

func clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(strings.TrimSpace(s), ",:;-–—")
}
