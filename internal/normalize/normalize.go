// Package normalize canonicalizes the free-text identifiers typed by operators.
package normalize

import (
	"strings"
	"unicode"
)

// Plate returns the canonical form of a vehicle plate: uppercase ASCII letters
// and digits only. "abc-1234", "ABC 1234" and "ABC1234" are the same plate.
func Plate(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Name trims, collapses inner whitespace and title-cases every word.
func Name(raw string) string {
	words := strings.Fields(raw)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// Text trims surrounding whitespace and collapses inner runs of spaces.
func Text(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
