// Package text normalizes expected and recognized sentences before comparison.
package text

import (
	"strings"
	"unicode"
)

// Normalize lowercases raw and keeps only letters and apostrophes, with single
// spaces between tokens. Every other rune separates tokens.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	pendingSpace := false
	for _, r := range raw {
		if unicode.IsLetter(r) || r == '\'' {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// Words splits the normalized form of raw into tokens.
func Words(raw string) []string {
	return strings.Fields(Normalize(raw))
}
