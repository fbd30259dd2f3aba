// Package align matches recognized words against the expected sentence.
package align

import "github.com/antzucaro/matchr"

// Distance returns the Levenshtein distance between two tokens, counted in runes.
func Distance(a, b string) int {
	if a == b {
		return 0
	}
	return matchr.Levenshtein(a, b)
}

// SoundsAlike reports whether two words share a Double Metaphone code.
func SoundsAlike(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}
