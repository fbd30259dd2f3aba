// Package phoneme splits words into coarse sound tokens for relative comparison.
// The tables are heuristics, not a pronunciation dictionary.
package phoneme

import (
	"strings"

	"github.com/verte-zerg/readaloud/internal/model"
)

var englishClusters = []string{
	"th", "sh", "ch", "ph", "wh", "ck", "ng",
	"ee", "ea", "oo", "ou", "ow", "ai", "ay", "oa",
	"ar", "er", "ir", "or", "ur",
}

var filipinoClusters = []string{
	"ng", "ts", "ny", "dy", "sy",
	"ay", "aw", "iw", "oy", "uy",
}

func clustersFor(lang model.Language) []string {
	if lang == model.Filipino {
		return filipinoClusters
	}
	return englishClusters
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// Approximate returns the phoneme-like tokens of a single word.
func Approximate(word string, lang model.Language) []string {
	w := clean(word)
	clusters := clustersFor(lang)

	var tokens []string
	var run strings.Builder
	runVowel := false
	flush := func() {
		if run.Len() > 0 {
			tokens = append(tokens, strings.ToUpper(run.String()))
			run.Reset()
		}
	}

	for i := 0; i < len(w); {
		if c := matchCluster(w[i:], clusters); c != "" {
			flush()
			tokens = append(tokens, strings.ToUpper(c))
			i += len(c)
			continue
		}
		ch := w[i]
		if ch == '\'' {
			flush()
			i++
			continue
		}
		v := isVowel(ch)
		if run.Len() > 0 && v != runVowel {
			flush()
		}
		runVowel = v
		run.WriteByte(ch)
		i++
	}
	flush()
	return tokens
}

// Sequence concatenates the tokens of words in order.
func Sequence(words []string, lang model.Language) []string {
	var out []string
	for _, w := range words {
		out = append(out, Approximate(w, lang)...)
	}
	return out
}

// Compare returns the percentage of expected tokens found at the same position
// in actual, tolerating a one-position shift in either direction.
func Compare(expected, actual []string) float64 {
	matches := 0
	for i, want := range expected {
		switch {
		case at(actual, i) == want:
			matches++
		case at(actual, i-1) == want:
			matches++
		case at(actual, i+1) == want:
			matches++
		}
	}
	return float64(matches) / float64(max(1, len(expected))) * 100
}

func at(tokens []string, i int) string {
	if i < 0 || i >= len(tokens) {
		return ""
	}
	return tokens[i]
}

func matchCluster(s string, clusters []string) string {
	for _, c := range clusters {
		if strings.HasPrefix(s, c) {
			return c
		}
	}
	return ""
}

func clean(word string) string {
	word = strings.ToLower(word)
	var b strings.Builder
	b.Grow(len(word))
	for i := 0; i < len(word); i++ {
		c := word[i]
		if (c >= 'a' && c <= 'z') || c == '\'' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
