package align

import (
	"unicode/utf8"

	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/text"
)

const (
	// ExactThreshold is the minimum similarity of an exact match.
	ExactThreshold = 95.0
	// SoftThreshold is the minimum similarity of a soft match.
	SoftThreshold = 60.0
	// SoftWeight is how much a soft match counts toward word accuracy.
	SoftWeight = 0.6

	windowBefore = 2
	windowAfter  = 3
)

// Class is the match class of an aligned word.
type Class int

// Match classes.
const (
	NoMatch Class = iota
	SoftMatch
	ExactMatch
)

// Alignment is the result of aligning a transcript against an expected sentence.
type Alignment struct {
	Entries      []model.WordAlignmentEntry
	Exact        int
	Soft         int
	WordAccuracy float64
}

// Classify maps a similarity percentage onto a match class.
func Classify(similarity float64) Class {
	switch {
	case similarity >= ExactThreshold:
		return ExactMatch
	case similarity >= SoftThreshold:
		return SoftMatch
	default:
		return NoMatch
	}
}

// Similarity scores spoken against expected in [0,100].
func Similarity(expected string, distance int) float64 {
	n := utf8.RuneCountInString(expected)
	return float64(max(0, n-distance)) / float64(max(1, n)) * 100
}

// Words aligns two raw sentences after normalization.
func Words(expected, spoken string) Alignment {
	return Align(text.Words(expected), text.Words(spoken))
}

// Align aligns spoken tokens to expected tokens. Each expected word looks at
// spoken words within two positions before and two after its own index.
// WordAccuracy is 0 when there are no expected words.
func Align(expectedWords, spokenWords []string) Alignment {
	out := Alignment{Entries: make([]model.WordAlignmentEntry, 0, len(expectedWords))}
	for i, exp := range expectedWords {
		lo := max(0, i-windowBefore)
		hi := min(len(spokenWords), i+windowAfter)
		best := ""
		bestDist := -1
		for j := lo; j < hi; j++ {
			d := Distance(exp, spokenWords[j])
			if bestDist < 0 || d < bestDist {
				best = spokenWords[j]
				bestDist = d
			}
		}
		sim := 0.0
		if bestDist >= 0 {
			sim = Similarity(exp, bestDist)
		}
		switch Classify(sim) {
		case ExactMatch:
			out.Exact++
		case SoftMatch:
			out.Soft++
		}
		out.Entries = append(out.Entries, model.WordAlignmentEntry{
			ExpectedWord:      exp,
			MatchedWord:       best,
			SimilarityPercent: sim,
			SoundsAlike:       best != "" && SoundsAlike(exp, best),
		})
	}
	if len(expectedWords) == 0 {
		return out
	}
	out.WordAccuracy = (float64(out.Exact) + SoftWeight*float64(out.Soft)) / float64(max(1, len(expectedWords))) * 100
	return out
}
