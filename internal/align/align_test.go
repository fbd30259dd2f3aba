package align

import (
	"math"
	"testing"
)

func TestDistanceProperties(t *testing.T) {
	words := []string{"", "a", "cat", "mat", "map", "kitten", "sitting", "niño", "nino", "don't"}
	for _, a := range words {
		if d := Distance(a, a); d != 0 {
			t.Fatalf("Distance(%q,%q) = %d, want 0", a, a, d)
		}
		for _, b := range words {
			ab := Distance(a, b)
			ba := Distance(b, a)
			if ab != ba {
				t.Fatalf("Distance not symmetric for %q/%q: %d vs %d", a, b, ab, ba)
			}
			if ab < 0 {
				t.Fatalf("negative distance for %q/%q", a, b)
			}
			if a != b && ab == 0 {
				t.Fatalf("zero distance for different tokens %q/%q", a, b)
			}
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"mat", "map", 1},
		{"", "abc", 3},
		{"niño", "nino", 1},
	}
	for _, tc := range cases {
		if got := Distance(tc.a, tc.b); got != tc.want {
			t.Fatalf("Distance(%q,%q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestAlignIdenticalSentence(t *testing.T) {
	res := Words("The cat sat on the mat.", "the cat sat on the mat")
	if res.WordAccuracy != 100 {
		t.Fatalf("expected word accuracy 100, got %v", res.WordAccuracy)
	}
	if res.Exact != 6 || res.Soft != 0 {
		t.Fatalf("expected 6 exact matches, got exact=%d soft=%d", res.Exact, res.Soft)
	}
	for _, e := range res.Entries {
		if e.SimilarityPercent != 100 || e.ExpectedWord != e.MatchedWord {
			t.Fatalf("unexpected entry %+v", e)
		}
	}
}

func TestAlignSoftMatch(t *testing.T) {
	res := Words("The cat sat on the mat", "the cat sat on the map")
	last := res.Entries[len(res.Entries)-1]
	if last.MatchedWord != "map" {
		t.Fatalf("expected map to be matched, got %q", last.MatchedWord)
	}
	if math.Abs(last.SimilarityPercent-200.0/3.0) > 1e-9 {
		t.Fatalf("expected similarity 66.67, got %v", last.SimilarityPercent)
	}
	if Classify(last.SimilarityPercent) != SoftMatch {
		t.Fatalf("expected soft match")
	}
	want := (5 + 0.6) / 6 * 100
	if math.Abs(res.WordAccuracy-want) > 1e-9 {
		t.Fatalf("word accuracy = %v, want %v", res.WordAccuracy, want)
	}
}

func TestAlignWindowAndTies(t *testing.T) {
	// "bat" and "cat" are both one edit from "hat"; the first in the window wins.
	res := Align([]string{"hat"}, []string{"bat", "cat"})
	if res.Entries[0].MatchedWord != "bat" {
		t.Fatalf("expected first candidate to win tie, got %q", res.Entries[0].MatchedWord)
	}

	// The spoken word at index 5 is outside the window of expected index 0.
	res = Align([]string{"sun", "a", "b"}, []string{"x", "y", "z", "q", "r", "sun"})
	if res.Entries[0].MatchedWord == "sun" {
		t.Fatalf("window must not reach index 5 for expected index 0")
	}
}

func TestAlignEmptyInputs(t *testing.T) {
	res := Align(nil, []string{"hello"})
	if res.WordAccuracy != 0 || len(res.Entries) != 0 {
		t.Fatalf("expected zero accuracy for empty expected, got %+v", res)
	}
	res = Align([]string{"hello", "world"}, nil)
	if res.WordAccuracy != 0 {
		t.Fatalf("expected zero accuracy when nothing was spoken, got %v", res.WordAccuracy)
	}
	for _, e := range res.Entries {
		if e.MatchedWord != "" || e.SimilarityPercent != 0 {
			t.Fatalf("unexpected entry %+v", e)
		}
	}
}

func TestClassifyBoundaries(t *testing.T) {
	if Classify(95) != ExactMatch || Classify(94.9) != SoftMatch {
		t.Fatalf("exact boundary wrong")
	}
	if Classify(60) != SoftMatch || Classify(59.9) != NoMatch {
		t.Fatalf("soft boundary wrong")
	}
}

func TestSoundsAlike(t *testing.T) {
	if !SoundsAlike("night", "knight") {
		t.Fatalf("expected night/knight to sound alike")
	}
	if SoundsAlike("cat", "dog") {
		t.Fatalf("did not expect cat/dog to sound alike")
	}
	if SoundsAlike("", "dog") {
		t.Fatalf("empty word never sounds alike")
	}
}
