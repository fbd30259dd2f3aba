// Package model defines shared data structures.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DefaultConfidence is used when the recognizer does not report a confidence.
const DefaultConfidence = 0.8

// Language selects the phoneme heuristics and recognizer language tag.
type Language string

// Supported languages.
const (
	English  Language = "en"
	Filipino Language = "fil"
)

// ParseLanguage maps a user supplied code onto a Language.
func ParseLanguage(code string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "en", "en-us", "english":
		return English, nil
	case "fil", "tl", "fil-ph", "tl-ph", "filipino", "tagalog":
		return Filipino, nil
	default:
		return "", fmt.Errorf("unknown language %q", code)
	}
}

// Tag returns the BCP-47 tag passed to recognition and synthesis engines.
func (l Language) Tag() string {
	if l == Filipino {
		return "fil-PH"
	}
	return "en-US"
}

// ExpectedUtterance is the sentence or word a learner must read aloud.
type ExpectedUtterance struct {
	Text     string
	Language Language
}

// Card is one flashcard of a deck.
type Card struct {
	Index     int
	Utterance ExpectedUtterance
}

// Learner is a roster entry.
type Learner struct {
	ID   string
	Name string
}

// VoiceActivityStats accumulates speech timing for one attempt.
// Zero timestamps mean unset.
type VoiceActivityStats struct {
	SpeechStart        time.Time
	SpeechEnd          time.Time
	CumulativeSilentMs int64
}

// TranscriptionResult is produced once per attempt by the recognizer.
type TranscriptionResult struct {
	Text       string
	Confidence float64
	// HasConfidence is false when the recognizer did not report Confidence.
	HasConfidence bool
}

// WordAlignmentEntry pairs an expected word with its best spoken candidate.
type WordAlignmentEntry struct {
	ExpectedWord      string
	MatchedWord       string
	SimilarityPercent float64
	SoundsAlike       bool
}

// Label is the qualitative band of an average score.
type Label string

// Score labels, best first.
const (
	LabelExcellent Label = "Excellent"
	LabelVeryGood  Label = "Very Good"
	LabelGood      Label = "Good"
	LabelFair      Label = "Fair"
	LabelPoor      Label = "Poor"
)

// ScoreReport is the derived result of one completed attempt.
type ScoreReport struct {
	WordAccuracy       float64
	PhonemeAccuracy    float64
	FluencyScore       int
	WordsPerMinute     int
	PronunciationScore int
	AverageScore       int
	AverageLabel       Label
	Remarks            string
}

// AttemptRecord is the persisted form of a completed attempt.
type AttemptRecord struct {
	ID           string
	LearnerID    string
	RecordedAt   time.Time
	CardIndex    int
	ExpectedText string
	Language     Language
	Confidence   float64
	Report       ScoreReport
	Words        []WordAlignmentEntry
}

// AttemptFilter narrows attempt listings.
type AttemptFilter struct {
	LearnerID string
	Language  Language
	Since     *time.Time
	Last      int
}

// CardAggregate summarizes attempts on one card.
type CardAggregate struct {
	CardIndex    int
	ExpectedText string
	Attempts     int
	AvgScore     float64
	AvgFluency   float64
	BestScore    int
}

// WordAggregate summarizes how an expected word was read across attempts.
type WordAggregate struct {
	Word          string
	Attempts      int
	Misses        int
	SimilaritySum float64
}

// AvgSimilarity returns the mean similarity percent, or 0 without attempts.
func (w WordAggregate) AvgSimilarity() float64 {
	if w.Attempts == 0 {
		return 0
	}
	return w.SimilaritySum / float64(w.Attempts)
}
