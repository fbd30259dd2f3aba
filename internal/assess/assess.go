// Package assess runs the scoring pipeline for one completed attempt.
package assess

import (
	"errors"

	"github.com/verte-zerg/readaloud/internal/align"
	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/phoneme"
	"github.com/verte-zerg/readaloud/internal/score"
	"github.com/verte-zerg/readaloud/internal/text"
)

// ErrNoSpeech is returned when the transcript holds no words.
var ErrNoSpeech = errors.New("no speech detected")

// Result is the full outcome of an assessment.
type Result struct {
	Report           model.ScoreReport
	Alignment        align.Alignment
	ExpectedPhonemes []string
	SpokenPhonemes   []string
	Confidence       float64
}

// Evaluate compares transcript against expected using frozen timing stats.
func Evaluate(expected model.ExpectedUtterance, transcript model.TranscriptionResult, stats model.VoiceActivityStats) (Result, error) {
	spoken := text.Words(transcript.Text)
	if len(spoken) == 0 {
		return Result{}, ErrNoSpeech
	}
	want := text.Words(expected.Text)
	alignment := align.Align(want, spoken)

	expPh := phoneme.Sequence(want, expected.Language)
	spokenPh := phoneme.Sequence(spoken, expected.Language)
	phonemeAcc := phoneme.Compare(expPh, spokenPh)

	conf := model.DefaultConfidence
	if transcript.HasConfidence {
		conf = transcript.Confidence
	}
	report := score.Calculate(score.Input{
		WordAccuracy:      alignment.WordAccuracy,
		PhonemeAccuracy:   phonemeAcc,
		Stats:             stats,
		ExpectedWordCount: len(want),
		Confidence:        conf,
	})
	return Result{
		Report:           report,
		Alignment:        alignment,
		ExpectedPhonemes: expPh,
		SpokenPhonemes:   spokenPh,
		Confidence:       conf,
	}, nil
}
