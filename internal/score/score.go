// Package score reduces accuracy and timing measurements into a ScoreReport.
package score

import (
	"math"

	"github.com/verte-zerg/readaloud/internal/model"
)

const (
	wordWeight       = 0.5
	phonemeWeight    = 0.35
	confidenceWeight = 0.15
)

// Input holds everything the calculator needs for one attempt.
type Input struct {
	WordAccuracy      float64
	PhonemeAccuracy   float64
	Stats             model.VoiceActivityStats
	ExpectedWordCount int
	Confidence        float64
}

// SpeechMillis returns the speech span in ms, at least 1 so it can divide.
func SpeechMillis(st model.VoiceActivityStats) float64 {
	if st.SpeechStart.IsZero() || st.SpeechEnd.IsZero() {
		return 1
	}
	ms := float64(st.SpeechEnd.Sub(st.SpeechStart).Milliseconds())
	return math.Max(1, ms)
}

// Calculate builds the report. Words per minute doubles as the reading speed
// percentage, clamped to 100.
func Calculate(in Input) model.ScoreReport {
	totalMs := SpeechMillis(in.Stats)
	pauseRatio := math.Min(1, float64(in.Stats.CumulativeSilentMs)/totalMs)
	fluency := clamp(round((1-pauseRatio)*100), 0, 100)
	wpm := max(0, round(float64(in.ExpectedWordCount)/(totalMs/1000)*60))
	// Explicit conversions keep the products unfused on FMA platforms.
	weighted := float64(wordWeight*in.WordAccuracy) +
		float64(phonemeWeight*in.PhonemeAccuracy) +
		float64(confidenceWeight*in.Confidence*100)
	pronunciation := clamp(round(weighted), 0, 100)
	readingSpeed := clamp(wpm, 0, 100)
	average := clamp(round(float64(pronunciation+fluency+readingSpeed)/3), 0, 100)
	label := LabelFor(average)
	return model.ScoreReport{
		WordAccuracy:       in.WordAccuracy,
		PhonemeAccuracy:    in.PhonemeAccuracy,
		FluencyScore:       fluency,
		WordsPerMinute:     wpm,
		PronunciationScore: pronunciation,
		AverageScore:       average,
		AverageLabel:       label,
		Remarks:            Remarks(label),
	}
}

// LabelFor maps an average score onto its band. Lower bounds are inclusive.
func LabelFor(average int) model.Label {
	switch {
	case average >= 90:
		return model.LabelExcellent
	case average >= 80:
		return model.LabelVeryGood
	case average >= 70:
		return model.LabelGood
	case average >= 60:
		return model.LabelFair
	default:
		return model.LabelPoor
	}
}

// Remarks returns the fixed feedback sentence for a label.
func Remarks(label model.Label) string {
	switch label {
	case model.LabelExcellent:
		return "Excellent reading! Clear words and a smooth pace."
	case model.LabelVeryGood:
		return "Very good reading. Only a few small slips."
	case model.LabelGood:
		return "Good reading. Practise the words that were missed."
	case model.LabelFair:
		return "Fair reading. Slow down and sound out each word."
	default:
		return "Keep practising. Listen to the card again and try once more."
	}
}

func round(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}

func clamp(v, lo, hi int) int {
	return min(hi, max(lo, v))
}
