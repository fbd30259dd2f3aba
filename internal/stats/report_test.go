package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/score"
	"github.com/verte-zerg/readaloud/internal/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "readaloud.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})

	ctx := context.Background()
	averages := []int{50, 65, 80, 95}
	for i, avg := range averages {
		label := score.LabelFor(avg)
		rec := model.AttemptRecord{
			LearnerID:    "ana",
			RecordedAt:   time.Unix(0, 0).Add(time.Duration(i) * time.Minute),
			CardIndex:    i % 2,
			ExpectedText: []string{"The cat sat on the mat.", "Salamat po."}[i%2],
			Language:     model.English,
			Report: model.ScoreReport{
				FluencyScore:       avg,
				WordsPerMinute:     100 + i*10,
				PronunciationScore: avg,
				AverageScore:       avg,
				AverageLabel:       label,
				Remarks:            score.Remarks(label),
			},
			Words: []model.WordAlignmentEntry{
				{ExpectedWord: "mat", MatchedWord: "map", SimilarityPercent: float64(avg)},
			},
		}
		if err := st.SaveAttempt(ctx, rec); err != nil {
			t.Fatalf("save attempt: %v", err)
		}
	}
	return st
}

func TestBuildReport(t *testing.T) {
	st := seedStore(t)
	report, err := BuildReport(context.Background(), st, model.AttemptFilter{LearnerID: "ana", Last: 3}, 2)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if len(report.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(report.Attempts))
	}
	if report.Attempts[0].Report.AverageScore != 65 || report.Attempts[2].Report.AverageScore != 95 {
		t.Fatalf("unexpected attempts order: %+v", report.Attempts)
	}
	if len(report.Cards) != 2 {
		t.Fatalf("expected 2 cards, got %+v", report.Cards)
	}
	var windowAttempts int
	for _, c := range report.CardsWindow {
		windowAttempts += c.Attempts
	}
	if windowAttempts != 2 {
		t.Fatalf("window should cover 2 attempts, got %d", windowAttempts)
	}
	if len(report.Words) != 1 || report.Words[0].Attempts != 3 || report.Words[0].Misses != 0 {
		t.Fatalf("unexpected words: %+v", report.Words)
	}
}

func TestRenderReport(t *testing.T) {
	st := seedStore(t)
	report, err := BuildReport(context.Background(), st, model.AttemptFilter{}, 0)
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	var buf bytes.Buffer
	if err := RenderSummary(&buf, report.Attempts, false); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if err := RenderCurves(&buf, report.Attempts, 2); err != nil {
		t.Fatalf("curves: %v", err)
	}
	if err := RenderCardTable(&buf, report.Cards); err != nil {
		t.Fatalf("cards: %v", err)
	}
	if err := RenderWordTable(&buf, report.Words, 5); err != nil {
		t.Fatalf("words: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Attempts: 4",
		"Avg Score: 72.5",
		"Best Score: 95",
		"Labels: Excellent 1, Very Good 1, Fair 1, Poor 1",
		"Learning Curves (window 2)",
		"Per-Card",
		"Hardest Words",
		"mat",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderSummary(&buf, nil, false); err != nil {
		t.Fatalf("summary: %v", err)
	}
	if buf.String() != "No attempts found.\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestMovingAverageAndSparkline(t *testing.T) {
	got := MovingAverage([]float64{10, 20, 30, 40}, 2)
	want := []float64{10, 15, 25, 35}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("moving average = %v, want %v", got, want)
		}
	}
	if s := Sparkline([]float64{0, 50, 100}, 0, 100); s != " +@" {
		t.Fatalf("sparkline = %q", s)
	}
	if s := Sparkline([]float64{3, 3}, 3, 3); s != "++" {
		t.Fatalf("flat sparkline = %q", s)
	}
}
