package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/readaloud/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "readaloud.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return s
}

var base = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func attempt(learner string, lang model.Language, card, avg int, at time.Time) model.AttemptRecord {
	return model.AttemptRecord{
		LearnerID:    learner,
		RecordedAt:   at,
		CardIndex:    card,
		ExpectedText: "card text",
		Language:     lang,
		Confidence:   0.8,
		Report: model.ScoreReport{
			WordAccuracy:       90,
			PhonemeAccuracy:    85.5,
			FluencyScore:       avg - 5,
			WordsPerMinute:     120,
			PronunciationScore: avg,
			AverageScore:       avg,
			AverageLabel:       model.LabelGood,
			Remarks:            "Good job.",
		},
	}
}

func TestSaveAndListAttempts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	rec := attempt("ana", model.English, 3, 78, base)
	rec.Words = []model.WordAlignmentEntry{
		{ExpectedWord: "the", MatchedWord: "the", SimilarityPercent: 100},
		{ExpectedWord: "mat", MatchedWord: "map", SimilarityPercent: 66.67, SoundsAlike: true},
	}
	if err := s.SaveAttempt(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.ListAttempts(ctx, model.AttemptFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("attempts = %d, want 1", len(got))
	}
	a := got[0]
	if a.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !a.RecordedAt.Equal(base) || a.LearnerID != "ana" || a.CardIndex != 3 || a.Language != model.English {
		t.Fatalf("attempt = %+v", a)
	}
	if a.Report.PhonemeAccuracy != 85.5 || a.Report.AverageLabel != model.LabelGood || a.Report.FluencyScore != 73 {
		t.Fatalf("report = %+v", a.Report)
	}

	words, err := s.WordAggregates(ctx, model.AttemptFilter{LearnerID: "ana"})
	if err != nil {
		t.Fatalf("words: %v", err)
	}
	if len(words) != 2 || words[0].Word != "mat" || words[1].Word != "the" {
		t.Fatalf("words = %+v", words)
	}
	if words[0].Misses != 0 || words[0].AvgSimilarity() != 66.67 {
		t.Fatalf("mat aggregate = %+v", words[0])
	}
}

func TestListAttemptsFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	recs := []model.AttemptRecord{
		attempt("ana", model.English, 0, 60, base),
		attempt("ana", model.English, 1, 70, base.Add(time.Hour)),
		attempt("ana", model.Filipino, 0, 80, base.Add(2*time.Hour)),
		attempt("ben", model.English, 0, 90, base.Add(3*time.Hour)),
		attempt("ana", model.English, 2, 95, base.Add(4*time.Hour)),
	}
	for _, r := range recs {
		if err := s.SaveAttempt(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	got, err := s.ListAttempts(ctx, model.AttemptFilter{LearnerID: "ana", Language: model.English})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 || got[0].Report.AverageScore != 60 || got[2].Report.AverageScore != 95 {
		t.Fatalf("filtered = %+v", got)
	}

	since := base.Add(90 * time.Minute)
	got, err = s.ListAttempts(ctx, model.AttemptFilter{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("since = %d attempts, want 3", len(got))
	}

	got, err = s.ListAttempts(ctx, model.AttemptFilter{LearnerID: "ana", Last: 2})
	if err != nil {
		t.Fatalf("list last: %v", err)
	}
	if len(got) != 2 || got[0].Report.AverageScore != 80 || got[1].Report.AverageScore != 95 {
		t.Fatalf("last = %+v", got)
	}

	counts, err := s.LearnerCounts(ctx)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["ana"] != 4 || counts["ben"] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestCardAggregatesAndWeakCards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	scores := []struct {
		card int
		avg  int
	}{{0, 90}, {1, 40}, {0, 70}, {2, 65}, {1, 60}}
	for i, sc := range scores {
		if err := s.SaveAttempt(ctx, attempt("ana", model.English, sc.card, sc.avg, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	aggs, err := s.CardAggregates(ctx, model.AttemptFilter{LearnerID: "ana"})
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if len(aggs) != 3 {
		t.Fatalf("aggregates = %+v", aggs)
	}
	if aggs[0].CardIndex != 0 || aggs[0].Attempts != 2 || aggs[0].AvgScore != 80 || aggs[0].BestScore != 90 {
		t.Fatalf("card 0 = %+v", aggs[0])
	}

	weak, err := s.WeakCards(ctx, "ana", model.English, 10)
	if err != nil {
		t.Fatalf("weak: %v", err)
	}
	if weak[0].CardIndex != 1 || weak[1].CardIndex != 2 || weak[2].CardIndex != 0 {
		t.Fatalf("weak order = %+v", weak)
	}

	weak, err = s.WeakCards(ctx, "ana", model.English, 2)
	if err != nil {
		t.Fatalf("weak window: %v", err)
	}
	if len(weak) != 2 || weak[0].CardIndex != 1 || weak[0].AvgScore != 60 {
		t.Fatalf("windowed weak = %+v", weak)
	}
	if none, err := s.WeakCards(ctx, "ana", model.English, 0); err != nil || none != nil {
		t.Fatalf("zero window = %v, %v", none, err)
	}
}
