package tui

import (
	"context"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/session"
)

type fakeSession struct {
	mu     sync.Mutex
	starts []int
	resets int
	stops  int
	snap   session.Snapshot
	report *model.ScoreReport
	ch     chan session.Snapshot
}

func (f *fakeSession) StartAttempt(_ context.Context, cardIndex int, _ model.ExpectedUtterance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, cardIndex)
	return nil
}

func (f *fakeSession) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.snap = session.Snapshot{State: session.Idle}
	return nil
}

func (f *fakeSession) StopAttempt(context.Context) (*model.ScoreReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.report, nil
}

func (f *fakeSession) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) Subscribe() (<-chan session.Snapshot, func()) {
	f.ch = make(chan session.Snapshot, 1)
	return f.ch, func() {}
}

func testCards() []model.Card {
	return []model.Card{
		{Index: 4, Utterance: model.ExpectedUtterance{Text: "The cat sat.", Language: model.English}},
		{Index: 7, Utterance: model.ExpectedUtterance{Text: "Magandang umaga po.", Language: model.Filipino}},
	}
}

func newTestModel(t *testing.T) (*Model, *fakeSession) {
	t.Helper()
	fs := &fakeSession{}
	m, err := NewModel(fs, Options{Cards: testCards(), Deck: "basics", Learner: "ana", ThresholdDB: -50})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	return m, fs
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func entry(word string, sim float64) model.WordAlignmentEntry {
	return model.WordAlignmentEntry{ExpectedWord: word, MatchedWord: word, SimilarityPercent: sim}
}

func TestNewModelRequiresCards(t *testing.T) {
	if _, err := NewModel(&fakeSession{}, Options{}); err == nil {
		t.Fatalf("expected error without cards")
	}
	if _, err := NewModel(nil, Options{Cards: testCards()}); err == nil {
		t.Fatalf("expected error without session")
	}
}

func TestBuildStyledWordsClassifiesTokens(t *testing.T) {
	entries := []model.WordAlignmentEntry{entry("hello", 100), entry("big", 70), entry("world", 10)}
	words := buildStyledWords("Hello, big - world!", entries, textStyle)
	if len(words) != 4 {
		t.Fatalf("expected 4 tokens, got %d", len(words))
	}
	want := []string{
		exactStyle.Render("Hello,"),
		softStyle.Render("big"),
		textStyle.Render("-"),
		missStyle.Render("world!"),
	}
	for i, w := range want {
		if words[i].s != w {
			t.Fatalf("token %d = %q, want %q", i, words[i].s, w)
		}
	}
}

func TestBuildStyledWordsJoinedTokenUsesWorstClass(t *testing.T) {
	entries := []model.WordAlignmentEntry{entry("a", 100), entry("well", 100), entry("known", 20)}
	words := buildStyledWords("a well-known", entries, textStyle)
	if words[1].s != missStyle.Render("well-known") {
		t.Fatalf("expected miss style for joined token, got %q", words[1].s)
	}
}

func TestBuildStyledWordsWithoutEntries(t *testing.T) {
	words := buildStyledWords("naïve 学生", nil, hintStyle)
	if words[0].s != hintStyle.Render("naïve") || words[0].width != 5 {
		t.Fatalf("unexpected first token %+v", words[0])
	}
	if words[1].width != 4 {
		t.Fatalf("expected wide runes to count double, got %d", words[1].width)
	}
}

func TestWrapWords(t *testing.T) {
	words := []styledWord{{s: "aaa", width: 3}, {s: "bb", width: 2}, {s: "cccc", width: 4}}
	if got := wrapWords(words, 6); got != "aaa bb\ncccc" {
		t.Fatalf("wrap = %q", got)
	}
	if got := wrapWords(words, 0); got != "aaa bb cccc" {
		t.Fatalf("unbounded wrap = %q", got)
	}
	if got := wrapWords(words[:2], 2); got != "aaa\nbb" {
		t.Fatalf("narrow wrap = %q", got)
	}
}

func TestRenderMeter(t *testing.T) {
	cases := []struct {
		level float64
		want  string
	}{
		{-120, "░░░│░░░░"},
		{-40, "████░░░░"},
		{3, "████████"},
	}
	for _, tc := range cases {
		if got := renderMeter(tc.level, -50, 8); got != tc.want {
			t.Fatalf("renderMeter(%v) = %q, want %q", tc.level, got, tc.want)
		}
	}
	if renderMeter(-10, -50, 0) != "" {
		t.Fatalf("expected empty meter for zero width")
	}
}

func TestKeysDriveSession(t *testing.T) {
	m, fs := newTestModel(t)

	cmd := m.handleKey(key(" "))
	if cmd == nil {
		t.Fatalf("expected start command")
	}
	m.Update(cmd())
	if len(fs.starts) != 1 || fs.starts[0] != 4 {
		t.Fatalf("starts = %v, want [4]", fs.starts)
	}

	m.applySnapshot(session.Snapshot{State: session.Listening})
	if cmd := m.handleKey(key(" ")); cmd != nil {
		t.Fatalf("expected no start while listening")
	}
	if m.status == "" {
		t.Fatalf("expected busy status")
	}

	m.handleKey(key("n"))
	if fs.resets != 1 || m.pos != 1 {
		t.Fatalf("after next: resets=%d pos=%d", fs.resets, m.pos)
	}
	m.handleKey(key("right"))
	if m.pos != 0 {
		t.Fatalf("expected wrap to first card, pos=%d", m.pos)
	}
	m.handleKey(key("p"))
	if m.pos != 1 || fs.resets != 3 {
		t.Fatalf("after previous: resets=%d pos=%d", fs.resets, m.pos)
	}
}

func TestQuitStopsSession(t *testing.T) {
	m, fs := newTestModel(t)
	fs.report = &model.ScoreReport{AverageScore: 88, AverageLabel: model.LabelVeryGood}

	cmd := m.handleKey(key("q"))
	if cmd == nil {
		t.Fatalf("expected stop command")
	}
	_, quit := m.Update(cmd())
	if quit == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := quit().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	report, err := m.Result()
	if err != nil || report == nil || report.AverageScore != 88 {
		t.Fatalf("result = %+v, %v", report, err)
	}
	if cmd := m.handleKey(key(" ")); cmd != nil {
		t.Fatalf("expected keys to be ignored while stopping")
	}
	if fs.stops != 1 {
		t.Fatalf("stops = %d, want 1", fs.stops)
	}
}

func TestApplySnapshotCountsEachReportOnce(t *testing.T) {
	m, _ := newTestModel(t)
	feedback := func(score int) session.Snapshot {
		return session.Snapshot{
			State:     session.Feedback,
			Report:    &model.ScoreReport{AverageScore: score},
			Alignment: []model.WordAlignmentEntry{entry("the", 100)},
		}
	}
	m.applySnapshot(session.Snapshot{State: session.Listening})
	m.applySnapshot(feedback(80))
	m.applySnapshot(feedback(80))
	m.applySnapshot(session.Snapshot{State: session.Listening})
	m.applySnapshot(feedback(90))

	if m.attempts != 2 || m.best != 90 {
		t.Fatalf("attempts=%d best=%d", m.attempts, m.best)
	}
	if got := m.renderFooter(); !strings.Contains(got, "Attempts 2 · Avg 85.0 · Best 90") {
		t.Fatalf("footer = %q", got)
	}
	if rows := m.words.Rows(); len(rows) != 1 || rows[0][3] != "exact" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestViewShowsFeedbackMessage(t *testing.T) {
	m, _ := newTestModel(t)
	m.applySnapshot(session.Snapshot{
		State:   session.Feedback,
		Message: session.FeedbackNoSpeech.Message(),
	})
	view := m.View()
	for _, want := range []string{"Card 1/2", "basics", "The cat sat.", "No speech was detected"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestMatchLabel(t *testing.T) {
	alike := model.WordAlignmentEntry{SimilarityPercent: 75, SoundsAlike: true}
	if got := matchLabel(alike); got != "alike" {
		t.Fatalf("matchLabel = %q", got)
	}
	if got := matchLabel(entry("x", 59.9)); got != "miss" {
		t.Fatalf("matchLabel = %q", got)
	}
}
