package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/verte-zerg/readaloud/internal/assess"
	"github.com/verte-zerg/readaloud/internal/config"
	"github.com/verte-zerg/readaloud/internal/content"
	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/session"
	"github.com/verte-zerg/readaloud/internal/stats"
	"github.com/verte-zerg/readaloud/internal/store"
)

var (
	statsLearner     string
	statsLang        string
	statsSince       string
	statsLast        int
	statsCurveWindow int
	statsWordTop     int

	deckLang string
	deckList bool

	scoreExpected   string
	scoreSpoken     string
	scoreLang       string
	scoreDuration   time.Duration
	scorePauses     time.Duration
	scoreConfidence float64
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show progress stats",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().StringVar(&statsLearner, "learner", "", "learner filter")
	cmd.Flags().StringVar(&statsLang, "lang", "", "language filter")
	cmd.Flags().StringVar(&statsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&statsLast, "last", 0, "limit to last N attempts")
	cmd.Flags().IntVar(&statsCurveWindow, "curve-window", defaultCurveWindow, "moving average window")
	cmd.Flags().IntVar(&statsWordTop, "words", defaultWordTop, "number of hardest words to list")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	filter, err := statsFilter()
	if err != nil {
		return err
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	report, err := stats.BuildReport(cmd.Context(), st, filter, statsCurveWindow)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	return renderStats(cmd.OutOrStdout(), report)
}

func statsFilter() (model.AttemptFilter, error) {
	filter := model.AttemptFilter{LearnerID: statsLearner, Last: statsLast}
	if statsLast < 0 {
		return filter, fmt.Errorf("--last must be >= 0")
	}
	if statsLang != "" {
		lang, err := model.ParseLanguage(statsLang)
		if err != nil {
			return filter, fmt.Errorf("invalid --lang: %w", err)
		}
		filter.Language = lang
	}
	if statsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", statsSince, time.Local)
		if err != nil {
			return filter, fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}
	return filter, nil
}

func renderStats(w io.Writer, report stats.Report) error {
	color := stats.UseColor(w)
	if err := stats.RenderSummary(w, report.Attempts, color); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if len(report.Attempts) == 0 {
		return nil
	}
	if err := stats.RenderCurves(w, report.Attempts, statsCurveWindow); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderCardTable(w, report.Cards); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if _, err := fmt.Fprintf(w, "Recent (last %d attempts)\n", max(statsCurveWindow, 1)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderCardTable(w, report.CardsWindow); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := stats.RenderWordTable(w, report.Words, statsWordTop); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newDeckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deck [name|path]",
		Short: "Print a deck or list available decks",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDeckCmd,
	}
	cmd.Flags().StringVar(&deckLang, "lang", defaultLang, "language of plain-text decks")
	cmd.Flags().BoolVar(&deckList, "list", false, "list decks in the decks directory")
	return cmd
}

func runDeckCmd(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if deckList {
		names, err := content.ListDecks(config.DefaultDeckDir())
		if err != nil {
			return err
		}
		names = append([]string{"(built-in) " + content.BuiltinDeck().Name}, names...)
		for _, name := range names {
			if _, err := fmt.Fprintln(out, name); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
		return nil
	}

	lang, err := model.ParseLanguage(deckLang)
	if err != nil {
		return fmt.Errorf("invalid --lang: %w", err)
	}
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	deck, fallback := loadDeck(name, lang)
	if fallback {
		logErrf("deck %q could not be loaded; showing the built-in deck\n", name)
	}
	return printDeck(out, deck)
}

// loadDeck resolves name in the decks directory and loads it, falling back to
// the built-in deck when it cannot be found or parsed.
func loadDeck(name string, lang model.Language) (content.Deck, bool) {
	path, err := content.Resolve(config.DefaultDeckDir(), name)
	if err != nil {
		return content.BuiltinDeck(), true
	}
	return content.LoadOrDefault(path, lang, nil)
}

func printDeck(w io.Writer, deck content.Deck) error {
	if _, err := fmt.Fprintf(w, "%s (%d cards)\n", deck.Name, len(deck.Cards)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	for _, lang := range []model.Language{model.English, model.Filipino} {
		cards := deck.ForLanguage(lang)
		if len(cards) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n[%s]\n", lang); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		for _, c := range cards {
			if _, err := fmt.Fprintf(w, "%3d. %s\n", c.Index+1, c.Utterance.Text); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}
		}
	}
	return nil
}

func newLearnersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learners [deck]",
		Short: "List the learner roster with recorded attempts",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLearnersCmd,
	}
	return cmd
}

func runLearnersCmd(cmd *cobra.Command, args []string) error {
	name := ""
	if len(args) == 1 {
		name = args[0]
	}
	deck, fallback := loadDeck(name, model.English)
	if fallback {
		logErrf("deck %q could not be loaded; showing the built-in roster\n", name)
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	counts, err := st.LearnerCounts(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to count attempts: %w", err)
	}
	return printLearners(cmd.OutOrStdout(), deck.Learners, counts)
}

// printLearners lists the roster in order, then ids that only appear in the
// attempt history.
func printLearners(w io.Writer, roster []model.Learner, counts map[string]int) error {
	rows := make([]model.Learner, 0, len(roster)+len(counts))
	known := make(map[string]bool, len(roster))
	for _, l := range roster {
		rows = append(rows, l)
		known[l.ID] = true
	}
	var extra []string
	for id := range counts {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		rows = append(rows, model.Learner{ID: id})
	}
	if _, err := fmt.Fprintf(w, "%-12s %-20s %8s\n", "ID", "Name", "Attempts"); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	for _, l := range rows {
		name := l.Name
		if name == "" {
			name = "-"
		}
		if _, err := fmt.Fprintf(w, "%-12s %-20s %8d\n", l.ID, name, counts[l.ID]); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newScoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a transcript offline against an expected sentence",
		Args:  cobra.NoArgs,
		RunE:  runScoreCmd,
	}
	cmd.Flags().StringVar(&scoreExpected, "expected", "", "sentence that should have been read")
	cmd.Flags().StringVar(&scoreSpoken, "spoken", "", "transcript of what was read")
	cmd.Flags().StringVar(&scoreLang, "lang", defaultLang, "language: en or fil")
	cmd.Flags().DurationVar(&scoreDuration, "duration", 0, "speech duration, e.g. 2.5s")
	cmd.Flags().DurationVar(&scorePauses, "pauses", 0, "total pause time within the speech")
	cmd.Flags().Float64Var(&scoreConfidence, "confidence", model.DefaultConfidence, "recognizer confidence (0-1)")
	return cmd
}

func runScoreCmd(cmd *cobra.Command, _ []string) error {
	if scoreExpected == "" {
		return fmt.Errorf("--expected must not be empty")
	}
	if scoreDuration < 0 || scorePauses < 0 {
		return fmt.Errorf("--duration and --pauses must be >= 0")
	}
	if scoreConfidence < 0 || scoreConfidence > 1 {
		return fmt.Errorf("--confidence must be between 0 and 1")
	}
	lang, err := model.ParseLanguage(scoreLang)
	if err != nil {
		return fmt.Errorf("invalid --lang: %w", err)
	}

	var activity model.VoiceActivityStats
	if scoreDuration > 0 {
		start := time.Unix(0, 0)
		activity = model.VoiceActivityStats{
			SpeechStart:        start,
			SpeechEnd:          start.Add(scoreDuration),
			CumulativeSilentMs: scorePauses.Milliseconds(),
		}
	}
	res, err := assess.Evaluate(
		model.ExpectedUtterance{Text: scoreExpected, Language: lang},
		model.TranscriptionResult{Text: scoreSpoken, Confidence: scoreConfidence, HasConfidence: true},
		activity,
	)
	if errors.Is(err, assess.ErrNoSpeech) {
		return errors.New(session.FeedbackNoSpeech.Message())
	}
	if err != nil {
		return err
	}
	return printReport(cmd.OutOrStdout(), res.Report, res.Alignment.Entries)
}

func printReport(w io.Writer, r model.ScoreReport, words []model.WordAlignmentEntry) error {
	color := stats.UseColor(w)
	lines := []string{
		fmt.Sprintf("Average:          %d %s", r.AverageScore, stats.StyleLabel(r.AverageLabel, color)),
		fmt.Sprintf("Word accuracy:    %.1f%%", r.WordAccuracy),
		fmt.Sprintf("Phoneme accuracy: %.1f%%", r.PhonemeAccuracy),
		fmt.Sprintf("Pronunciation:    %d", r.PronunciationScore),
		fmt.Sprintf("Fluency:          %d", r.FluencyScore),
		fmt.Sprintf("Speed:            %d wpm", r.WordsPerMinute),
		r.Remarks,
	}
	if len(words) > 0 {
		lines = append(lines, "")
		for _, e := range words {
			heard := e.MatchedWord
			if heard == "" {
				heard = "-"
			}
			line := fmt.Sprintf("  %-16s %-16s %6.1f%%", e.ExpectedWord, heard, e.SimilarityPercent)
			if e.SoundsAlike {
				line += "  sounds alike"
			}
			lines = append(lines, line)
		}
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}
