// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/verte-zerg/readaloud/internal/model"
)

const sparkChars = " .:-=+*#%@"

var labelOrder = []model.Label{
	model.LabelExcellent,
	model.LabelVeryGood,
	model.LabelGood,
	model.LabelFair,
	model.LabelPoor,
}

var labelColors = map[model.Label]lipgloss.Color{
	model.LabelExcellent: lipgloss.Color("10"),
	model.LabelVeryGood:  lipgloss.Color("14"),
	model.LabelGood:      lipgloss.Color("12"),
	model.LabelFair:      lipgloss.Color("11"),
	model.LabelPoor:      lipgloss.Color("9"),
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i := range values {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		out[i] = sum / float64(min(i+1, window))
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline scaled to 0..100.
func Sparkline(values []float64, lo, hi float64) string {
	if len(values) == 0 {
		return ""
	}
	if hi-lo < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - lo) / (hi - lo)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// UseColor reports whether w is a terminal that should get styled output.
func UseColor(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// StyleLabel colours a label when color is set.
func StyleLabel(label model.Label, color bool) string {
	if !color {
		return string(label)
	}
	c, ok := labelColors[label]
	if !ok {
		return string(label)
	}
	return lipgloss.NewStyle().Foreground(c).Bold(true).Render(string(label))
}

// RenderSummary prints averages, bests and the label distribution.
func RenderSummary(w io.Writer, attempts []model.AttemptRecord, color bool) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(w, "No attempts found.")
		return err
	}
	var sumAvg, sumFluency, sumPron, sumWPM float64
	best := 0
	labels := map[model.Label]int{}
	for _, a := range attempts {
		r := a.Report
		sumAvg += float64(r.AverageScore)
		sumFluency += float64(r.FluencyScore)
		sumPron += float64(r.PronunciationScore)
		sumWPM += float64(r.WordsPerMinute)
		best = max(best, r.AverageScore)
		labels[r.AverageLabel]++
	}
	n := float64(len(attempts))
	lines := []string{
		"Summary",
		fmt.Sprintf("Attempts: %d", len(attempts)),
		fmt.Sprintf("Avg Score: %.1f", sumAvg/n),
		fmt.Sprintf("Best Score: %d", best),
		fmt.Sprintf("Avg Pronunciation: %.1f", sumPron/n),
		fmt.Sprintf("Avg Fluency: %.1f", sumFluency/n),
		fmt.Sprintf("Avg WPM: %.1f", sumWPM/n),
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	var parts []string
	for _, l := range labelOrder {
		if labels[l] > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", StyleLabel(l, color), labels[l]))
		}
	}
	if _, err := fmt.Fprintf(w, "Labels: %s\n\n", strings.Join(parts, ", ")); err != nil {
		return err
	}
	return nil
}

// RenderCurves prints moving-average sparklines of the main scores.
func RenderCurves(w io.Writer, attempts []model.AttemptRecord, window int) error {
	if len(attempts) == 0 {
		return nil
	}
	avg := make([]float64, len(attempts))
	pron := make([]float64, len(attempts))
	flu := make([]float64, len(attempts))
	wpm := make([]float64, len(attempts))
	for i, a := range attempts {
		avg[i] = float64(a.Report.AverageScore)
		pron[i] = float64(a.Report.PronunciationScore)
		flu[i] = float64(a.Report.FluencyScore)
		wpm[i] = float64(a.Report.WordsPerMinute)
	}
	if _, err := fmt.Fprintf(w, "Learning Curves (window %d)\n", max(window, 1)); err != nil {
		return err
	}
	series := []struct {
		name   string
		values []float64
		hi     float64
	}{
		{"Average", avg, 100},
		{"Pronunciation", pron, 100},
		{"Fluency", flu, 100},
		{"WPM", wpm, seriesMax(wpm)},
	}
	rows := make([][]string, 0, len(series))
	for _, s := range series {
		smoothed := MovingAverage(s.values, window)
		rows = append(rows, []string{
			s.name,
			Sparkline(smoothed, 0, s.hi),
			fmt.Sprintf("%.1f", smoothed[len(smoothed)-1]),
		})
	}
	for _, line := range formatTable(nil, rows, map[int]bool{2: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func seriesMax(values []float64) float64 {
	hi := 0.0
	for _, v := range values {
		hi = max(hi, v)
	}
	return hi
}

// RenderCardTable prints per-card aggregates, weakest first.
func RenderCardTable(w io.Writer, aggs []model.CardAggregate) error {
	if len(aggs) == 0 {
		_, err := fmt.Fprintln(w, "No card stats found.")
		return err
	}
	rows := make([]model.CardAggregate, len(aggs))
	copy(rows, aggs)
	sortWeakest(rows)

	if _, err := fmt.Fprintln(w, "Per-Card"); err != nil {
		return err
	}
	headers := []string{"Card", "Text", "Attempts", "Avg Score", "Best", "Avg Fluency"}
	tableRows := make([][]string, 0, len(rows))
	for _, r := range rows {
		tableRows = append(tableRows, []string{
			fmt.Sprintf("%d", r.CardIndex+1),
			truncate(r.ExpectedText, 40),
			fmt.Sprintf("%d", r.Attempts),
			fmt.Sprintf("%.1f", r.AvgScore),
			fmt.Sprintf("%d", r.BestScore),
			fmt.Sprintf("%.1f", r.AvgFluency),
		})
	}
	for _, line := range formatTable(headers, tableRows, map[int]bool{0: true, 2: true, 3: true, 4: true, 5: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderWordTable prints the most often missed words.
func RenderWordTable(w io.Writer, aggs []model.WordAggregate, top int) error {
	words := TopMissedWords(aggs, top)
	if len(words) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Hardest Words"); err != nil {
		return err
	}
	headers := []string{"Word", "Seen", "Missed", "Avg Similarity"}
	rows := make([][]string, 0, len(words))
	for _, a := range words {
		rows = append(rows, []string{
			a.Word,
			fmt.Sprintf("%d", a.Attempts),
			fmt.Sprintf("%d", a.Misses),
			fmt.Sprintf("%.1f%%", a.AvgSimilarity()),
		})
	}
	for _, line := range formatTable(headers, rows, map[int]bool{1: true, 2: true, 3: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func sortWeakest(aggs []model.CardAggregate) {
	sort.SliceStable(aggs, func(i, j int) bool {
		if aggs[i].AvgScore == aggs[j].AvgScore {
			return aggs[i].CardIndex < aggs[j].CardIndex
		}
		return aggs[i].AvgScore < aggs[j].AvgScore
	})
}
