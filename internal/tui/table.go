package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/verte-zerg/readaloud/internal/align"
	"github.com/verte-zerg/readaloud/internal/model"
)

var wordColumns = []table.Column{
	{Title: "Expected", Width: 16},
	{Title: "Heard", Width: 16},
	{Title: "Similarity", Width: 10},
	{Title: "Match", Width: 6},
}

const maxTableRows = 8

func newWordTable() table.Model {
	t := table.New(
		table.WithColumns(wordColumns),
		table.WithHeight(maxTableRows),
		table.WithFocused(false),
	)
	t.SetStyles(wordTableStyles())
	return t
}

func tableWidth() int {
	total := 0
	for _, c := range wordColumns {
		total += c.Width + 1
	}
	return total
}

func alignmentRows(entries []model.WordAlignmentEntry) []table.Row {
	rows := make([]table.Row, 0, len(entries))
	for _, e := range entries {
		heard := e.MatchedWord
		if heard == "" {
			heard = "-"
		}
		rows = append(rows, table.Row{
			e.ExpectedWord,
			heard,
			fmt.Sprintf("%.1f%%", e.SimilarityPercent),
			matchLabel(e),
		})
	}
	return rows
}

func matchLabel(e model.WordAlignmentEntry) string {
	switch align.Classify(e.SimilarityPercent) {
	case align.ExactMatch:
		return "exact"
	case align.SoftMatch:
		if e.SoundsAlike {
			return "alike"
		}
		return "soft"
	default:
		return "miss"
	}
}

func wordTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		PaddingLeft(0)
	styles.Cell = styles.Cell.PaddingLeft(0)
	styles.Selected = styles.Cell
	return styles
}
