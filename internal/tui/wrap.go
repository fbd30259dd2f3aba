package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/readaloud/internal/align"
	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/text"
)

type styledWord struct {
	s     string
	width int
}

// buildStyledWords colours each display token of expected by the worst match
// class of the normalized words it contains. Without entries every token is
// rendered with base. Tokens that normalize to nothing keep base too.
func buildStyledWords(expected string, entries []model.WordAlignmentEntry, base lipgloss.Style) []styledWord {
	tokens := strings.Fields(expected)
	out := make([]styledWord, 0, len(tokens))
	next := 0
	for _, tok := range tokens {
		style := base
		n := len(text.Words(tok))
		if len(entries) > 0 && n > 0 {
			end := min(next+n, len(entries))
			if next < end {
				style = classStyle(worstClass(entries[next:end]))
			}
			next = end
		}
		out = append(out, styledWord{
			s:     style.Render(tok),
			width: runewidth.StringWidth(tok),
		})
	}
	return out
}

func worstClass(entries []model.WordAlignmentEntry) align.Class {
	worst := align.ExactMatch
	for _, e := range entries {
		if c := align.Classify(e.SimilarityPercent); c < worst {
			worst = c
		}
	}
	return worst
}

func classStyle(c align.Class) lipgloss.Style {
	switch c {
	case align.ExactMatch:
		return exactStyle
	case align.SoftMatch:
		return softStyle
	default:
		return missStyle
	}
}

// wrapWords lays words out on lines of at most width cells. A word wider than
// width gets a line of its own.
func wrapWords(words []styledWord, width int) string {
	var out strings.Builder
	lineWidth := 0
	for i, w := range words {
		if i > 0 {
			if width > 0 && lineWidth+1+w.width > width {
				out.WriteByte('\n')
				lineWidth = 0
			} else {
				out.WriteByte(' ')
				lineWidth++
			}
		}
		out.WriteString(w.s)
		lineWidth += w.width
	}
	return out.String()
}

// renderMeter draws levelDB on a bar of width cells spanning meterFloorDB to
// 0 dB. The cell holding thresholdDB is marked when the level is below it.
func renderMeter(levelDB, thresholdDB float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := cellFor(levelDB, width)
	mark := cellFor(thresholdDB, width)
	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i < filled:
			b.WriteRune('█')
		case i == mark:
			b.WriteRune('│')
		default:
			b.WriteRune('░')
		}
	}
	return b.String()
}

const meterFloorDB = -80.0

func cellFor(db float64, width int) int {
	if db <= meterFloorDB {
		return 0
	}
	if db >= 0 {
		return width
	}
	return int((db - meterFloorDB) / -meterFloorDB * float64(width))
}
