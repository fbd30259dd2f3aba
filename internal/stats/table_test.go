package stats

import "testing"

func TestFormatTableAlignsColumns(t *testing.T) {
	headers := []string{"Word", "Seen", "Missed"}
	rows := [][]string{
		{"salamat", "12", "3"},
		{"ñga", "8", "10"},
	}
	rightAlign := map[int]bool{1: true, 2: true}

	lines := formatTable(headers, rows, rightAlign)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "Word    Seen Missed" {
		t.Fatalf("unexpected header line: %q", lines[0])
	}
	if lines[1] != "salamat   12      3" {
		t.Fatalf("unexpected row line: %q", lines[1])
	}
	if lines[2] != "ñga        8     10" {
		t.Fatalf("unexpected row line: %q", lines[2])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	if got := truncate("The sun rises in the east", 10); got != "The sun r…" {
		t.Fatalf("truncate long = %q", got)
	}
}
