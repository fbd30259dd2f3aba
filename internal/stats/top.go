package stats

import (
	"sort"

	"github.com/verte-zerg/readaloud/internal/model"
)

// TopMissedWords returns up to n words that were missed at least once,
// highest miss rate first.
func TopMissedWords(aggs []model.WordAggregate, n int) []model.WordAggregate {
	if n <= 0 || len(aggs) == 0 {
		return nil
	}
	items := make([]model.WordAggregate, 0, len(aggs))
	for _, agg := range aggs {
		if agg.Misses > 0 && agg.Attempts > 0 {
			items = append(items, agg)
		}
	}
	rate := func(a model.WordAggregate) float64 { return float64(a.Misses) / float64(a.Attempts) }
	sort.Slice(items, func(i, j int) bool {
		ri, rj := rate(items[i]), rate(items[j])
		if ri != rj {
			return ri > rj
		}
		if items[i].Misses != items[j].Misses {
			return items[i].Misses > items[j].Misses
		}
		return items[i].Word < items[j].Word
	})
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}
