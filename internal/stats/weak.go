package stats

import "github.com/verte-zerg/readaloud/internal/model"

// SelectWeakCards returns the indices of the lowest-scoring cards.
func SelectWeakCards(aggs []model.CardAggregate, top int) map[int]struct{} {
	weakSet := map[int]struct{}{}
	if len(aggs) == 0 {
		return weakSet
	}
	candidates := make([]model.CardAggregate, len(aggs))
	copy(candidates, aggs)
	sortWeakest(candidates)
	if top <= 0 || top > len(candidates) {
		top = len(candidates)
	}
	for i := 0; i < top; i++ {
		weakSet[candidates[i].CardIndex] = struct{}{}
	}
	return weakSet
}
