package stats

import (
	"context"

	"github.com/verte-zerg/readaloud/internal/model"
)

// Source is the read side of attempt persistence.
type Source interface {
	ListAttempts(ctx context.Context, f model.AttemptFilter) ([]model.AttemptRecord, error)
	CardAggregates(ctx context.Context, f model.AttemptFilter) ([]model.CardAggregate, error)
	WordAggregates(ctx context.Context, f model.AttemptFilter) ([]model.WordAggregate, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Attempts    []model.AttemptRecord
	Cards       []model.CardAggregate
	CardsWindow []model.CardAggregate
	Words       []model.WordAggregate
}

// BuildReport loads and prepares data for stats rendering. CardsWindow only
// covers the most recent window attempts.
func BuildReport(ctx context.Context, src Source, f model.AttemptFilter, window int) (Report, error) {
	attempts, err := src.ListAttempts(ctx, f)
	if err != nil {
		return Report{}, err
	}
	cards, err := src.CardAggregates(ctx, f)
	if err != nil {
		return Report{}, err
	}
	windowed := f
	if window > 0 && (windowed.Last == 0 || window < windowed.Last) {
		windowed.Last = window
	}
	cardsWindow, err := src.CardAggregates(ctx, windowed)
	if err != nil {
		return Report{}, err
	}
	words, err := src.WordAggregates(ctx, f)
	if err != nil {
		return Report{}, err
	}
	return Report{
		Attempts:    attempts,
		Cards:       cards,
		CardsWindow: cardsWindow,
		Words:       words,
	}, nil
}
