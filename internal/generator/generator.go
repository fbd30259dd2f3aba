// Package generator orders deck cards for a practice session.
package generator

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/verte-zerg/readaloud/internal/model"
)

// Generator produces card orderings.
type Generator struct {
	rnd *rand.Rand
}

// New returns a Generator seeded with the current time.
func New() *Generator {
	return NewWithSeed(time.Now().UnixNano())
}

// NewWithSeed returns a deterministic Generator.
func NewWithSeed(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Order returns a copy of cards, shuffled when shuffle is set.
func (g *Generator) Order(cards []model.Card, shuffle bool) []model.Card {
	out := make([]model.Card, len(cards))
	copy(out, cards)
	if shuffle {
		g.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	}
	return out
}

// OrderWeighted returns every card once, biased so that weak cards tend to
// come first. A weak card weighs 1+factor, others weigh 1.
func (g *Generator) OrderWeighted(cards []model.Card, weak map[int]struct{}, factor float64) []model.Card {
	type keyed struct {
		card model.Card
		key  float64
	}
	items := make([]keyed, len(cards))
	for i, c := range cards {
		w := 1.0
		if _, ok := weak[c.Index]; ok {
			w += max(factor, 0)
		}
		// Weighted sampling without replacement: sort by u^(1/w) descending.
		u := g.rnd.Float64()
		items[i] = keyed{card: c, key: math.Pow(u, 1/w)}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].key > items[j].key })
	out := make([]model.Card, len(items))
	for i, it := range items {
		out[i] = it.card
	}
	return out
}
