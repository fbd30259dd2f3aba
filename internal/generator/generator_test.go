package generator

import (
	"testing"

	"github.com/verte-zerg/readaloud/internal/model"
)

func deck(n int) []model.Card {
	cards := make([]model.Card, n)
	for i := range cards {
		cards[i] = model.Card{Index: i, Utterance: model.ExpectedUtterance{Text: "card", Language: model.English}}
	}
	return cards
}

func TestOrderKeepsEveryCard(t *testing.T) {
	g := NewWithSeed(7)
	cards := deck(8)
	plain := g.Order(cards, false)
	for i, c := range plain {
		if c.Index != i {
			t.Fatalf("unshuffled order changed at %d: %d", i, c.Index)
		}
	}
	shuffled := g.Order(cards, true)
	seen := map[int]bool{}
	for _, c := range shuffled {
		seen[c.Index] = true
	}
	if len(seen) != len(cards) {
		t.Fatalf("shuffle lost cards: %v", shuffled)
	}
	if cards[0].Index != 0 || cards[7].Index != 7 {
		t.Fatalf("input slice was modified")
	}
}

func TestOrderWeightedBiasesWeakCards(t *testing.T) {
	g := NewWithSeed(42)
	cards := deck(10)
	weak := map[int]struct{}{9: {}}
	firstHalf := 0
	const rounds = 400
	for i := 0; i < rounds; i++ {
		order := g.OrderWeighted(cards, weak, 8)
		if len(order) != len(cards) {
			t.Fatalf("order length = %d", len(order))
		}
		for pos, c := range order {
			if c.Index == 9 && pos < 5 {
				firstHalf++
			}
		}
	}
	if firstHalf < rounds*3/4 {
		t.Fatalf("weak card in first half %d/%d times, want a strong bias", firstHalf, rounds)
	}
}
