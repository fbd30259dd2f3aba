package content

import "github.com/verte-zerg/readaloud/internal/model"

var builtinEnglish = []string{
	"The cat sat on the mat.",
	"I like to read books with my family.",
	"The sun rises in the east every morning.",
	"She sells sea shells by the sea shore.",
	"We walked to the park after school.",
	"My brother can ride a bicycle very fast.",
	"Please close the door when you leave.",
	"The farmer feeds the chickens at dawn.",
}

var builtinFilipino = []string{
	"Magandang umaga po.",
	"Ang bahay namin ay malapit sa dagat.",
	"Kumain ka na ba ngayon?",
	"Masaya ang mga bata sa paaralan.",
	"Salamat po sa inyong tulong.",
	"Maganda ang panahon ngayong araw.",
}

// BuiltinDeck is the seed deck used when no deck is configured or loadable.
func BuiltinDeck() Deck {
	deck := Deck{
		Name:     "builtin",
		Language: model.English,
		Learners: []model.Learner{
			{ID: "guest", Name: "Guest"},
			{ID: "ana", Name: "Ana"},
			{ID: "ben", Name: "Ben"},
		},
	}
	add := func(lines []string, lang model.Language) {
		for _, line := range lines {
			deck.Cards = append(deck.Cards, model.Card{
				Index:     len(deck.Cards),
				Utterance: model.ExpectedUtterance{Text: line, Language: lang},
			})
		}
	}
	add(builtinEnglish, model.English)
	add(builtinFilipino, model.Filipino)
	return deck
}
