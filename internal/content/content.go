// Package content loads practice decks and learner rosters.
package content

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/readaloud/internal/model"
	"github.com/verte-zerg/readaloud/internal/text"
)

// ErrMalformed marks deck data that cannot be used for practice.
var ErrMalformed = errors.New("malformed content")

// Deck is an ordered set of cards plus the learners who practise them.
type Deck struct {
	Name     string
	Language model.Language
	Cards    []model.Card
	Learners []model.Learner
}

type deckFile struct {
	Name     string        `yaml:"name"`
	Language string        `yaml:"language"`
	Learners []learnerFile `yaml:"learners"`
	Cards    []cardFile    `yaml:"cards"`
}

type learnerFile struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type cardFile struct {
	Text     string `yaml:"text"`
	Language string `yaml:"language"`
}

// LoadDeck reads a YAML deck (.yaml, .yml) or a plain-text deck with one
// sentence per line. lang is the language of cards that do not name one.
func LoadDeck(path string, lang model.Language) (Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Deck{}, fmt.Errorf("failed to read deck: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var deck Deck
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		deck, err = parseYAML(data, name, lang)
	default:
		deck, err = parseText(data, name, lang)
	}
	if err != nil {
		return Deck{}, err
	}
	if err := Validate(deck); err != nil {
		return Deck{}, err
	}
	if len(deck.Learners) == 0 {
		deck.Learners = BuiltinDeck().Learners
	}
	return deck, nil
}

func parseYAML(data []byte, name string, lang model.Language) (Deck, error) {
	var f deckFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Deck{}, fmt.Errorf("%w: failed to parse deck: %v", ErrMalformed, err)
	}
	deck := Deck{Name: name, Language: lang}
	if f.Name != "" {
		deck.Name = f.Name
	}
	if f.Language != "" {
		parsed, err := model.ParseLanguage(f.Language)
		if err != nil {
			return Deck{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		deck.Language = parsed
	}
	for i, c := range f.Cards {
		cardLang := deck.Language
		if c.Language != "" {
			parsed, err := model.ParseLanguage(c.Language)
			if err != nil {
				return Deck{}, fmt.Errorf("%w: card %d: %v", ErrMalformed, i+1, err)
			}
			cardLang = parsed
		}
		deck.Cards = append(deck.Cards, model.Card{
			Index:     i,
			Utterance: model.ExpectedUtterance{Text: strings.TrimSpace(c.Text), Language: cardLang},
		})
	}
	for _, l := range f.Learners {
		id := strings.TrimSpace(l.ID)
		if id == "" {
			id = strings.ToLower(strings.Join(strings.Fields(l.Name), "-"))
		}
		deck.Learners = append(deck.Learners, model.Learner{ID: id, Name: strings.TrimSpace(l.Name)})
	}
	return deck, nil
}

func parseText(data []byte, name string, lang model.Language) (Deck, error) {
	deck := Deck{Name: name, Language: lang}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		deck.Cards = append(deck.Cards, model.Card{
			Index:     len(deck.Cards),
			Utterance: model.ExpectedUtterance{Text: line, Language: lang},
		})
	}
	if err := scanner.Err(); err != nil {
		return Deck{}, fmt.Errorf("failed to read deck: %w", err)
	}
	return deck, nil
}

// Validate reports ErrMalformed for decks that cannot be practised.
func Validate(deck Deck) error {
	if len(deck.Cards) == 0 {
		return fmt.Errorf("%w: deck %q has no cards", ErrMalformed, deck.Name)
	}
	for _, c := range deck.Cards {
		if len(text.Words(c.Utterance.Text)) == 0 {
			return fmt.Errorf("%w: card %d has no words", ErrMalformed, c.Index+1)
		}
		if _, err := model.ParseLanguage(string(c.Utterance.Language)); err != nil {
			return fmt.Errorf("%w: card %d: %v", ErrMalformed, c.Index+1, err)
		}
	}
	seen := make(map[string]bool, len(deck.Learners))
	for _, l := range deck.Learners {
		if l.ID == "" {
			return fmt.Errorf("%w: learner without id", ErrMalformed)
		}
		if seen[l.ID] {
			return fmt.Errorf("%w: duplicate learner %q", ErrMalformed, l.ID)
		}
		seen[l.ID] = true
	}
	return nil
}

// LoadOrDefault loads path, falling back to BuiltinDeck when path is empty or
// unusable. The boolean reports a fallback caused by a load failure.
func LoadOrDefault(path string, lang model.Language, logger *slog.Logger) (Deck, bool) {
	if path == "" {
		return BuiltinDeck(), false
	}
	deck, err := LoadDeck(path, lang)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("using built-in deck", "path", path, "err", err)
		return BuiltinDeck(), true
	}
	return deck, false
}

// ForLanguage returns the cards in lang, re-indexed from zero.
func (d Deck) ForLanguage(lang model.Language) []model.Card {
	var out []model.Card
	for _, c := range d.Cards {
		if c.Utterance.Language == lang {
			c.Index = len(out)
			out = append(out, c)
		}
	}
	return out
}

// Learner finds a roster entry by id.
func (d Deck) Learner(id string) (model.Learner, bool) {
	for _, l := range d.Learners {
		if l.ID == id {
			return l, true
		}
	}
	return model.Learner{}, false
}

// Resolve maps a deck name to a file inside dir. Paths that name an existing
// file are returned unchanged.
func Resolve(dir, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return name, nil
	}
	for _, ext := range []string{".yaml", ".yml", ".txt"} {
		candidate := filepath.Join(dir, name+ext)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("deck %q not found in %s", name, dir)
}

// ListDecks returns deck names available in dir.
func ListDecks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".txt":
			names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
		}
	}
	sort.Strings(names)
	return names, nil
}
