// Package tarot holds the 78-card deck, the supported spreads and a
// concurrency-safe drawer.
package tarot

import (
	"math/rand/v2"
	"sync"
	"time"
)

const reversedChance = 0.3

var majorArcana = []string{
	"The Fool", "The Magician", "The High Priestess", "The Empress", "The Emperor",
	"The Hierophant", "The Lovers", "The Chariot", "Strength", "The Hermit",
	"Wheel of Fortune", "Justice", "The Hanged Man", "Death", "Temperance",
	"The Devil", "The Tower", "The Star", "The Moon", "The Sun", "Judgement", "The World",
}

var (
	suits = []string{"Wands", "Cups", "Swords", "Pentacles"}
	ranks = []string{
		"Ace", "Two", "Three", "Four", "Five", "Six", "Seven",
		"Eight", "Nine", "Ten", "Page", "Knight", "Queen", "King",
	}
)

var deck = buildDeck()

func buildDeck() []string {
	cards := make([]string, 0, len(majorArcana)+len(suits)*len(ranks))
	cards = append(cards, majorArcana...)
	for _, suit := range suits {
		for _, rank := range ranks {
			cards = append(cards, rank+" of "+suit)
		}
	}
	return cards
}

// Deck returns a copy of the full deck in canonical order.
func Deck() []string {
	return append([]string(nil), deck...)
}

// Spread is a named layout of card positions.
type Spread struct {
	ID        string
	Name      string
	Positions []string
}

// Spread identifiers, also used in callback data.
const (
	SpreadSingle       = "single"
	SpreadThreeCard    = "three_card"
	SpreadRelationship = "relationship"
	SpreadCareer       = "career"
	SpreadCelticCross  = "celtic_cross"
)

var spreads = []Spread{
	{ID: SpreadSingle, Name: "Single Card", Positions: []string{"Present Situation"}},
	{ID: SpreadThreeCard, Name: "Three Card Spread", Positions: []string{"Past", "Present", "Future"}},
	{ID: SpreadRelationship, Name: "Relationship Spread", Positions: []string{"You", "Your Partner", "The Relationship"}},
	{ID: SpreadCareer, Name: "Career Spread", Positions: []string{"Current Situation", "Challenges", "Advice"}},
	{ID: SpreadCelticCross, Name: "Celtic Cross", Positions: []string{
		"Present Situation",
		"Challenge/Cross",
		"Distant Past/Foundation",
		"Recent Past",
		"Possible Outcome",
		"Immediate Future",
		"Your Approach",
		"External Influences",
		"Hopes and Fears",
		"Final Outcome",
	}},
}

// Spreads lists the supported spreads in menu order.
func Spreads() []Spread {
	return append([]Spread(nil), spreads...)
}

// SpreadByID looks a spread up by identifier.
func SpreadByID(id string) (Spread, bool) {
	for _, s := range spreads {
		if s.ID == id {
			return s, true
		}
	}
	return Spread{}, false
}

// DrawnCard is one card placed in a spread position.
type DrawnCard struct {
	Name     string
	Position string
	Reversed bool
}

// DisplayName is the card name with a reversed marker.
func (c DrawnCard) DisplayName() string {
	if c.Reversed {
		return c.Name + " (Reversed)"
	}
	return c.Name
}

// Reading is the outcome of drawing a spread.
type Reading struct {
	Spread Spread
	Cards  []DrawnCard
}

// Drawer shuffles and draws cards. It is safe for concurrent use.
type Drawer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewDrawer returns a Drawer backed by src, or by a time-seeded PCG when src
// is nil.
func NewDrawer(src rand.Source) *Drawer {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>17|1)
	}
	return &Drawer{rng: rand.New(src)}
}

// Draw deals one card per spread position without repeats.
func (d *Drawer) Draw(spread Spread) Reading {
	d.mu.Lock()
	defer d.mu.Unlock()

	order := d.rng.Perm(len(deck))
	cards := make([]DrawnCard, 0, len(spread.Positions))
	for i, position := range spread.Positions {
		cards = append(cards, DrawnCard{
			Name:     deck[order[i]],
			Position: position,
			Reversed: d.rng.Float64() < reversedChance,
		})
	}

	return Reading{Spread: spread, Cards: cards}
}
