package tarot

import (
	"math/rand/v2"
	"sync"
	"testing"
)

func TestDeckHas78UniqueCards(t *testing.T) {
	cards := Deck()
	if len(cards) != 78 {
		t.Fatalf("expected 78 cards, got %d", len(cards))
	}

	seen := map[string]bool{}
	for _, card := range cards {
		if seen[card] {
			t.Fatalf("duplicate card %q", card)
		}
		seen[card] = true
	}
	if !seen["The Fool"] || !seen["King of Pentacles"] {
		t.Fatalf("expected major and minor arcana to be present")
	}
}

func TestDrawFillsEveryPositionWithoutRepeats(t *testing.T) {
	drawer := NewDrawer(rand.NewPCG(1, 2))

	for _, spread := range Spreads() {
		reading := drawer.Draw(spread)
		if len(reading.Cards) != len(spread.Positions) {
			t.Fatalf("%s: expected %d cards, got %d", spread.ID, len(spread.Positions), len(reading.Cards))
		}

		seen := map[string]bool{}
		for i, card := range reading.Cards {
			if card.Position != spread.Positions[i] {
				t.Fatalf("%s: expected position %q, got %q", spread.ID, spread.Positions[i], card.Position)
			}
			if seen[card.Name] {
				t.Fatalf("%s: card %q drawn twice", spread.ID, card.Name)
			}
			seen[card.Name] = true
		}
	}
}

func TestDrawIsDeterministicForSeed(t *testing.T) {
	spread, _ := SpreadByID(SpreadCelticCross)

	a := NewDrawer(rand.NewPCG(7, 7)).Draw(spread)
	b := NewDrawer(rand.NewPCG(7, 7)).Draw(spread)

	for i := range a.Cards {
		if a.Cards[i] != b.Cards[i] {
			t.Fatalf("expected identical draws for the same seed, got %+v and %+v", a.Cards[i], b.Cards[i])
		}
	}
}

func TestReversedShareIsRoughlyThirtyPercent(t *testing.T) {
	drawer := NewDrawer(rand.NewPCG(42, 42))
	spread, _ := SpreadByID(SpreadSingle)

	reversed := 0
	const draws = 5000
	for i := 0; i < draws; i++ {
		if drawer.Draw(spread).Cards[0].Reversed {
			reversed++
		}
	}

	share := float64(reversed) / draws
	if share < 0.25 || share > 0.35 {
		t.Fatalf("expected about 30%% reversed, got %.2f", share)
	}
}

func TestDrawerIsSafeForConcurrentUse(t *testing.T) {
	drawer := NewDrawer(nil)
	spread, _ := SpreadByID(SpreadThreeCard)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := len(drawer.Draw(spread).Cards); got != 3 {
				t.Errorf("expected 3 cards, got %d", got)
			}
		}()
	}
	wg.Wait()
}

func TestSpreadByIDAndDisplayName(t *testing.T) {
	if _, ok := SpreadByID("pyramid"); ok {
		t.Fatalf("expected unknown spread to be rejected")
	}
	card := DrawnCard{Name: "The Moon", Reversed: true}
	if card.DisplayName() != "The Moon (Reversed)" {
		t.Fatalf("unexpected display name %q", card.DisplayName())
	}
}
