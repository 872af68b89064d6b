package poker

import (
	"fmt"
	"math/rand/v2"
)

// DeckSize is the number of cards in a fresh deck.
const DeckSize = 52

// InsufficientCardsError is returned when a deal asks for more cards than remain.
type InsufficientCardsError struct {
	Requested int
	Remaining int
}

func (e *InsufficientCardsError) Error() string {
	return fmt.Sprintf("insufficient cards: requested %d, %d remaining", e.Requested, e.Remaining)
}

// Deck is an ordered sequence of unique cards. Dealing removes cards from the
// top; the deck value left behind is the remaining deck.
type Deck struct {
	cards []Card
}

// NewDeck returns all 52 cards in canonical order: clubs, diamonds, hearts,
// spades, each deuce through ace.
func NewDeck() *Deck {
	cards := make([]Card, 0, DeckSize)
	for suit := range uint8(4) {
		for rank := range uint8(13) {
			cards = append(cards, NewCard(rank, suit))
		}
	}
	return &Deck{cards: cards}
}

// NewStackedDeck returns a deck that deals the given cards in order.
func NewStackedDeck(cards []Card) *Deck {
	return &Deck{cards: append([]Card(nil), cards...)}
}

// Shuffle permutes the remaining cards uniformly with Fisher-Yates.
func (d *Deck) Shuffle(rng *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes and returns the top n cards. Nothing is consumed on error.
func (d *Deck) Deal(n int) ([]Card, error) {
	if n < 0 || n > len(d.cards) {
		return nil, &InsufficientCardsError{Requested: n, Remaining: len(d.cards)}
	}
	dealt := append([]Card(nil), d.cards[:n]...)
	d.cards = d.cards[n:]
	return dealt, nil
}

// Remaining returns the number of undealt cards.
func (d *Deck) Remaining() int { return len(d.cards) }

// Cards returns a copy of the undealt cards in dealing order.
func (d *Deck) Cards() []Card { return append([]Card(nil), d.cards...) }
