package poker

import (
	"fmt"
	"math/bits"
	"strings"
)

// Card is a single playing card stored as one bit of a 52-bit set.
// Layout: [13 spades][13 hearts][13 diamonds][13 clubs], deuce in the low bit.
type Card uint64

// Hand is a set of cards using the same bit layout as Card.
type Hand uint64

// Suits.
const (
	Clubs    uint8 = 0
	Diamonds uint8 = 1
	Hearts   uint8 = 2
	Spades   uint8 = 3
)

// Ranks, deuce through ace.
const (
	Two uint8 = iota
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

const (
	rankChars = "23456789TJQKA"
	suitChars = "cdhs"
	invalid   = 255
)

// NewCard builds a card from a rank (0-12) and suit (0-3).
func NewCard(rank, suit uint8) Card {
	return Card(1) << (suit*13 + rank)
}

func (c Card) index() uint8 {
	if c == 0 || bits.OnesCount64(uint64(c)) != 1 || c >= 1<<52 {
		return invalid
	}
	return uint8(bits.TrailingZeros64(uint64(c)))
}

// Valid reports whether c is exactly one of the 52 cards.
func (c Card) Valid() bool { return c.index() != invalid }

// Rank returns 0-12 (deuce through ace), or 255 for an invalid card.
func (c Card) Rank() uint8 {
	i := c.index()
	if i == invalid {
		return invalid
	}
	return i % 13
}

// Suit returns 0-3, or 255 for an invalid card.
func (c Card) Suit() uint8 {
	i := c.index()
	if i == invalid {
		return invalid
	}
	return i / 13
}

func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	return string(rankChars[c.Rank()]) + string(suitChars[c.Suit()])
}

// MarshalText encodes the card as its two character form.
func (c Card) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid card %#x", uint64(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText parses the two character form written by MarshalText.
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseCard parses strings such as "As", "td" or "9C".
func ParseCard(s string) (Card, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("invalid card string: %q", s)
	}
	rank := strings.IndexByte(rankChars, upper(s[0]))
	if rank < 0 {
		return 0, fmt.Errorf("invalid rank: %c", s[0])
	}
	suit := strings.IndexByte(suitChars, lower(s[1]))
	if suit < 0 {
		return 0, fmt.Errorf("invalid suit: %c", s[1])
	}
	return NewCard(uint8(rank), uint8(suit)), nil
}

// ParseCards parses a whitespace separated list such as "As Kd 7c".
func ParseCards(s string) ([]Card, error) {
	fields := strings.Fields(s)
	cards := make([]Card, 0, len(fields))
	for _, f := range fields {
		c, err := ParseCard(f)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// MustParseCards is ParseCards for literals in tests and tables.
func MustParseCards(s string) []Card {
	cards, err := ParseCards(s)
	if err != nil {
		panic(err)
	}
	return cards
}

// FormatCards renders cards separated by spaces.
func FormatCards(cards []Card) string {
	parts := make([]string, len(cards))
	for i, c := range cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

func lower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b - 'A' + 'a'
	}
	return b
}

// NewHand combines cards into a set.
func NewHand(cards ...Card) Hand {
	var h Hand
	for _, c := range cards {
		h |= Hand(c)
	}
	return h
}

// AddCard adds c to the set.
func (h *Hand) AddCard(c Card) { *h |= Hand(c) }

// HasCard reports whether c is in the set.
func (h Hand) HasCard(c Card) bool { return h&Hand(c) != 0 }

// CountCards returns the number of cards in the set.
func (h Hand) CountCards() int { return bits.OnesCount64(uint64(h)) }

// SuitMask returns a 13-bit rank mask for one suit.
func (h Hand) SuitMask(suit uint8) uint16 {
	return uint16((h >> (suit * 13)) & 0x1FFF)
}

// Cards lists the set in canonical order.
func (h Hand) Cards() []Card {
	out := make([]Card, 0, h.CountCards())
	for rest := uint64(h); rest != 0; rest &= rest - 1 {
		out = append(out, Card(rest&-rest))
	}
	return out
}
