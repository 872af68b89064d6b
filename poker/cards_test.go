package poker

import (
	"encoding/json"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardCreation(t *testing.T) {
	t.Parallel()
	aceSpades := NewCard(Ace, Spades)
	assert.Equal(t, Ace, aceSpades.Rank())
	assert.Equal(t, Spades, aceSpades.Suit())
	assert.Equal(t, "As", aceSpades.String())
	assert.Equal(t, "2c", NewCard(Two, Clubs).String())
	assert.Equal(t, "??", Card(0).String())
	assert.False(t, Card(3).Valid(), "two bits is not a card")
}

func TestParseCard(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input   string
		want    Card
		wantErr bool
	}{
		{"As", NewCard(Ace, Spades), false},
		{"2h", NewCard(Two, Hearts), false},
		{"Kd", NewCard(King, Diamonds), false},
		{"Tc", NewCard(Ten, Clubs), false},
		{"tc", NewCard(Ten, Clubs), false},
		{"9S", NewCard(Nine, Spades), false},
		{"Xs", 0, true},
		{"Ax", 0, true},
		{"A", 0, true},
		{"10h", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseCard(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAll52CardsRoundTrip(t *testing.T) {
	t.Parallel()
	seen := make(map[string]bool)
	for suit := range uint8(4) {
		for rank := range uint8(13) {
			card := NewCard(rank, suit)
			require.Equal(t, 1, bits.OnesCount64(uint64(card)))
			str := card.String()
			require.False(t, seen[str], "duplicate %s", str)
			seen[str] = true

			parsed, err := ParseCard(str)
			require.NoError(t, err)
			require.Equal(t, card, parsed)
		}
	}
	assert.Len(t, seen, 52)
}

func TestCardJSON(t *testing.T) {
	t.Parallel()
	cards := MustParseCards("As Td 2c")
	data, err := json.Marshal(cards)
	require.NoError(t, err)
	assert.JSONEq(t, `["As","Td","2c"]`, string(data))

	var decoded []Card
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, cards, decoded)

	require.Error(t, json.Unmarshal([]byte(`["Zz"]`), &decoded))
}

func TestHandOperations(t *testing.T) {
	t.Parallel()
	cards := MustParseCards("As Kh")
	queen := MustParseCards("Qd")[0]

	hand := NewHand(cards...)
	assert.True(t, hand.HasCard(cards[0]))
	assert.True(t, hand.HasCard(cards[1]))
	assert.False(t, hand.HasCard(queen))
	assert.Equal(t, 2, hand.CountCards())

	hand.AddCard(queen)
	assert.True(t, hand.HasCard(queen))
	assert.Equal(t, 3, hand.CountCards())
	assert.Equal(t, "Qd Kh As", FormatCards(hand.Cards()))
}

func TestSuitMask(t *testing.T) {
	t.Parallel()
	hand := NewHand(MustParseCards("Ah Kh 2h 5c")...)
	assert.Equal(t, uint16(1<<Ace|1<<King|1<<Two), hand.SuitMask(Hearts))
	assert.Equal(t, uint16(1<<Five), hand.SuitMask(Clubs))
	assert.Zero(t, hand.SuitMask(Spades))
}

func BenchmarkParseCard(b *testing.B) {
	for b.Loop() {
		_, _ = ParseCard("As")
	}
}
