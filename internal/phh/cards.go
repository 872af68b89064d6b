package phh

import (
	"strings"

	"github.com/lox/homepoker/poker"
)

// HiddenCards stands in for a two card hand that is not disclosed.
const HiddenCards = "????"

// JoinCards writes cards back to back, the way PHH deal and show actions
// expect them ("AhKh").
func JoinCards(cards []poker.Card) string {
	var b strings.Builder
	for _, c := range cards {
		b.WriteString(c.String())
	}
	return b.String()
}

// HoleCards formats a dealt hand, masking it unless reveal is set.
func HoleCards(cards []poker.Card, reveal bool) string {
	if !reveal || len(cards) < 2 {
		return HiddenCards
	}
	return JoinCards(cards)
}

// SplitCards parses a PHH card run such as "AhKh" or "Td9c2s".
func SplitCards(s string) ([]poker.Card, error) {
	s = strings.TrimSpace(s)
	if s == HiddenCards || s == "" {
		return nil, nil
	}
	cards := make([]poker.Card, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		c, err := poker.ParseCard(s[i : i+2])
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}
