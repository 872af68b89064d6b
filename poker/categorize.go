package poker

// HoleCardCategory buckets starting hands for per-category statistics.
type HoleCardCategory string

const (
	CategoryPremium HoleCardCategory = "Premium"
	CategoryStrong  HoleCardCategory = "Strong"
	CategoryMedium  HoleCardCategory = "Medium"
	CategoryWeak    HoleCardCategory = "Weak"
	CategoryTrash   HoleCardCategory = "Trash"
	CategoryUnknown HoleCardCategory = "Unknown"
)

// startingHand is two hole cards reduced to what the buckets look at.
type startingHand struct {
	high, low uint8
	suited    bool
}

func (h startingHand) pair() bool { return h.high == h.low }

// categoryRules are tried in order; the first match wins.
var categoryRules = []struct {
	category HoleCardCategory
	match    func(startingHand) bool
}{
	// JJ+ and AK
	{CategoryPremium, func(h startingHand) bool {
		return (h.pair() && h.low >= Jack) || (h.high == Ace && h.low == King)
	}},
	// TT, AQ and AJ
	{CategoryStrong, func(h startingHand) bool {
		return (h.pair() && h.low == Ten) || (h.high == Ace && h.low >= Jack)
	}},
	// 77-99 and the remaining suited broadway hands
	{CategoryMedium, func(h startingHand) bool {
		return (h.pair() && h.low >= Seven) || (h.suited && h.low >= Ten)
	}},
	// 22-66 and suited cards at most two ranks apart
	{CategoryWeak, func(h startingHand) bool {
		return h.pair() || (h.suited && h.high-h.low <= 2)
	}},
}

// CategorizeHoleCards buckets a starting hand: Premium (JJ+, AK), Strong
// (TT, AQ, AJ), Medium (77-99, suited broadway), Weak (22-66, suited
// connectors and one-gappers) or Trash.
func CategorizeHoleCards(a, b Card) HoleCardCategory {
	if !a.Valid() || !b.Valid() || a == b {
		return CategoryUnknown
	}
	h := startingHand{high: a.Rank(), low: b.Rank(), suited: a.Suit() == b.Suit()}
	if h.low > h.high {
		h.high, h.low = h.low, h.high
	}
	for _, rule := range categoryRules {
		if rule.match(h) {
			return rule.category
		}
	}
	return CategoryTrash
}

// CategorizeHand buckets a two-card slice, returning CategoryUnknown for
// anything else, including hole cards that were never revealed.
func CategorizeHand(cards []Card) HoleCardCategory {
	if len(cards) != 2 {
		return CategoryUnknown
	}
	return CategorizeHoleCards(cards[0], cards[1])
}
