package poker

import (
	"math/bits"
)

// HandRank orders seven-card hands. Lower values are stronger, so the best
// possible hand (royal flush) is 0 and the worst high card is 7461.
type HandRank uint16

// HandType is the category of a ranked hand, weakest first.
type HandType uint8

const (
	HighCard HandType = iota
	Pair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

var handTypeNames = [...]string{
	HighCard:      "High Card",
	Pair:          "Pair",
	TwoPair:       "Two Pair",
	ThreeOfAKind:  "Three of a Kind",
	Straight:      "Straight",
	Flush:         "Flush",
	FullHouse:     "Full House",
	FourOfAKind:   "Four of a Kind",
	StraightFlush: "Straight Flush",
}

func (t HandType) String() string {
	if int(t) < len(handTypeNames) {
		return handTypeNames[t]
	}
	return "Unknown"
}

// Number of distinct five-card classes per category.
const (
	straightFlushClasses = 10
	quadsClasses         = 13 * 12
	fullHouseClasses     = 13 * 12
	flushClasses         = 1277
	straightClasses      = 10
	tripsClasses         = 13 * 66
	twoPairClasses       = 78 * 11
	pairClasses          = 13 * 220
	highCardClasses      = 1277
)

// First rank value of each category, strongest first.
const (
	straightFlushBase = 0
	quadsBase         = straightFlushBase + straightFlushClasses
	fullHouseBase     = quadsBase + quadsClasses
	flushBase         = fullHouseBase + fullHouseClasses
	straightBase      = flushBase + flushClasses
	tripsBase         = straightBase + straightClasses
	twoPairBase       = tripsBase + tripsClasses
	pairBase          = twoPairBase + twoPairClasses
	highCardBase      = pairBase + pairClasses
	worstRank         = highCardBase + highCardClasses - 1
)

var categoryFloors = [...]struct {
	limit HandRank
	typ   HandType
}{
	{quadsBase, StraightFlush},
	{fullHouseBase, FourOfAKind},
	{flushBase, FullHouse},
	{straightBase, Flush},
	{tripsBase, Straight},
	{twoPairBase, ThreeOfAKind},
	{pairBase, TwoPair},
	{highCardBase, Pair},
}

// Type returns the hand category.
func (hr HandRank) Type() HandType {
	for _, f := range categoryFloors {
		if hr < f.limit {
			return f.typ
		}
	}
	return HighCard
}

func (hr HandRank) String() string { return hr.Type().String() }

// Evaluate7Cards ranks the best five-card hand inside a seven-card set.
// Sets of any other size rank as the worst possible hand.
func Evaluate7Cards(hand Hand) HandRank {
	if hand.CountCards() != 7 {
		return worstRank
	}
	return evaluate(hand)
}

// EvaluateCards ranks hole cards plus board. It needs exactly seven distinct cards.
func EvaluateCards(cards ...Card) HandRank {
	return Evaluate7Cards(NewHand(cards...))
}

// CompareHands returns 1 if a beats b, -1 if b beats a and 0 for a tie.
func CompareHands(a, b HandRank) int {
	switch {
	case a < b:
		return 1
	case a > b:
		return -1
	}
	return 0
}

func evaluate(hand Hand) HandRank {
	var suits [4]uint16
	var ranks uint16
	for s := range uint8(4) {
		suits[s] = hand.SuitMask(s)
		ranks |= suits[s]
	}

	// At most one suit can hold five of seven cards.
	for _, sm := range suits {
		if bits.OnesCount16(sm) < 5 {
			continue
		}
		if high, ok := straightHigh(sm); ok {
			return HandRank(straightFlushBase + straightClasses - 1 - straightOrdinal(high))
		}
		return HandRank(flushBase + flushClasses - 1 - fiveCardOrdinal(topBits(sm, 5)))
	}

	c, d, h, s := suits[0], suits[1], suits[2], suits[3]
	quads := c & d & h & s
	threes := (c & d & h) | (c & d & s) | (c & h & s) | (d & h & s)
	trips := threes &^ quads
	pairs := ((c & d) | (c & h) | (c & s) | (d & h) | (d & s) | (h & s)) &^ threes

	if quads != 0 {
		q := highBit(quads)
		kicker := highBit(ranks &^ (1 << q))
		idx := uint16(q)*12 + uint16(ordinalWithout(kicker, q))
		return HandRank(quadsBase + quadsClasses - 1 - idx)
	}

	if trips != 0 {
		t := highBit(trips)
		if rest := pairs | (trips &^ (1 << t)); rest != 0 {
			p := highBit(rest)
			idx := uint16(t)*12 + uint16(ordinalWithout(p, t))
			return HandRank(fullHouseBase + fullHouseClasses - 1 - idx)
		}
	}

	if high, ok := straightHigh(ranks); ok {
		return HandRank(straightBase + straightClasses - 1 - straightOrdinal(high))
	}

	if trips != 0 {
		t := highBit(trips)
		kickers := compress(topBits(ranks&^(1<<t), 2), t)
		idx := uint16(t)*66 + comboIndex12of2[kickers]
		return HandRank(tripsBase + tripsClasses - 1 - idx)
	}

	if pairs != 0 {
		hi := highBit(pairs)
		if rest := pairs &^ (1 << hi); rest != 0 {
			lo := highBit(rest)
			kicker := highBit(ranks &^ (1<<hi | 1<<lo))
			k := ordinalWithout(kicker, hi, lo)
			idx := comboIndex13of2[uint16(1)<<hi|uint16(1)<<lo]*11 + uint16(k)
			return HandRank(twoPairBase + twoPairClasses - 1 - idx)
		}
		kickers := compress(topBits(ranks&^(1<<hi), 3), hi)
		idx := uint16(hi)*220 + comboIndex12of3[kickers]
		return HandRank(pairBase + pairClasses - 1 - idx)
	}

	return HandRank(highCardBase + highCardClasses - 1 - fiveCardOrdinal(topBits(ranks, 5)))
}

// highBit returns the highest set rank in a non-empty mask.
func highBit(mask uint16) uint8 {
	return uint8(bits.Len16(mask) - 1)
}

// topBits keeps the n highest set bits of mask.
func topBits(mask uint16, n int) uint16 {
	var out uint16
	for ; n > 0 && mask != 0; n-- {
		b := uint16(1) << highBit(mask)
		out |= b
		mask &^= b
	}
	return out
}

// ordinalWithout returns rank's position once the excluded ranks are removed
// from the deuce-to-ace ladder.
func ordinalWithout(rank uint8, excluded ...uint8) uint8 {
	ord := rank
	for _, ex := range excluded {
		if ex < rank {
			ord--
		}
	}
	return ord
}

// compress removes one rank from the ladder and shifts higher bits down.
func compress(mask uint16, removed uint8) uint16 {
	low := mask & (1<<removed - 1)
	high := mask >> (removed + 1)
	return low | high<<removed
}

// straightHigh finds the top rank of the best straight in a rank mask.
// The wheel reports five (rank 3).
func straightHigh(mask uint16) (uint8, bool) {
	mask &= 0x1FFF
	if run := mask & (mask >> 1) & (mask >> 2) & (mask >> 3) & (mask >> 4); run != 0 {
		return highBit(run) + 4, true
	}
	const wheel = 1<<Ace | 1<<Two | 1<<Three | 1<<Four | 1<<Five
	if mask&wheel == wheel {
		return Five, true
	}
	return 0, false
}

// straightOrdinal numbers straights from the wheel (0) to broadway (9).
func straightOrdinal(high uint8) uint16 {
	return uint16(high - Five)
}

// fiveCardOrdinal numbers the 1277 non-straight five-rank sets, weakest first.
func fiveCardOrdinal(mask uint16) uint16 {
	idx := comboIndex13of5[mask]
	var skipped uint16
	for _, s := range straightCombos {
		if idx <= s {
			break
		}
		skipped++
	}
	return idx - skipped
}

// comboIndex maps every k-subset of an n-bit ladder to its ordinal in
// numeric mask order. Equal-sized masks compare highest rank first, which is
// exactly kicker order.
func comboIndex(n, k int) []uint16 {
	table := make([]uint16, 1<<n)
	var idx uint16
	for mask := range 1 << n {
		if bits.OnesCount(uint(mask)) == k {
			table[mask] = idx
			idx++
		}
	}
	return table
}

var (
	comboIndex13of5 = comboIndex(13, 5)
	comboIndex13of2 = comboIndex(13, 2)
	comboIndex12of2 = comboIndex(12, 2)
	comboIndex12of3 = comboIndex(12, 3)
)

// straightCombos holds the sorted five-rank ordinals that form straights so
// flush and high-card numbering can skip them.
var straightCombos = func() [10]uint16 {
	var out [10]uint16
	out[0] = comboIndex13of5[1<<Ace|1<<Two|1<<Three|1<<Four|1<<Five]
	for high := Six; high <= Ace; high++ {
		out[high-Five] = comboIndex13of5[uint16(0x1F)<<(high-4)]
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}()
