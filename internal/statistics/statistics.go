// Package statistics derives player, session and game statistics from
// completed hand histories. Every function is a pure fold over its input:
// the same hands always produce the same output, so results can be
// recomputed at any time from storage.
package statistics

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/poker"
)

// Filters narrows the hands a calculation considers. Zero values match
// everything.
type Filters struct {
	SessionID string
	From      time.Time
	To        time.Time
	Position  string
	HandTypes []handhistory.HandType
}

func (f Filters) match(e *handhistory.Entry) bool {
	switch {
	case f.SessionID != "" && e.SessionID != f.SessionID:
		return false
	case !f.From.IsZero() && e.CompletedAt.Before(f.From):
		return false
	case !f.To.IsZero() && !e.CompletedAt.Before(f.To):
		return false
	case len(f.HandTypes) > 0 && !slices.Contains(f.HandTypes, e.HandType):
		return false
	}
	return true
}

// PlayerStatistics summarizes one player's hands. Percentages run 0-100.
type PlayerStatistics struct {
	PlayerID    string `json:"playerId"`
	HandsPlayed int    `json:"handsPlayed"`

	VPIPHands       int     `json:"vpipHands"`
	PFRHands        int     `json:"pfrHands"`
	ThreeBetHands   int     `json:"threeBetHands"`
	ThreeBetChances int     `json:"threeBetChances"`
	CBetHands       int     `json:"cBetHands"`
	CBetChances     int     `json:"cBetChances"`
	VPIP            float64 `json:"vpip"`
	PFR             float64 `json:"pfr"`
	ThreeBet        float64 `json:"threeBet"`
	CBet            float64 `json:"cBet"`

	AggressiveActions int     `json:"aggressiveActions"`
	PassiveActions    int     `json:"passiveActions"`
	AggressionFactor  float64 `json:"aggressionFactor"`

	NetChips  int     `json:"netChips"`
	NetBB     float64 `json:"netBB"`
	BB100     float64 `json:"bbPer100"`
	StdDevBB  float64 `json:"stdDevBB"`
	MedianBB  float64 `json:"medianBB"`
	StdDev    float64 `json:"stdDevChips"`
	WonHands  int     `json:"wonHands"`
	LostHands int     `json:"lostHands"`
	WinRate   float64 `json:"winRate"`

	SawFlop         int     `json:"sawFlop"`
	WentToShowdown  int     `json:"wentToShowdown"`
	WonAtShowdown   int     `json:"wonAtShowdown"`
	ShowdownWinRate float64 `json:"showdownWinRate"`

	BiggestWin        int `json:"biggestWin"`
	BiggestLoss       int `json:"biggestLoss"`
	LongestWinStreak  int `json:"longestWinStreak"`
	LongestLoseStreak int `json:"longestLoseStreak"`
	// CurrentStreak is positive for consecutive wins and negative for
	// consecutive losses.
	CurrentStreak int `json:"currentStreak"`

	ByPosition map[string]*PositionStatistics                 `json:"byPosition"`
	ByCategory map[poker.HoleCardCategory]*CategoryStatistics `json:"byCategory"`

	FirstHandAt time.Time `json:"firstHandAt"`
	LastHandAt  time.Time `json:"lastHandAt"`
}

// PositionStatistics is the slice of a player's hands from one position.
type PositionStatistics struct {
	Position  string  `json:"position"`
	Hands     int     `json:"hands"`
	VPIPHands int     `json:"vpipHands"`
	PFRHands  int     `json:"pfrHands"`
	VPIP      float64 `json:"vpip"`
	PFR       float64 `json:"pfr"`
	NetChips  int     `json:"netChips"`
	NetBB     float64 `json:"netBB"`
	BB100     float64 `json:"bbPer100"`
}

// CategoryStatistics is the slice of a player's hands with known hole cards
// of one starting-hand category.
type CategoryStatistics struct {
	Category       poker.HoleCardCategory `json:"category"`
	Hands          int                    `json:"hands"`
	NetChips       int                    `json:"netChips"`
	NetBB          float64                `json:"netBB"`
	WentToShowdown int                    `json:"wentToShowdown"`
	WonAtShowdown  int                    `json:"wonAtShowdown"`
}

// CalculatePlayerStatistics folds every matching hand the player took part in.
func CalculatePlayerStatistics(hands []*handhistory.Entry, playerID string, filters Filters) PlayerStatistics {
	stats := PlayerStatistics{
		PlayerID:   playerID,
		ByPosition: make(map[string]*PositionStatistics),
		ByCategory: make(map[poker.HoleCardCategory]*CategoryStatistics),
	}
	var bb, chips sample
	winRun, loseRun := 0, 0

	for _, e := range ordered(hands, filters) {
		p, ok := e.Player(playerID)
		if !ok || (filters.Position != "" && p.Position != filters.Position) {
			continue
		}
		netBB := bigBlinds(p.NetAmount, e.BigBlind)

		if stats.HandsPlayed == 0 {
			stats.FirstHandAt = e.CompletedAt
		}
		stats.LastHandAt = e.CompletedAt
		stats.HandsPlayed++
		stats.NetChips += p.NetAmount
		bb.add(netBB)
		chips.add(float64(p.NetAmount))

		if p.VPIP {
			stats.VPIPHands++
		}
		if p.PFR {
			stats.PFRHands++
		}
		if p.ThreeBet {
			stats.ThreeBetHands++
		}
		if p.ThreeBetChance {
			stats.ThreeBetChances++
		}
		if p.CBet {
			stats.CBetHands++
		}
		if p.CBetChance {
			stats.CBetChances++
		}
		if p.SawFlop {
			stats.SawFlop++
		}
		if p.WentToShowdown {
			stats.WentToShowdown++
		}
		if p.WonAtShowdown {
			stats.WonAtShowdown++
		}
		stats.AggressiveActions += p.AggressiveActions
		stats.PassiveActions += p.PassiveActions

		switch {
		case p.NetAmount > 0:
			stats.WonHands++
			winRun, loseRun = winRun+1, 0
			stats.CurrentStreak = winRun
		case p.NetAmount < 0:
			stats.LostHands++
			winRun, loseRun = 0, loseRun+1
			stats.CurrentStreak = -loseRun
		default:
			winRun, loseRun = 0, 0
			stats.CurrentStreak = 0
		}
		stats.LongestWinStreak = max(stats.LongestWinStreak, winRun)
		stats.LongestLoseStreak = max(stats.LongestLoseStreak, loseRun)
		stats.BiggestWin = max(stats.BiggestWin, p.NetAmount)
		stats.BiggestLoss = min(stats.BiggestLoss, p.NetAmount)

		pos := stats.ByPosition[p.Position]
		if pos == nil {
			pos = &PositionStatistics{Position: p.Position}
			stats.ByPosition[p.Position] = pos
		}
		pos.Hands++
		pos.NetChips += p.NetAmount
		pos.NetBB += netBB
		if p.VPIP {
			pos.VPIPHands++
		}
		if p.PFR {
			pos.PFRHands++
		}

		if category := poker.CategorizeHand(p.HoleCards); category != poker.CategoryUnknown {
			cat := stats.ByCategory[category]
			if cat == nil {
				cat = &CategoryStatistics{Category: category}
				stats.ByCategory[category] = cat
			}
			cat.Hands++
			cat.NetChips += p.NetAmount
			cat.NetBB += netBB
			if p.WentToShowdown {
				cat.WentToShowdown++
			}
			if p.WonAtShowdown {
				cat.WonAtShowdown++
			}
		}
	}

	stats.VPIP = percent(stats.VPIPHands, stats.HandsPlayed)
	stats.PFR = percent(stats.PFRHands, stats.HandsPlayed)
	stats.ThreeBet = percent(stats.ThreeBetHands, stats.ThreeBetChances)
	stats.CBet = percent(stats.CBetHands, stats.CBetChances)
	stats.WinRate = percent(stats.WonHands, stats.HandsPlayed)
	stats.ShowdownWinRate = percent(stats.WonAtShowdown, stats.WentToShowdown)
	if stats.VPIPHands > 0 {
		stats.AggressionFactor = float64(stats.AggressiveActions) / float64(stats.VPIPHands)
	}
	stats.NetBB = bb.sum
	stats.BB100 = bb.mean() * 100
	stats.StdDevBB = bb.stdDev()
	stats.MedianBB = bb.median()
	stats.StdDev = chips.stdDev()
	for _, pos := range stats.ByPosition {
		pos.VPIP = percent(pos.VPIPHands, pos.Hands)
		pos.PFR = percent(pos.PFRHands, pos.Hands)
		pos.BB100 = pos.NetBB / float64(pos.Hands) * 100
	}
	return stats
}

// ordered filters hands and sorts them by completion time, session and
// hand number so folds never depend on input order.
func ordered(hands []*handhistory.Entry, filters Filters) []*handhistory.Entry {
	out := make([]*handhistory.Entry, 0, len(hands))
	for _, e := range hands {
		if e != nil && filters.match(e) {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b *handhistory.Entry) int {
		return cmp.Or(
			a.CompletedAt.Compare(b.CompletedAt),
			cmp.Compare(a.SessionID, b.SessionID),
			cmp.Compare(a.HandNumber, b.HandNumber),
		)
	})
	return out
}

func bigBlinds(chips, bigBlind int) float64 {
	if bigBlind <= 0 {
		return 0
	}
	return float64(chips) / float64(bigBlind)
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

// sample accumulates values for mean, spread and median.
type sample struct {
	n      int
	sum    float64
	sum2   float64
	values []float64
}

func (s *sample) add(v float64) {
	s.n++
	s.sum += v
	s.sum2 += v * v
	s.values = append(s.values, v)
}

func (s *sample) mean() float64 {
	if s.n == 0 {
		return 0
	}
	return s.sum / float64(s.n)
}

// stdDev is the sample standard deviation.
func (s *sample) stdDev() float64 {
	if s.n < 2 {
		return 0
	}
	mean := s.mean()
	variance := (s.sum2 - float64(s.n)*mean*mean) / float64(s.n-1)
	if variance < 0 {
		return 0
	}
	return math.Sqrt(variance)
}

func (s *sample) median() float64 {
	if s.n == 0 {
		return 0
	}
	sorted := slices.Clone(s.values)
	slices.Sort(sorted)
	if s.n%2 == 0 {
		return (sorted[s.n/2-1] + sorted[s.n/2]) / 2
	}
	return sorted[s.n/2]
}
