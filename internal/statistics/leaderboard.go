package statistics

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/lox/homepoker/internal/handhistory"
)

// MinimumHands is the sample floor for ranking by a rate-based metric.
const MinimumHands = 50

// Metric selects what a leaderboard ranks by.
type Metric string

const (
	MetricNetChips         Metric = "net_chips"
	MetricHandsPlayed      Metric = "hands_played"
	MetricBB100            Metric = "bb_per_100"
	MetricVPIP             Metric = "vpip"
	MetricPFR              Metric = "pfr"
	MetricAggressionFactor Metric = "aggression_factor"
	MetricWinRate          Metric = "win_rate"
	MetricShowdownWinRate  Metric = "showdown_win_rate"
)

var metrics = []Metric{
	MetricNetChips, MetricHandsPlayed, MetricBB100, MetricVPIP,
	MetricPFR, MetricAggressionFactor, MetricWinRate, MetricShowdownWinRate,
}

// ParseMetric accepts a metric name.
func ParseMetric(s string) (Metric, error) {
	if m := Metric(s); slices.Contains(metrics, m) {
		return m, nil
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// RateBased reports whether the metric is a per-hand rate, which small
// samples distort.
func (m Metric) RateBased() bool {
	return m != MetricNetChips && m != MetricHandsPlayed
}

// Value reads the metric from a player's statistics.
func (m Metric) Value(s PlayerStatistics) float64 {
	switch m {
	case MetricNetChips:
		return float64(s.NetChips)
	case MetricHandsPlayed:
		return float64(s.HandsPlayed)
	case MetricBB100:
		return s.BB100
	case MetricVPIP:
		return s.VPIP
	case MetricPFR:
		return s.PFR
	case MetricAggressionFactor:
		return s.AggressionFactor
	case MetricWinRate:
		return s.WinRate
	case MetricShowdownWinRate:
		return s.ShowdownWinRate
	}
	return 0
}

// LeaderboardEntry is one ranked player.
type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	PlayerID    string  `json:"playerId"`
	Value       float64 `json:"value"`
	HandsPlayed int     `json:"handsPlayed"`
	NetChips    int     `json:"netChips"`
	BB100       float64 `json:"bbPer100"`
}

// GenerateLeaderboard ranks every player in the matching hands, highest
// value first. Players with fewer than MinimumHands hands are left out of
// rate-based rankings. Ties go to the larger sample, then to player id.
// A limit of zero or less returns every ranked player.
func GenerateLeaderboard(hands []*handhistory.Entry, metric Metric, filters Filters, limit int) []LeaderboardEntry {
	matched := ordered(hands, filters)
	seen := make(map[string]bool)
	var players []string
	for _, e := range matched {
		for _, p := range e.Players {
			if !seen[p.PlayerID] {
				seen[p.PlayerID] = true
				players = append(players, p.PlayerID)
			}
		}
	}

	board := make([]LeaderboardEntry, 0, len(players))
	for _, id := range players {
		s := CalculatePlayerStatistics(matched, id, filters)
		if s.HandsPlayed == 0 || (metric.RateBased() && s.HandsPlayed < MinimumHands) {
			continue
		}
		board = append(board, LeaderboardEntry{
			PlayerID:    id,
			Value:       metric.Value(s),
			HandsPlayed: s.HandsPlayed,
			NetChips:    s.NetChips,
			BB100:       s.BB100,
		})
	}
	slices.SortFunc(board, func(a, b LeaderboardEntry) int {
		return cmp.Or(
			cmp.Compare(b.Value, a.Value),
			cmp.Compare(b.HandsPlayed, a.HandsPlayed),
			cmp.Compare(a.PlayerID, b.PlayerID),
		)
	})
	if limit > 0 && len(board) > limit {
		board = board[:limit]
	}
	for i := range board {
		board[i].Rank = i + 1
	}
	return board
}
