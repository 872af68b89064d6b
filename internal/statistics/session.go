package statistics

import (
	"cmp"
	"slices"
	"time"

	"github.com/lox/homepoker/internal/handhistory"
)

// SessionStatistics summarizes one table session.
type SessionStatistics struct {
	SessionID      string                       `json:"sessionId"`
	Hands          int                          `json:"hands"`
	StartedAt      time.Time                    `json:"startedAt"`
	EndedAt        time.Time                    `json:"endedAt"`
	TotalPot       int                          `json:"totalPot"`
	AveragePot     float64                      `json:"averagePot"`
	LargestPot     int                          `json:"largestPot"`
	LargestPotHand string                       `json:"largestPotHandId,omitempty"`
	Showdowns      int                          `json:"showdowns"`
	ShowdownRate   float64                      `json:"showdownRate"`
	FlopsSeen      int                          `json:"flopsSeen"`
	HandTypes      map[handhistory.HandType]int `json:"handTypes"`
	Players        []PlayerResult               `json:"players"`
}

// PlayerResult is a player's total for a set of hands.
type PlayerResult struct {
	PlayerID string  `json:"playerId"`
	Hands    int     `json:"hands"`
	NetChips int     `json:"netChips"`
	NetBB    float64 `json:"netBB"`
}

// CalculateSessionStatistics folds the hands of one session. Players are
// listed by net result, biggest winner first.
func CalculateSessionStatistics(hands []*handhistory.Entry, sessionID string) SessionStatistics {
	stats := SessionStatistics{
		SessionID: sessionID,
		HandTypes: make(map[handhistory.HandType]int),
	}
	totals := make(map[string]*PlayerResult)
	for _, e := range ordered(hands, Filters{SessionID: sessionID}) {
		if stats.Hands == 0 {
			stats.StartedAt = e.StartedAt
		}
		stats.EndedAt = e.CompletedAt
		stats.Hands++
		pot := e.TotalPot()
		stats.TotalPot += pot
		if pot > stats.LargestPot {
			stats.LargestPot = pot
			stats.LargestPotHand = e.HandID
		}
		if e.Showdown {
			stats.Showdowns++
		}
		if len(e.Board) >= 3 {
			stats.FlopsSeen++
		}
		stats.HandTypes[e.HandType]++
		for _, p := range e.Players {
			r := totals[p.PlayerID]
			if r == nil {
				r = &PlayerResult{PlayerID: p.PlayerID}
				totals[p.PlayerID] = r
			}
			r.Hands++
			r.NetChips += p.NetAmount
			r.NetBB += bigBlinds(p.NetAmount, e.BigBlind)
		}
	}
	if stats.Hands > 0 {
		stats.AveragePot = float64(stats.TotalPot) / float64(stats.Hands)
		stats.ShowdownRate = percent(stats.Showdowns, stats.Hands)
	}
	stats.Players = sortedResults(totals)
	return stats
}

// GameStatistics summarizes any set of hands across sessions.
type GameStatistics struct {
	Hands             int                          `json:"hands"`
	Sessions          int                          `json:"sessions"`
	Players           int                          `json:"players"`
	AveragePlayers    float64                      `json:"averagePlayersPerHand"`
	TotalPot          int                          `json:"totalPot"`
	AveragePotBB      float64                      `json:"averagePotBB"`
	FlopRate          float64                      `json:"flopRate"`
	ShowdownRate      float64                      `json:"showdownRate"`
	HandTypes         map[handhistory.HandType]int `json:"handTypes"`
	ActionCounts      map[string]int               `json:"actionCounts"`
	TopWinners        []PlayerResult               `json:"topWinners"`
	AverageActionsPer float64                      `json:"averageActionsPerHand"`
}

// CalculateGameStatistics folds every matching hand. topN bounds the
// winners list.
func CalculateGameStatistics(hands []*handhistory.Entry, filters Filters, topN int) GameStatistics {
	stats := GameStatistics{
		HandTypes:    make(map[handhistory.HandType]int),
		ActionCounts: make(map[string]int),
	}
	sessions := make(map[string]bool)
	totals := make(map[string]*PlayerResult)
	seats, flops, showdowns, actions := 0, 0, 0, 0
	var potBB float64

	for _, e := range ordered(hands, filters) {
		stats.Hands++
		sessions[e.SessionID] = true
		seats += len(e.Players)
		pot := e.TotalPot()
		stats.TotalPot += pot
		potBB += bigBlinds(pot, e.BigBlind)
		if len(e.Board) >= 3 {
			flops++
		}
		if e.Showdown {
			showdowns++
		}
		stats.HandTypes[e.HandType]++
		for _, a := range e.Actions {
			stats.ActionCounts[string(a.Action)]++
			actions++
		}
		for _, p := range e.Players {
			r := totals[p.PlayerID]
			if r == nil {
				r = &PlayerResult{PlayerID: p.PlayerID}
				totals[p.PlayerID] = r
			}
			r.Hands++
			r.NetChips += p.NetAmount
			r.NetBB += bigBlinds(p.NetAmount, e.BigBlind)
		}
	}

	stats.Sessions = len(sessions)
	stats.Players = len(totals)
	if stats.Hands > 0 {
		n := float64(stats.Hands)
		stats.AveragePlayers = float64(seats) / n
		stats.AveragePotBB = potBB / n
		stats.AverageActionsPer = float64(actions) / n
		stats.FlopRate = percent(flops, stats.Hands)
		stats.ShowdownRate = percent(showdowns, stats.Hands)
	}
	stats.TopWinners = sortedResults(totals)
	if topN > 0 && len(stats.TopWinners) > topN {
		stats.TopWinners = stats.TopWinners[:topN]
	}
	return stats
}

func sortedResults(totals map[string]*PlayerResult) []PlayerResult {
	out := make([]PlayerResult, 0, len(totals))
	for _, r := range totals {
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b PlayerResult) int {
		return cmp.Or(cmp.Compare(b.NetChips, a.NetChips), cmp.Compare(a.PlayerID, b.PlayerID))
	})
	return out
}
