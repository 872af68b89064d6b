package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"

	"github.com/lox/homepoker/internal/phh"
	"github.com/lox/homepoker/internal/statistics"
	"github.com/lox/homepoker/poker"
)

// styles are bound to the renderer of the output they draw on, so piping
// to a file yields plain text.
type styles struct {
	renderer *lipgloss.Renderer
	title    lipgloss.Style
	header   lipgloss.Style
	cell     lipgloss.Style
	number   lipgloss.Style
	positive lipgloss.Style
	negative lipgloss.Style
	dim      lipgloss.Style
	border   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	if termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}
	return styles{
		renderer: r,
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		header:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).Padding(0, 1),
		cell:     r.NewStyle().Padding(0, 1),
		number:   r.NewStyle().Padding(0, 1).Align(lipgloss.Right),
		positive: r.NewStyle().Foreground(lipgloss.Color("#04B575")),
		negative: r.NewStyle().Foreground(lipgloss.Color("#FF5F87")),
		dim:      r.NewStyle().Foreground(lipgloss.Color("#626262")),
		border:   r.NewStyle().Foreground(lipgloss.Color("#626262")),
	}
}

// grid draws a bordered table. Columns listed in numeric are right aligned.
func (s styles) grid(headers []string, rows [][]string, numeric ...int) string {
	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == ltable.HeaderRow:
				return s.header
			case slices.Contains(numeric, col):
				return s.number
			}
			return s.cell
		}).
		String()
}

// chips renders a signed chip count, green when up and red when down.
func (s styles) chips(n int) string {
	switch {
	case n > 0:
		return s.positive.Render("+" + strconv.Itoa(n))
	case n < 0:
		return s.negative.Render(strconv.Itoa(n))
	}
	return "0"
}

func (s styles) signed(v float64) string {
	text := fmt.Sprintf("%+.2f", v)
	switch {
	case v > 0:
		return s.positive.Render(text)
	case v < 0:
		return s.negative.Render(text)
	}
	return fmt.Sprintf("%.2f", v)
}

func pct(v float64) string { return fmt.Sprintf("%.1f%%", v) }

func renderLeaderboard(w io.Writer, sessionID string, metric statistics.Metric, board []statistics.LeaderboardEntry) error {
	s := newStyles(w)
	var b strings.Builder
	b.WriteString(s.title.Render(fmt.Sprintf("Session %s by %s", sessionID, metric)))
	b.WriteString("\n")
	if len(board) == 0 {
		msg := "No ranked players"
		if metric.RateBased() {
			msg += fmt.Sprintf(" (rate metrics need %d hands)", statistics.MinimumHands)
		}
		b.WriteString(s.dim.Render(msg))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	rows := make([][]string, 0, len(board))
	for _, e := range board {
		value := strconv.FormatFloat(e.Value, 'f', 2, 64)
		if metric == statistics.MetricNetChips || metric == statistics.MetricHandsPlayed {
			value = strconv.FormatFloat(e.Value, 'f', 0, 64)
		}
		rows = append(rows, []string{
			strconv.Itoa(e.Rank),
			e.PlayerID,
			value,
			strconv.Itoa(e.HandsPlayed),
			s.chips(e.NetChips),
			s.signed(e.BB100),
		})
	}
	b.WriteString(s.grid([]string{"#", "Player", string(metric), "Hands", "Net", "BB/100"}, rows, 0, 2, 3, 4, 5))
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func renderPlayerStats(w io.Writer, st statistics.PlayerStatistics) error {
	s := newStyles(w)
	var b strings.Builder
	b.WriteString(s.title.Render("Player " + st.PlayerID))
	b.WriteString("\n")
	if st.HandsPlayed == 0 {
		b.WriteString(s.dim.Render("No hands found"))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	summary := [][]string{
		{"Hands", strconv.Itoa(st.HandsPlayed)},
		{"Net chips", s.chips(st.NetChips)},
		{"BB/100", s.signed(st.BB100)},
		{"Std dev (BB)", fmt.Sprintf("%.2f", st.StdDevBB)},
		{"Median (BB)", s.signed(st.MedianBB)},
		{"VPIP / PFR", pct(st.VPIP) + " / " + pct(st.PFR)},
		{"3-bet", fmt.Sprintf("%s (%d/%d)", pct(st.ThreeBet), st.ThreeBetHands, st.ThreeBetChances)},
		{"C-bet", fmt.Sprintf("%s (%d/%d)", pct(st.CBet), st.CBetHands, st.CBetChances)},
		{"Aggression", fmt.Sprintf("%.2f", st.AggressionFactor)},
		{"Won / lost", fmt.Sprintf("%d / %d (%s)", st.WonHands, st.LostHands, pct(st.WinRate))},
		{"Showdowns won", fmt.Sprintf("%d/%d (%s)", st.WonAtShowdown, st.WentToShowdown, pct(st.ShowdownWinRate))},
		{"Biggest win / loss", s.chips(st.BiggestWin) + " / " + s.chips(st.BiggestLoss)},
		{"Streaks (W/L)", fmt.Sprintf("%d / %d, current %+d", st.LongestWinStreak, st.LongestLoseStreak, st.CurrentStreak)},
	}
	b.WriteString(s.grid([]string{"Statistic", "Value"}, summary, 1))
	b.WriteString("\n")

	if len(st.ByPosition) > 0 {
		positions := make([]string, 0, len(st.ByPosition))
		for p := range st.ByPosition {
			positions = append(positions, p)
		}
		slices.Sort(positions)
		rows := make([][]string, 0, len(positions))
		for _, p := range positions {
			ps := st.ByPosition[p]
			rows = append(rows, []string{p, strconv.Itoa(ps.Hands), pct(ps.VPIP), pct(ps.PFR), s.chips(ps.NetChips), s.signed(ps.BB100)})
		}
		b.WriteString(s.grid([]string{"Position", "Hands", "VPIP", "PFR", "Net", "BB/100"}, rows, 1, 2, 3, 4, 5))
		b.WriteString("\n")
	}

	if len(st.ByCategory) > 0 {
		var rows [][]string
		for _, c := range []poker.HoleCardCategory{
			poker.CategoryPremium, poker.CategoryStrong, poker.CategoryMedium,
			poker.CategoryWeak, poker.CategoryTrash,
		} {
			cs, ok := st.ByCategory[c]
			if !ok {
				continue
			}
			rows = append(rows, []string{string(c), strconv.Itoa(cs.Hands), s.chips(cs.NetChips), fmt.Sprintf("%d/%d", cs.WonAtShowdown, cs.WentToShowdown)})
		}
		if len(rows) > 0 {
			b.WriteString(s.grid([]string{"Holding", "Hands", "Net", "Showdowns"}, rows, 1, 2, 3))
			b.WriteString("\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func renderPHHSummary(w io.Writer, name string, hands []*phh.HandHistory) error {
	s := newStyles(w)
	rows := make([][]string, 0, len(hands))
	for i, h := range hands {
		var winners []string
		for j, amount := range h.Winnings {
			if amount > 0 && j < len(h.Players) {
				winners = append(winners, fmt.Sprintf("%s +%d", h.Players[j], amount))
			}
		}
		blinds := make([]string, 0, 2)
		for _, bl := range h.BlindsOrStraddles {
			if bl > 0 {
				blinds = append(blinds, strconv.Itoa(bl))
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			h.HandID,
			strings.Join(blinds, "/"),
			strconv.Itoa(len(h.Players)),
			strconv.Itoa(len(h.Actions)),
			strings.Join(winners, ", "),
		})
	}
	var b strings.Builder
	b.WriteString(s.title.Render(fmt.Sprintf("%s: %d hands", name, len(hands))))
	b.WriteString("\n")
	b.WriteString(s.grid([]string{"#", "Hand", "Blinds", "Players", "Actions", "Winners"}, rows, 0, 3, 4))
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
