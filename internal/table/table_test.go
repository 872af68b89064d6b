package table

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/homepoker/internal/randutil"
	"github.com/lox/homepoker/poker"
)

type eventLog struct{ events []Event }

func (l *eventLog) OnTableEvent(e Event) { l.events = append(l.events, e) }

func (l *eventLog) ofType(tp EventType) []Event {
	var out []Event
	for _, e := range l.events {
		if e.Type == tp {
			out = append(out, e)
		}
	}
	return out
}

func newTestTable(t *testing.T, stacks []int, opts ...Option) (*Table, *eventLog) {
	t.Helper()
	log := &eventLog{}
	base := []Option{WithObserver(log), WithRand(randutil.New(1))}
	tbl, err := New("test", Config{SmallBlind: 1, BigBlind: 2, MaxSeats: 6}, append(base, opts...)...)
	require.NoError(t, err)
	for i, stack := range stacks {
		require.NoError(t, tbl.SitDown(i+1, fmt.Sprintf("p%d", i+1), stack))
	}
	return tbl, log
}

// stackedDeck deals holes one card per pass in dealing order (left of the
// dealer first), then the board, then everything else.
func stackedDeck(order []int, holes map[int]string, board string) Option {
	var cards []poker.Card
	for pass := range 2 {
		for _, seat := range order {
			cards = append(cards, poker.MustParseCards(holes[seat])[pass])
		}
	}
	cards = append(cards, poker.MustParseCards(board)...)
	used := poker.NewHand(cards...)
	for _, c := range poker.NewDeck().Cards() {
		if !used.HasCard(c) {
			cards = append(cards, c)
		}
	}
	return WithDeckSource(func() *poker.Deck { return poker.NewStackedDeck(cards) })
}

func act(t *testing.T, tbl *Table, seat int, tp ActionType, amount ...int) {
	t.Helper()
	a := Action{Type: tp}
	if len(amount) > 0 {
		a.Amount = amount[0]
	}
	require.NoError(t, tbl.Apply(seat, a), "seat %d %s", seat, a)
}

func stack(t *testing.T, tbl *Table, seat int) int {
	t.Helper()
	s, ok := tbl.Seat(seat)
	require.True(t, ok)
	return s.Stack
}

func TestHeadsUpPreflopToFlop(t *testing.T) {
	tbl, _ := newTestTable(t, []int{100, 100})
	require.NoError(t, tbl.StartHand())

	assert.Equal(t, StatusPreflop, tbl.Status())
	assert.Equal(t, 1, tbl.DealerSeat())
	assert.Equal(t, 99, stack(t, tbl, 1), "dealer posts the small blind heads-up")
	assert.Equal(t, 98, stack(t, tbl, 2))
	assert.Equal(t, 2, tbl.CurrentBet())
	assert.Equal(t, 1, tbl.ActingSeat(), "dealer acts first preflop heads-up")
	assert.Equal(t, 3, tbl.Pot())

	act(t, tbl, 1, ActionCall)
	assert.Equal(t, 2, tbl.ActingSeat())
	assert.Equal(t, 4, tbl.Pot())

	act(t, tbl, 2, ActionCheck)
	assert.Equal(t, StatusFlop, tbl.Status())
	assert.Len(t, tbl.Board(), 3)
	assert.Equal(t, 0, tbl.CurrentBet())
	assert.Equal(t, 2, tbl.ActingSeat(), "big blind acts first after the flop heads-up")
}

func TestHeadsUpButtonRotates(t *testing.T) {
	tbl, _ := newTestTable(t, []int{100, 100})
	require.NoError(t, tbl.StartHand())
	act(t, tbl, 1, ActionFold)
	require.Equal(t, StatusWaiting, tbl.Status())
	assert.Equal(t, 99, stack(t, tbl, 1))
	assert.Equal(t, 101, stack(t, tbl, 2))

	require.NoError(t, tbl.StartHand())
	assert.Equal(t, 2, tbl.DealerSeat())
	assert.Equal(t, 2, tbl.ActingSeat())
	assert.Equal(t, 100, stack(t, tbl, 2), "new dealer posts the small blind")
	assert.Equal(t, 97, stack(t, tbl, 1))
}

func TestOutOfTurnActionIsRejectedWithoutMutation(t *testing.T) {
	tbl, log := newTestTable(t, []int{100, 100})
	require.NoError(t, tbl.StartHand())
	before := tbl.Snapshot(0)
	events := len(log.events)

	err := tbl.Apply(2, Action{Type: ActionCall})
	var illegal *IllegalActionError
	require.True(t, errors.As(err, &illegal))
	assert.Equal(t, 2, illegal.Seat)
	assert.Contains(t, illegal.Reason, "turn")
	assert.Equal(t, before, tbl.Snapshot(0))
	assert.Len(t, log.events, events, "rejections emit nothing")
}

func TestStartHandNeedsTwoFundedSeats(t *testing.T) {
	tbl, _ := newTestTable(t, []int{100})
	assert.ErrorIs(t, tbl.StartHand(), ErrNotEnoughPlayers)

	require.NoError(t, tbl.SitDown(3, "p3", 50))
	require.NoError(t, tbl.SetSittingOut(3, true))
	assert.ErrorIs(t, tbl.StartHand(), ErrNotEnoughPlayers)

	require.NoError(t, tbl.SetSittingOut(3, false))
	require.NoError(t, tbl.StartHand())
	assert.ErrorIs(t, tbl.StartHand(), ErrHandInProgress)
}

func TestSeatManagement(t *testing.T) {
	tbl, log := newTestTable(t, []int{100})
	assert.ErrorIs(t, tbl.SitDown(1, "x", 100), ErrSeatTaken)
	assert.ErrorIs(t, tbl.SitDown(7, "x", 100), ErrSeatOutOfRange)
	assert.ErrorIs(t, tbl.SitDown(2, "p1", 100), ErrAlreadySeated)
	assert.ErrorIs(t, tbl.SitDown(2, "x", 0), ErrInvalidBuyIn)

	require.NoError(t, tbl.SitDown(2, "p2", 100))
	require.NoError(t, tbl.StartHand())
	assert.ErrorIs(t, tbl.StandUp(1), ErrHandInProgress)

	freed, err := tbl.RequestLeave(1)
	require.NoError(t, err)
	assert.False(t, freed)

	act(t, tbl, 1, ActionFold)
	_, ok := tbl.Seat(1)
	assert.False(t, ok, "leaving seat is released when the hand ends")
	last := log.ofType(EventSeatChanged)
	assert.Equal(t, "stood_up", last[len(last)-1].Reason)
}

func TestFoldedSeatStaysUntilHandEnds(t *testing.T) {
	tbl, _ := newTestTable(t, []int{100, 100, 100})
	require.NoError(t, tbl.StartHand())
	act(t, tbl, 1, ActionCall)
	act(t, tbl, 2, ActionFold)

	assert.ErrorIs(t, tbl.StandUp(2), ErrHandInProgress, "folded blind is still in the pot")
	s, ok := tbl.Seat(2)
	require.True(t, ok)
	assert.Equal(t, 1, s.Contribution)
	assert.Equal(t, 5, tbl.TotalPot())

	freed, err := tbl.RequestLeave(2)
	require.NoError(t, err)
	assert.False(t, freed)
	act(t, tbl, 3, ActionCheck)
	for tbl.Status().Betting() {
		act(t, tbl, tbl.ActingSeat(), ActionCheck)
	}
	_, ok = tbl.Seat(2)
	assert.False(t, ok, "released once the hand is over")
}

func TestEverybodyFoldsAwardsPotWithoutShowdown(t *testing.T) {
	tbl, log := newTestTable(t, []int{100, 100, 100})
	require.NoError(t, tbl.StartHand())
	require.Equal(t, 1, tbl.ActingSeat())

	act(t, tbl, 1, ActionRaise, 6)
	act(t, tbl, 2, ActionFold)
	act(t, tbl, 3, ActionFold)

	assert.Equal(t, StatusWaiting, tbl.Status())
	assert.Equal(t, 103, stack(t, tbl, 1))
	assert.Equal(t, 99, stack(t, tbl, 2))
	assert.Equal(t, 98, stack(t, tbl, 3))

	assert.Empty(t, log.ofType(EventShowdown))
	returned := log.ofType(EventUncalledBet)
	require.Len(t, returned, 1)
	assert.Equal(t, 4, returned[0].Amount)

	done := log.ofType(EventHandCompleted)
	require.Len(t, done, 1)
	result := done[0].Result
	assert.False(t, result.Showdown)
	for _, r := range result.Seats {
		assert.Nil(t, r.HoleCards, "no cards revealed without a showdown")
	}
	assertZeroSum(t, result)

	for _, v := range tbl.Snapshot(0).Seats {
		assert.Nil(t, v.HoleCards)
	}
}

func TestSidePotContestedByCoveringPlayers(t *testing.T) {
	tbl, log := newTestTable(t, []int{100, 30, 100, 100},
		stackedDeck([]int{2, 3, 4, 1}, map[int]string{
			1: "Ks Kh", 2: "As Ah", 3: "2c 7d", 4: "Qs Qh",
		}, "Ad Kc 5c 8h 3s"))
	require.NoError(t, tbl.StartHand())
	require.Equal(t, 4, tbl.ActingSeat())

	act(t, tbl, 4, ActionRaise, 10)
	act(t, tbl, 1, ActionCall)
	act(t, tbl, 2, ActionAllIn)
	assert.Equal(t, 30, tbl.CurrentBet())
	act(t, tbl, 3, ActionFold)
	act(t, tbl, 4, ActionCall)
	act(t, tbl, 1, ActionCall)

	require.Equal(t, StatusFlop, tbl.Status())
	assert.Equal(t, 92, tbl.Pot())
	assert.Empty(t, tbl.SidePots())
	require.Equal(t, 4, tbl.ActingSeat())

	act(t, tbl, 4, ActionBet, 20)
	act(t, tbl, 1, ActionCall)
	require.Equal(t, StatusTurn, tbl.Status())
	assert.Equal(t, 92, tbl.Pot())
	assert.Equal(t, []Pot{{Amount: 40, Eligible: []int{1, 4}}}, tbl.SidePots())

	for _, street := range []Status{StatusTurn, StatusRiver} {
		require.Equal(t, street, tbl.Status())
		act(t, tbl, 4, ActionCheck)
		act(t, tbl, 1, ActionCheck)
	}

	assert.Equal(t, StatusWaiting, tbl.Status())
	assert.Equal(t, 90, stack(t, tbl, 1))
	assert.Equal(t, 92, stack(t, tbl, 2))
	assert.Equal(t, 98, stack(t, tbl, 3))
	assert.Equal(t, 50, stack(t, tbl, 4))

	shows := log.ofType(EventShowdown)
	require.Len(t, shows, 1)
	require.Len(t, shows[0].Showdown.Pots, 2)
	assert.Equal(t, []int{2}, shows[0].Showdown.Pots[0].Winners)
	assert.Equal(t, []int{1}, shows[0].Showdown.Pots[1].Winners)
	assertZeroSum(t, log.ofType(EventHandCompleted)[0].Result)
}

func TestShortAllInCapsMainPotAndReturnsExcess(t *testing.T) {
	tbl, log := newTestTable(t, []int{50, 30, 100},
		stackedDeck([]int{2, 3, 1}, map[int]string{
			1: "9c 4d", 2: "As Ah", 3: "Ks Kh",
		}, "2d 7c Jh 8s 3c"))
	require.NoError(t, tbl.StartHand())

	act(t, tbl, 1, ActionCall)
	act(t, tbl, 2, ActionCall)
	act(t, tbl, 3, ActionRaise, 40)
	act(t, tbl, 1, ActionFold)
	assert.Equal(t, 44, tbl.Pot())
	act(t, tbl, 2, ActionAllIn)

	returned := log.ofType(EventUncalledBet)
	require.Len(t, returned, 1)
	assert.Equal(t, 3, returned[0].Seat)
	assert.Equal(t, 10, returned[0].Amount)

	result := log.ofType(EventHandCompleted)[0].Result
	require.Len(t, result.Pots, 1)
	assert.Equal(t, 62, result.Pots[0].Amount)
	assert.Equal(t, 48, stack(t, tbl, 1))
	assert.Equal(t, 62, stack(t, tbl, 2))
	assert.Equal(t, 70, stack(t, tbl, 3))
	assert.Len(t, tbl.Board(), 5, "board runs out once nobody can act")
	assertZeroSum(t, result)
}

func TestSplitPotOddChipGoesLeftOfDealer(t *testing.T) {
	tbl, log := newTestTable(t, []int{100, 100, 100},
		stackedDeck([]int{2, 3, 1}, map[int]string{
			1: "2c 3d", 2: "6d 7h", 3: "4h 5s",
		}, "Ah Kd Qc Js Tc"))
	require.NoError(t, tbl.StartHand())

	act(t, tbl, 1, ActionCall)
	act(t, tbl, 2, ActionFold)
	act(t, tbl, 3, ActionCheck)
	for range 3 {
		act(t, tbl, 3, ActionCheck)
		act(t, tbl, 1, ActionCheck)
	}

	award := log.ofType(EventShowdown)[0].Showdown.Pots[0]
	assert.Equal(t, 5, award.Amount)
	assert.Equal(t, []int{3, 1}, award.Winners)
	assert.Equal(t, []SeatAmount{{Seat: 3, Amount: 3}, {Seat: 1, Amount: 2}}, award.Awards)
	assert.Equal(t, 100, stack(t, tbl, 1))
	assert.Equal(t, 99, stack(t, tbl, 2))
	assert.Equal(t, 101, stack(t, tbl, 3))

	snap := tbl.Snapshot(0)
	for _, v := range snap.Seats {
		if v.Number == 2 {
			assert.Nil(t, v.HoleCards, "folded hands stay hidden")
		} else {
			assert.Len(t, v.HoleCards, 2, "showdown hands are revealed")
		}
	}
}

func TestMinimumRaiseAndIncompleteAllIn(t *testing.T) {
	tbl, _ := newTestTable(t, []int{100, 100, 15})
	require.NoError(t, tbl.StartHand())

	err := tbl.Apply(1, Action{Type: ActionRaise, Amount: 3})
	require.True(t, IsIllegalAction(err))
	assert.Contains(t, err.Error(), "minimum is 4")

	act(t, tbl, 1, ActionRaise, 10)
	assert.Equal(t, 8, tbl.MinRaise())
	act(t, tbl, 2, ActionCall)
	act(t, tbl, 3, ActionAllIn)
	assert.Equal(t, 15, tbl.CurrentBet())
	assert.Equal(t, 8, tbl.MinRaise(), "short all-in is not a full raise")

	require.Equal(t, 1, tbl.ActingSeat())
	assert.Equal(t, []ActionType{ActionFold, ActionCall}, tbl.LegalActions(1))
	err = tbl.Apply(1, Action{Type: ActionRaise, Amount: 30})
	require.True(t, IsIllegalAction(err))
	assert.Contains(t, err.Error(), "closed")

	act(t, tbl, 1, ActionCall)
	act(t, tbl, 2, ActionCall)
	assert.Equal(t, StatusFlop, tbl.Status())
	assert.Equal(t, 45, tbl.Pot())
	assert.Empty(t, tbl.SidePots())
	assert.Equal(t, 2, tbl.ActingSeat())
}

func TestShortAllInsThatAddUpToAFullRaiseReopenRaising(t *testing.T) {
	tbl, _ := newTestTable(t, []int{100, 100, 17, 22})
	require.NoError(t, tbl.StartHand())
	act(t, tbl, 4, ActionCall)
	act(t, tbl, 1, ActionCall)
	act(t, tbl, 2, ActionCall)
	act(t, tbl, 3, ActionCheck)
	require.Equal(t, StatusFlop, tbl.Status())

	act(t, tbl, 2, ActionBet, 10)
	act(t, tbl, 3, ActionAllIn)
	assert.Equal(t, 10, tbl.MinRaise(), "15 is not a full raise over 10")
	assert.Contains(t, tbl.LegalActions(4), ActionRaise, "seat 4 has not acted yet")
	act(t, tbl, 4, ActionAllIn)
	assert.Equal(t, 20, tbl.CurrentBet())
	assert.Equal(t, 10, tbl.MinRaise())
	act(t, tbl, 1, ActionCall)

	require.Equal(t, 2, tbl.ActingSeat())
	assert.Contains(t, tbl.LegalActions(2), ActionRaise, "two short all-ins added a full raise since seat 2 bet")
	act(t, tbl, 2, ActionRaise, 40)
	assert.Equal(t, 40, tbl.CurrentBet())
	assert.Equal(t, 20, tbl.MinRaise())
	require.Equal(t, 1, tbl.ActingSeat())
	assert.Contains(t, tbl.LegalActions(1), ActionRaise)
}

func TestBigBlindOption(t *testing.T) {
	tbl, _ := newTestTable(t, []int{100, 100, 100})
	require.NoError(t, tbl.StartHand())
	act(t, tbl, 1, ActionCall)
	act(t, tbl, 2, ActionCall)
	require.Equal(t, StatusPreflop, tbl.Status())
	require.Equal(t, 3, tbl.ActingSeat())
	assert.Equal(t, []ActionType{ActionFold, ActionCheck, ActionRaise, ActionAllIn}, tbl.LegalActions(3))

	act(t, tbl, 3, ActionRaise, 6)
	assert.Equal(t, 1, tbl.ActingSeat(), "raise reopens the action")
}

func TestTimeoutChecksWhenFreeAndFoldsOtherwise(t *testing.T) {
	tbl, log := newTestTable(t, []int{100, 100})
	require.NoError(t, tbl.StartHand())

	a, err := tbl.ApplyTimeout(1)
	require.NoError(t, err)
	assert.Equal(t, ActionFold, a.Type)
	actions := log.ofType(EventPlayerAction)
	assert.True(t, actions[len(actions)-1].Action.Timeout)

	require.NoError(t, tbl.StartHand())
	act(t, tbl, 2, ActionCall)
	a, err = tbl.ApplyTimeout(1)
	require.NoError(t, err)
	assert.Equal(t, ActionCheck, a.Type)
	assert.Equal(t, StatusFlop, tbl.Status())
}

func TestInsufficientCardsAbortsAndRefunds(t *testing.T) {
	short := poker.MustParseCards("As Kd Qh")
	tbl, log := newTestTable(t, []int{100, 100, 100},
		WithDeckSource(func() *poker.Deck { return poker.NewStackedDeck(short) }))

	err := tbl.StartHand()
	var insufficient *poker.InsufficientCardsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, StatusWaiting, tbl.Status())
	for seat := 1; seat <= 3; seat++ {
		assert.Equal(t, 100, stack(t, tbl, seat))
	}
	assert.Len(t, log.ofType(EventHandAborted), 1)
	assert.Equal(t, 0, tbl.TotalPot())
}

func TestSnapshotHidesOpponentCards(t *testing.T) {
	tbl, log := newTestTable(t, []int{100, 100, 100})
	require.NoError(t, tbl.StartHand())

	holes := log.ofType(EventHoleCards)
	require.Len(t, holes, 3)
	for _, e := range holes {
		assert.True(t, e.Private())
		assert.Len(t, e.Cards, 2)
	}

	snap := tbl.Snapshot(2)
	for _, v := range snap.Seats {
		if v.Number == 2 {
			assert.Len(t, v.HoleCards, 2)
		} else {
			assert.Nil(t, v.HoleCards)
			assert.True(t, v.HasCards)
		}
	}
	assert.Empty(t, snap.LegalActions, "seat 2 is not acting")
	assert.NotEmpty(t, tbl.Snapshot(1).LegalActions)
}

func TestHandStartedReportsPositions(t *testing.T) {
	tbl, log := newTestTable(t, []int{100, 100, 100, 100})
	require.NoError(t, tbl.StartHand())
	start := log.ofType(EventHandStarted)[0].Start
	require.Len(t, start.Players, 4)
	var got []string
	for _, p := range start.Players {
		got = append(got, p.Position)
		assert.Equal(t, 100, p.Stack, "stacks are reported before blinds")
	}
	assert.Equal(t, []string{"BTN", "SB", "BB", "UTG"}, got)
}

func TestPositionName(t *testing.T) {
	tests := []struct {
		n    int
		want []string
	}{
		{2, []string{"BTN", "BB"}},
		{3, []string{"BTN", "SB", "BB"}},
		{5, []string{"BTN", "SB", "BB", "UTG", "CO"}},
		{6, []string{"BTN", "SB", "BB", "UTG", "HJ", "CO"}},
		{9, []string{"BTN", "SB", "BB", "UTG", "UTG+1", "UTG+2", "MP", "HJ", "CO"}},
	}
	for _, tc := range tests {
		var got []string
		for i := range tc.n {
			got = append(got, PositionName(tc.n, i))
		}
		assert.Equal(t, tc.want, got, "n=%d", tc.n)
	}
}

// Random legal play must never create or destroy chips.
func TestChipConservationUnderRandomPlay(t *testing.T) {
	for seed := int64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprint(seed), func(t *testing.T) {
			rng := randutil.New(seed)
			stacks := []int{40 + rng.IntN(200), 40 + rng.IntN(200), 40 + rng.IntN(200)}
			for range rng.IntN(4) {
				stacks = append(stacks, 20+rng.IntN(300))
			}
			total := 0
			for _, s := range stacks {
				total += s
			}
			tbl, log := newTestTable(t, stacks, WithRand(rng))

			for hand := 0; hand < 40 && tbl.EligibleSeats() >= 2; hand++ {
				require.NoError(t, tbl.StartHand())
				for steps := 0; tbl.Status().Betting(); steps++ {
					require.Less(t, steps, 200, "hand did not terminate")
					seat := tbl.ActingSeat()
					legal := tbl.LegalActions(seat)
					require.NotEmpty(t, legal)
					a := Action{Type: legal[rng.IntN(len(legal))]}
					if a.Type.Aggressive() {
						s, _ := tbl.Seat(seat)
						lo, hi := tbl.MinRaiseTo(seat), s.StreetBet+s.Stack
						a.Amount = lo + rng.IntN(hi-lo+1)
					}
					require.NoError(t, tbl.Apply(seat, a), "seat %d %s", seat, a)
					assertConserved(t, tbl, total)
				}
				assertConserved(t, tbl, total)
			}
			for _, e := range log.ofType(EventHandCompleted) {
				assertZeroSum(t, e.Result)
			}
		})
	}
}

func assertConserved(t *testing.T, tbl *Table, total int) {
	t.Helper()
	stacks, contributed := 0, 0
	for _, v := range tbl.Snapshot(0).Seats {
		require.GreaterOrEqual(t, v.Stack, 0)
		stacks += v.Stack
		contributed += v.Contribution
	}
	require.Equal(t, contributed, tbl.TotalPot(), "contributions must equal the pots")
	require.Equal(t, total, stacks+tbl.TotalPot())
}

func assertZeroSum(t *testing.T, r *HandResult) {
	t.Helper()
	net := 0
	for _, s := range r.Seats {
		net += s.Net()
	}
	assert.Zero(t, net)
}
