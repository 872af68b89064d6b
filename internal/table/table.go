package table

import (
	"fmt"
	"math/rand/v2"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/randutil"
	"github.com/lox/homepoker/poker"
)

// Table is the authoritative state of one poker table. It is not safe for
// concurrent use; the router serializes every call through one goroutine.
type Table struct {
	id     string
	cfg    Config
	seats  []*Seat // index is seat number - 1
	status Status

	handNumber int
	board      []poker.Card
	pots       []Pot
	currentBet int
	minRaise   int
	// acted holds the current bet each seat last acted at, since the last
	// full raise of the street
	acted      map[int]int
	revealed   map[int]bool

	dealer  int
	sbSeat  int
	bbSeat  int
	acting  int
	deck    *poker.Deck
	newDeck func() *poker.Deck

	evaluate  func(poker.Hand) poker.HandRank
	clock     quartz.Clock
	logger    zerolog.Logger
	observers []Observer
	pending   []Event
}

// Option customizes a Table.
type Option func(*Table)

// WithRand shuffles every deck with rng.
func WithRand(rng *rand.Rand) Option {
	return func(t *Table) {
		t.newDeck = func() *poker.Deck {
			d := poker.NewDeck()
			d.Shuffle(rng)
			return d
		}
	}
}

// WithDeckSource replaces deck construction, typically with stacked decks.
func WithDeckSource(fn func() *poker.Deck) Option {
	return func(t *Table) { t.newDeck = fn }
}

// WithEvaluator replaces the showdown hand evaluator.
func WithEvaluator(fn func(poker.Hand) poker.HandRank) Option {
	return func(t *Table) { t.evaluate = fn }
}

// WithObserver registers an observer for table events.
func WithObserver(o Observer) Option {
	return func(t *Table) { t.observers = append(t.observers, o) }
}

// WithClock sets the clock used to timestamp events.
func WithClock(c quartz.Clock) Option {
	return func(t *Table) { t.clock = c }
}

// WithLogger sets the table logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// New creates an empty table in the waiting state.
func New(id string, cfg Config, opts ...Option) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("table %s: %w", id, err)
	}
	t := &Table{
		id:       id,
		cfg:      cfg,
		seats:    make([]*Seat, cfg.MaxSeats),
		status:   StatusWaiting,
		minRaise: cfg.BigBlind,
		acted:    make(map[int]int),
		revealed: make(map[int]bool),
		evaluate: poker.Evaluate7Cards,
		clock:    quartz.NewReal(),
		logger:   zerolog.Nop(),
	}
	WithRand(randutil.NewSecure())(t)
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With().Str("component", "table").Str("table_id", id).Logger()
	return t, nil
}

// AddObserver registers o after construction.
func (t *Table) AddObserver(o Observer) { t.observers = append(t.observers, o) }

func (t *Table) ID() string         { return t.id }
func (t *Table) Config() Config     { return t.cfg }
func (t *Table) Status() Status     { return t.status }
func (t *Table) HandNumber() int    { return t.handNumber }
func (t *Table) ActingSeat() int    { return t.acting }
func (t *Table) DealerSeat() int    { return t.dealer }
func (t *Table) CurrentBet() int    { return t.currentBet }
func (t *Table) MinRaise() int      { return t.minRaise }
func (t *Table) Board() []poker.Card { return append([]poker.Card(nil), t.board...) }

// Pot returns the main pot.
func (t *Table) Pot() int {
	if len(t.pots) == 0 {
		return 0
	}
	return t.pots[0].Amount
}

// SidePots returns copies of the side pots, lowest cap first.
func (t *Table) SidePots() []Pot {
	if len(t.pots) < 2 {
		return nil
	}
	return clonePots(t.pots[1:])
}

// TotalPot sums the main and side pots.
func (t *Table) TotalPot() int {
	total := 0
	for _, p := range t.pots {
		total += p.Amount
	}
	return total
}

// Seat returns a copy of the seat, or false if it is empty or out of range.
func (t *Table) Seat(number int) (Seat, bool) {
	s := t.seat(number)
	if s == nil {
		return Seat{}, false
	}
	cp := *s
	cp.HoleCards = append([]poker.Card(nil), s.HoleCards...)
	return cp, true
}

// SeatOf finds the seat a player occupies.
func (t *Table) SeatOf(playerID string) (int, bool) {
	for _, s := range t.seats {
		if s != nil && s.PlayerID == playerID {
			return s.Number, true
		}
	}
	return 0, false
}

// EligibleSeats counts seats that would be dealt into the next hand.
func (t *Table) EligibleSeats() int {
	n := 0
	for _, s := range t.seats {
		if s != nil && s.eligibleForHand() {
			n++
		}
	}
	return n
}

func (t *Table) seat(number int) *Seat {
	if number < 1 || number > len(t.seats) {
		return nil
	}
	return t.seats[number-1]
}

// next returns the first occupied seat after from (clockwise, wrapping,
// from itself last) that satisfies pred, or 0.
func (t *Table) next(from int, pred func(*Seat) bool) int {
	n := len(t.seats)
	for i := 1; i <= n; i++ {
		num := (from-1+i+n)%n + 1
		if s := t.seats[num-1]; s != nil && pred(s) {
			return num
		}
	}
	return 0
}

func (t *Table) inHand(s *Seat) bool { return s.InHand }

func (t *Table) count(pred func(*Seat) bool) int {
	n := 0
	for _, s := range t.seats {
		if s != nil && pred(s) {
			n++
		}
	}
	return n
}

// SitDown seats a player with a buy-in.
func (t *Table) SitDown(number int, playerID string, buyIn int) error {
	defer t.flush()
	if number < 1 || number > len(t.seats) {
		return ErrSeatOutOfRange
	}
	if t.seats[number-1] != nil {
		return ErrSeatTaken
	}
	if _, ok := t.SeatOf(playerID); ok {
		return ErrAlreadySeated
	}
	if buyIn <= 0 || (t.cfg.MinBuyIn > 0 && buyIn < t.cfg.MinBuyIn) || (t.cfg.MaxBuyIn > 0 && buyIn > t.cfg.MaxBuyIn) {
		return fmt.Errorf("%w: %d", ErrInvalidBuyIn, buyIn)
	}
	t.seats[number-1] = &Seat{Number: number, PlayerID: playerID, Stack: buyIn}
	t.emit(Event{Type: EventSeatChanged, Seat: number, PlayerID: playerID, Amount: buyIn, Reason: "sat_down"})
	return nil
}

// StandUp removes a player who is not involved in the current hand. Players
// still in a hand should use RequestLeave.
func (t *Table) StandUp(number int) error {
	defer t.flush()
	s := t.seat(number)
	if s == nil {
		return ErrSeatEmpty
	}
	if s.InHand && t.status.Betting() {
		return ErrHandInProgress
	}
	t.seats[number-1] = nil
	t.emit(Event{Type: EventSeatChanged, Seat: number, PlayerID: s.PlayerID, Amount: s.Stack, Reason: "stood_up"})
	return nil
}

// RequestLeave stands the player up now when possible, otherwise marks the
// seat to sit out and leave once the hand ends. It reports whether the seat
// was freed immediately.
func (t *Table) RequestLeave(number int) (bool, error) {
	s := t.seat(number)
	if s == nil {
		return false, ErrSeatEmpty
	}
	if !(s.InHand && t.status.Betting()) {
		return true, t.StandUp(number)
	}
	s.SittingOut = true
	s.Leaving = true
	return false, nil
}

// SetSittingOut toggles whether the seat is dealt into future hands. A seat
// already in a hand keeps its obligations.
func (t *Table) SetSittingOut(number int, out bool) error {
	defer t.flush()
	s := t.seat(number)
	if s == nil {
		return ErrSeatEmpty
	}
	if s.SittingOut == out {
		return nil
	}
	s.SittingOut = out
	reason := "sitting_out"
	if !out {
		reason = "sitting_in"
	}
	t.emit(Event{Type: EventSeatChanged, Seat: number, PlayerID: s.PlayerID, Reason: reason})
	return nil
}

// AddChips tops up a stack between hands.
func (t *Table) AddChips(number, amount int) error {
	s := t.seat(number)
	if s == nil {
		return ErrSeatEmpty
	}
	if s.InHand && t.status.Betting() {
		return ErrHandInProgress
	}
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBuyIn, amount)
	}
	s.Stack += amount
	return nil
}

// StartHand moves waiting to preflop: rotates the button, posts blinds and
// deals two hole cards to every eligible seat.
func (t *Table) StartHand() error {
	defer t.flush()
	if t.status != StatusWaiting {
		return ErrHandInProgress
	}
	if t.EligibleSeats() < 2 {
		return ErrNotEnoughPlayers
	}

	t.handNumber++
	t.board = nil
	t.pots = nil
	t.currentBet = 0
	t.minRaise = t.cfg.BigBlind
	t.acted = make(map[int]int)
	t.revealed = make(map[int]bool)
	for _, s := range t.seats {
		if s == nil {
			continue
		}
		*s = Seat{
			Number:     s.Number,
			PlayerID:   s.PlayerID,
			Stack:      s.Stack,
			SittingOut: s.SittingOut,
			Leaving:    s.Leaving,
			InHand:     s.eligibleForHand(),
		}
	}

	t.dealer = t.next(t.dealer, t.inHand)
	if t.count(t.inHand) == 2 {
		t.sbSeat = t.dealer
		t.bbSeat = t.next(t.dealer, t.inHand)
	} else {
		t.sbSeat = t.next(t.dealer, t.inHand)
		t.bbSeat = t.next(t.sbSeat, t.inHand)
	}
	t.status = StatusPreflop
	t.deck = t.newDeck()

	t.emit(Event{Type: EventHandStarted, Start: t.handStart()})

	t.post(t.sbSeat, t.cfg.SmallBlind, ActionPostSmallBlind)
	t.post(t.bbSeat, t.cfg.BigBlind, ActionPostBigBlind)
	t.currentBet = t.cfg.BigBlind

	if err := t.dealHoleCards(); err != nil {
		t.abort(err)
		return err
	}

	t.acting = t.next(t.bbSeat, t.needsToAct)
	if t.roundComplete() {
		t.completeRound()
	}
	return nil
}

func (t *Table) handStart() *HandStart {
	hs := &HandStart{
		DealerSeat:     t.dealer,
		SmallBlindSeat: t.sbSeat,
		BigBlindSeat:   t.bbSeat,
		SmallBlind:     t.cfg.SmallBlind,
		BigBlind:       t.cfg.BigBlind,
	}
	order := t.clockwiseFrom(t.dealer-1, t.inHand)
	for i, num := range order {
		s := t.seats[num-1]
		hs.Players = append(hs.Players, PlayerStart{
			Seat:     num,
			PlayerID: s.PlayerID,
			Stack:    s.Stack,
			Position: PositionName(len(order), i),
		})
	}
	return hs
}

// clockwiseFrom lists matching seats starting after from.
func (t *Table) clockwiseFrom(from int, pred func(*Seat) bool) []int {
	var out []int
	n := len(t.seats)
	for i := 1; i <= n; i++ {
		num := (from-1+i+n)%n + 1
		if s := t.seats[num-1]; s != nil && pred(s) {
			out = append(out, num)
		}
	}
	return out
}

func (t *Table) dealHoleCards() error {
	order := t.clockwiseFrom(t.dealer, t.inHand)
	for range 2 {
		for _, num := range order {
			cards, err := t.deck.Deal(1)
			if err != nil {
				return err
			}
			s := t.seats[num-1]
			s.HoleCards = append(s.HoleCards, cards[0])
		}
	}
	for _, num := range order {
		s := t.seats[num-1]
		t.emit(Event{
			Type:     EventHoleCards,
			Seat:     num,
			PlayerID: s.PlayerID,
			Cards:    append([]poker.Card(nil), s.HoleCards...),
		})
	}
	return nil
}

func (t *Table) post(number, amount int, kind ActionType) {
	s := t.seats[number-1]
	paid := t.pay(s, amount)
	t.emit(Event{
		Type:     EventPlayerAction,
		Seat:     number,
		PlayerID: s.PlayerID,
		Action: &ActionEvent{
			Type:       kind,
			Amount:     paid,
			StreetBet:  s.StreetBet,
			CurrentBet: max(t.currentBet, s.StreetBet),
			Pot:        t.TotalPot(),
			AllIn:      s.AllIn,
			Street:     t.status,
		},
	})
}

// pay moves up to amount chips from the seat's stack into the pot.
func (t *Table) pay(s *Seat, amount int) int {
	amount = min(amount, s.Stack)
	s.Stack -= amount
	s.StreetBet += amount
	s.Contribution += amount
	if s.Stack == 0 {
		s.AllIn = true
	}
	t.pots = computePots(t.seats)
	return amount
}

func (t *Table) emit(e Event) {
	e.TableID = t.id
	e.HandNumber = t.handNumber
	e.Time = t.clock.Now()
	t.pending = append(t.pending, e)
}

// flush hands queued events to observers once a mutation is complete.
func (t *Table) flush() {
	for len(t.pending) > 0 {
		batch := t.pending
		t.pending = nil
		for _, e := range batch {
			for _, o := range t.observers {
				o.OnTableEvent(e)
			}
		}
	}
}

// PositionName labels a seat by its distance clockwise from the button in a
// hand with n players.
func PositionName(n, fromButton int) string {
	switch {
	case fromButton == 0:
		return "BTN"
	case n == 2:
		return "BB"
	case fromButton == 1:
		return "SB"
	case fromButton == 2:
		return "BB"
	}
	rest := n - 3
	idx := fromButton - 3
	tail := []string{"MP", "HJ", "CO"}
	if rest == 1 {
		return "UTG"
	}
	if k := min(rest-1, len(tail)); idx >= rest-k {
		return tail[len(tail)-(rest-idx)]
	}
	if idx == 0 {
		return "UTG"
	}
	return fmt.Sprintf("UTG+%d", idx)
}

func clonePots(pots []Pot) []Pot {
	out := make([]Pot, len(pots))
	for i, p := range pots {
		out[i] = Pot{Amount: p.Amount, Eligible: append([]int(nil), p.Eligible...)}
	}
	return out
}
