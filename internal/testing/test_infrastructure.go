// Package testing runs the whole engine in-process for end-to-end tests:
// router, history pipeline and HTTP server on a mock clock, driven by
// real WebSocket clients.
package testing

import (
	"context"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lox/homepoker/internal/events"
	"github.com/lox/homepoker/internal/metrics"
	"github.com/lox/homepoker/internal/protocol"
	"github.com/lox/homepoker/internal/randutil"
	"github.com/lox/homepoker/internal/router"
	"github.com/lox/homepoker/internal/server"
	"github.com/lox/homepoker/internal/storage"
	"github.com/lox/homepoker/internal/table"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Test constants
const (
	TableID      = "friday"
	DefaultBuyIn = 200
	SmallBlind   = 1
	BigBlind     = 2
	HandDelay    = 3 * time.Second
	TimeBank     = 30 * time.Second

	// Real time allowed for a frame to arrive
	EventTimeout = 2 * time.Second
)

// Harness is a running engine.
type Harness struct {
	t        *testing.T
	Clock    *quartz.Mock
	Router   *router.Router
	Repo     *storage.MemoryRepository
	Events   *events.Memory
	Registry *prometheus.Registry
	URL      string
}

// NewHarness starts an engine with one six-seat table whose decks are
// shuffled from seed.
func NewHarness(t *testing.T, seed int64) *Harness {
	t.Helper()
	h := &Harness{
		t:        t,
		Clock:    quartz.NewMock(t),
		Repo:     storage.NewMemoryRepository(),
		Events:   &events.Memory{},
		Registry: prometheus.NewRegistry(),
	}
	logger := zerolog.Nop()
	m := metrics.New(h.Registry)

	pipeline := router.NewPipeline(h.Repo, nil, logger, m, 256)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pipeline.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	h.Router = router.New(logger,
		router.WithClock(h.Clock),
		router.WithTimeBank(TimeBank),
		router.WithHandDelay(HandDelay),
		router.WithHistory(pipeline),
		router.WithMetrics(m),
		router.WithPublisher(h.Events),
	)
	t.Cleanup(func() { _ = h.Router.Close() })

	_, err := h.Router.CreateTable(TableID, table.Config{
		SmallBlind: SmallBlind,
		BigBlind:   BigBlind,
		MaxSeats:   6,
		MinBuyIn:   40,
		MaxBuyIn:   400,
	}, table.WithRand(randutil.New(seed)))
	require.NoError(t, err)

	srv, err := server.New(h.Router, h.Repo, logger, server.WithGatherer(h.Registry))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	h.URL = ts.URL
	return h
}

// Sync waits until the table has processed every earlier command.
func (h *Harness) Sync() table.Snapshot {
	h.t.Helper()
	snap, err := h.Router.GameState(context.Background(), TableID, "")
	require.NoError(h.t, err)
	return snap
}

// NextHand lets the between-hands delay run out.
func (h *Harness) NextHand() {
	h.t.Helper()
	h.Sync()
	h.advance(HandDelay)
}

// ExpireTimeBank runs the acting player's clock down.
func (h *Harness) ExpireTimeBank() {
	h.t.Helper()
	h.Sync()
	h.advance(TimeBank)
}

func (h *Harness) advance(d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), EventTimeout)
	defer cancel()
	h.Clock.Advance(d).MustWait(ctx)
	h.Sync()
}

// SessionID is the history session of the harness table.
func (h *Harness) SessionID() string {
	for _, info := range h.Router.Tables() {
		if info.ID == TableID {
			return info.SessionID
		}
	}
	h.t.Fatalf("table %s not open", TableID)
	return ""
}

// Counter sums every series of a counter metric.
func (h *Harness) Counter(name string) float64 {
	h.t.Helper()
	families, err := h.Registry.Gather()
	require.NoError(h.t, err)
	total := 0.0
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

// Strategy picks an action from the acting player's view of the table.
type Strategy func(table.Snapshot) table.Action

// CallingStation checks when it can and calls otherwise.
func CallingStation(s table.Snapshot) table.Action {
	if slices.Contains(s.LegalActions, table.ActionCheck) {
		return table.Action{Type: table.ActionCheck}
	}
	return table.Action{Type: table.ActionCall}
}

// Folder gives up whenever it faces a bet.
func Folder(s table.Snapshot) table.Action {
	if slices.Contains(s.LegalActions, table.ActionCheck) {
		return table.Action{Type: table.ActionCheck}
	}
	return table.Action{Type: table.ActionFold}
}

// Raiser makes a minimum raise whenever it may and otherwise calls.
func Raiser(s table.Snapshot) table.Action {
	switch {
	case slices.Contains(s.LegalActions, table.ActionRaise):
		return table.Action{Type: table.ActionRaise, Amount: s.MinRaiseTo}
	case slices.Contains(s.LegalActions, table.ActionBet):
		return table.Action{Type: table.ActionBet, Amount: s.MinRaiseTo}
	}
	return CallingStation(s)
}

// TestClient is one player connected over WebSocket. It records every
// frame and, once given a strategy, answers its turns by itself.
type TestClient struct {
	t        *testing.T
	PlayerID string
	conn     *websocket.Conn

	mu       sync.Mutex
	frames   []protocol.Envelope
	cursor   int
	notify   chan struct{}
	strategy Strategy
	lastTurn string
	closed   bool
}

// Connect dials the harness as playerID.
func (h *Harness) Connect(playerID string) *TestClient {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.URL, "http") + "/ws?player_id=" + playerID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(h.t, err)
	resp.Body.Close()

	c := &TestClient{t: h.t, PlayerID: playerID, conn: conn, notify: make(chan struct{})}
	go c.readLoop()
	h.t.Cleanup(c.Disconnect)
	return c
}

func (c *TestClient) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.mu.Lock()
		c.frames = append(c.frames, env)
		close(c.notify)
		c.notify = make(chan struct{})
		strategy := c.strategy
		c.mu.Unlock()

		if strategy != nil && env.Type == protocol.TypeGameStateUpdate {
			c.maybeAct(env, strategy)
		}
	}
}

// maybeAct answers a state update that puts this client on the clock. The
// same decision point is never answered twice.
func (c *TestClient) maybeAct(env protocol.Envelope, strategy Strategy) {
	var snap table.Snapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil || len(snap.LegalActions) == 0 {
		return
	}
	turn := string(env.Payload)
	c.mu.Lock()
	if turn == c.lastTurn {
		c.mu.Unlock()
		return
	}
	c.lastTurn = turn
	c.mu.Unlock()

	a := strategy(snap)
	_ = c.write(protocol.TypePlayerAction, protocol.PlayerAction{TableID: snap.TableID, Action: a.Type, Amount: a.Amount})
}

// Play hands the client's decisions to strategy.
func (c *TestClient) Play(strategy Strategy) {
	c.mu.Lock()
	c.strategy = strategy
	c.mu.Unlock()
}

func (c *TestClient) write(typ protocol.Type, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(protocol.Envelope{Type: typ, Payload: body, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Send writes one client message.
func (c *TestClient) Send(typ protocol.Type, payload any) {
	c.t.Helper()
	require.NoError(c.t, c.write(typ, payload))
}

// JoinTable takes seat (0 for any) with the default buy-in and returns the
// seat given.
func (c *TestClient) JoinTable(seat int) int {
	c.t.Helper()
	c.Send(protocol.TypeJoinRoom, protocol.JoinRoom{TableID: TableID, Seat: seat, BuyIn: DefaultBuyIn})
	var joined protocol.RoomJoined
	c.Decode(c.WaitForMessage(protocol.TypeRoomJoined), &joined)
	return joined.Seat
}

// Act submits an action for the harness table.
func (c *TestClient) Act(action table.ActionType, amount int) {
	c.t.Helper()
	c.Send(protocol.TypePlayerAction, protocol.PlayerAction{TableID: TableID, Action: action, Amount: amount})
}

// WaitForMessage returns the next unread frame of the given type, skipping
// any others.
func (c *TestClient) WaitForMessage(typ protocol.Type) protocol.Envelope {
	c.t.Helper()
	deadline := time.After(EventTimeout)
	for {
		c.mu.Lock()
		for c.cursor < len(c.frames) {
			env := c.frames[c.cursor]
			c.cursor++
			if env.Type == typ {
				c.mu.Unlock()
				return env
			}
		}
		wait := c.notify
		c.mu.Unlock()

		select {
		case <-wait:
		case <-deadline:
			c.t.Fatalf("%s: timed out waiting for %s", c.PlayerID, typ)
		}
	}
}

// WaitForHandEnd waits for the next hand_completed frame.
func (c *TestClient) WaitForHandEnd() protocol.HandCompleted {
	c.t.Helper()
	var done protocol.HandCompleted
	c.Decode(c.WaitForMessage(protocol.TypeHandCompleted), &done)
	return done
}

// Received lists every frame of the given type seen so far.
func (c *TestClient) Received(typ protocol.Type) []protocol.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Envelope
	for _, env := range c.frames {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

func (c *TestClient) Decode(env protocol.Envelope, v any) {
	c.t.Helper()
	require.NoError(c.t, json.Unmarshal(env.Payload, v))
}

// Disconnect drops the connection without leaving the table.
func (c *TestClient) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}
