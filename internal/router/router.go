// Package router connects client connections to table actors. Each table
// runs on its own goroutine; the Router only looks up tables and
// connections and forwards commands.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/events"
	"github.com/lox/homepoker/internal/gameid"
	"github.com/lox/homepoker/internal/handhistory"
	"github.com/lox/homepoker/internal/metrics"
	"github.com/lox/homepoker/internal/protocol"
	"github.com/lox/homepoker/internal/table"
)

const (
	DefaultTimeBank  = 30 * time.Second
	DefaultHandDelay = 3 * time.Second
	DefaultChatLimit = 100
)

// Connection is one client transport. Send must not block for long; the
// server queues frames and drops slow consumers.
type Connection interface {
	ID() string
	PlayerID() string
	Send(frame []byte) error
}

// HistorySink receives every completed hand. Record must not block.
type HistorySink interface {
	Record(e *handhistory.Entry)
}

// Option configures a Router.
type Option func(*Router)

// WithClock sets the clock used for the time bank and hand delay.
func WithClock(c quartz.Clock) Option {
	return func(r *Router) { r.clock = c }
}

// WithTimeBank sets how long a player has to act.
func WithTimeBank(d time.Duration) Option {
	return func(r *Router) { r.timeBank = d }
}

// WithHandDelay sets the pause between hands.
func WithHandDelay(d time.Duration) Option {
	return func(r *Router) { r.handDelay = d }
}

// WithHistory sends completed hands to sink.
func WithHistory(sink HistorySink) Option {
	return func(r *Router) { r.history = sink }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// WithPublisher mirrors public table events to p.
func WithPublisher(p events.Publisher) Option {
	return func(r *Router) { r.publisher = p }
}

// WithChatLimit sets how many chat lines each table keeps.
func WithChatLimit(n int) Option {
	return func(r *Router) { r.chatLimit = n }
}

// WithTableOptions passes options to every table the router creates.
func WithTableOptions(opts ...table.Option) Option {
	return func(r *Router) { r.tableOpts = append(r.tableOpts, opts...) }
}

// Router owns the tables and the connected clients.
type Router struct {
	mu     sync.RWMutex
	tables map[string]*tableActor
	conns  map[string]*connHandle
	closed bool

	clock     quartz.Clock
	timeBank  time.Duration
	handDelay time.Duration
	chatLimit int
	history   HistorySink
	metrics   *metrics.Metrics
	publisher events.Publisher
	tableOpts []table.Option
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type connHandle struct {
	conn   Connection
	tables map[string]bool
}

// TableInfo describes an open table.
type TableInfo struct {
	ID        string       `json:"tableId"`
	SessionID string       `json:"sessionId"`
	Config    table.Config `json:"config"`
}

// New creates a router with no tables.
func New(logger zerolog.Logger, opts ...Option) *Router {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Router{
		tables:    make(map[string]*tableActor),
		conns:     make(map[string]*connHandle),
		clock:     quartz.NewReal(),
		timeBank:  DefaultTimeBank,
		handDelay: DefaultHandDelay,
		chatLimit: DefaultChatLimit,
		publisher: events.Nop{},
		logger:    logger.With().Str("component", "router").Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateTable opens a table and starts its actor. An empty id generates one.
// opts apply to this table only, after any WithTableOptions.
func (r *Router) CreateTable(id string, cfg table.Config, opts ...table.Option) (string, error) {
	if id == "" {
		id = gameid.Generate()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", ErrClosed
	}
	if _, ok := r.tables[id]; ok {
		return "", fmt.Errorf("%w: %s", ErrTableExists, id)
	}
	a, err := newTableActor(r, id, cfg, opts)
	if err != nil {
		return "", err
	}
	r.tables[id] = a
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		a.run(r.ctx)
	}()
	r.metrics.SetActiveTables(len(r.tables))
	r.logger.Info().
		Str("table_id", id).
		Str("session_id", a.sessionID).
		Int("small_blind", cfg.SmallBlind).
		Int("big_blind", cfg.BigBlind).
		Int("max_seats", cfg.MaxSeats).
		Msg("Table opened")
	return id, nil
}

// Tables lists the open tables ordered by id.
func (r *Router) Tables() []TableInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TableInfo, 0, len(r.tables))
	for id, a := range r.tables {
		out = append(out, TableInfo{ID: id, SessionID: a.sessionID, Config: a.table.Config()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Connect registers a client. Frames for it are delivered through Send.
func (r *Router) Connect(conn Connection) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	r.conns[conn.ID()] = &connHandle{conn: conn, tables: make(map[string]bool)}
	n := len(r.conns)
	r.mu.Unlock()

	r.metrics.SetActiveConnections(n)
	r.logger.Debug().Str("conn_id", conn.ID()).Str("player_id", conn.PlayerID()).Msg("Connection registered")
	return nil
}

// Disconnect forgets a client. A seated player with no other connection to
// the table is sat out; chips already committed to the pot stay there.
func (r *Router) Disconnect(connID string) {
	r.mu.Lock()
	h, ok := r.conns[connID]
	delete(r.conns, connID)
	n := len(r.conns)
	var actors []*tableActor
	if ok {
		for id := range h.tables {
			if a, found := r.tables[id]; found {
				actors = append(actors, a)
			}
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.metrics.SetActiveConnections(n)
	for _, a := range actors {
		err := a.do(r.ctx, func() error { return a.disconnect(h.conn) })
		if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
			r.logger.Warn().Err(err).Str("table_id", a.id).Str("conn_id", connID).Msg("Disconnect not applied")
		}
	}
	r.logger.Debug().Str("conn_id", connID).Str("player_id", h.conn.PlayerID()).Msg("Connection removed")
}

// Submit applies one client message and waits until the table has handled
// it. Rejections are sent to the connection as error frames and returned.
func (r *Router) Submit(ctx context.Context, connID string, msg protocol.Inbound) error {
	h, err := r.conn(connID)
	if err != nil {
		return err
	}
	if err := r.dispatch(ctx, h, msg); err != nil {
		r.sendError(h.conn, err)
		return err
	}
	return nil
}

func (r *Router) dispatch(ctx context.Context, h *connHandle, msg protocol.Inbound) error {
	switch m := msg.(type) {
	case protocol.Ping:
		return r.send(h.conn, protocol.TypePong, protocol.Pong{Nonce: m.Nonce})

	case protocol.JoinRoom:
		a, err := r.table(m.TableID)
		if err != nil {
			return err
		}
		if err := a.do(ctx, func() error { return a.join(h.conn, m) }); err != nil {
			return err
		}
		r.track(h, m.TableID, true)
		return nil

	case protocol.LeaveRoom:
		a, err := r.table(m.TableID)
		if err != nil {
			return err
		}
		if err := a.do(ctx, func() error { return a.leave(h.conn) }); err != nil {
			return err
		}
		r.track(h, m.TableID, false)
		return nil

	case protocol.PlayerAction:
		a, err := r.table(m.TableID)
		if err != nil {
			return err
		}
		return a.do(ctx, func() error { return a.act(h.conn, m) })

	case protocol.ChatMessage:
		a, err := r.table(m.TableID)
		if err != nil {
			return err
		}
		return a.do(ctx, func() error { return a.chat(h.conn, m) })

	default:
		return &protocol.ProtocolError{Reason: fmt.Sprintf("unsupported message %q", msg.Type())}
	}
}

// SendError reports err to a connection as an error frame.
func (r *Router) SendError(connID string, err error) {
	h, lookupErr := r.conn(connID)
	if lookupErr != nil {
		return
	}
	if protocol.IsProtocolError(err) {
		r.metrics.ProtocolError()
	}
	r.sendError(h.conn, err)
}

func (r *Router) sendError(conn Connection, err error) {
	code := ErrorCode(err)
	msg := err.Error()
	if code == protocol.CodeInternal {
		r.logger.Error().Err(err).Str("conn_id", conn.ID()).Msg("Request failed")
		msg = "internal error"
	}
	frame, encErr := protocol.EncodeError(code, msg, r.clock.Now())
	if encErr != nil {
		r.logger.Error().Err(encErr).Msg("Failed to encode error frame")
		return
	}
	if sendErr := conn.Send(frame); sendErr != nil {
		r.logger.Debug().Err(sendErr).Str("conn_id", conn.ID()).Msg("Dropped error frame")
	}
}

func (r *Router) send(conn Connection, t protocol.Type, payload any) error {
	frame, err := protocol.Encode(t, payload, r.clock.Now())
	if err != nil {
		return err
	}
	return conn.Send(frame)
}

// GameState returns the table as playerID may see it. Unseated players see
// the observer view.
func (r *Router) GameState(ctx context.Context, tableID, playerID string) (table.Snapshot, error) {
	a, err := r.table(tableID)
	if err != nil {
		return table.Snapshot{}, err
	}
	var snap table.Snapshot
	err = a.do(ctx, func() error {
		seat, _ := a.table.SeatOf(playerID)
		snap = a.table.Snapshot(seat)
		return nil
	})
	return snap, err
}

// ChatHistory returns the retained chat lines of a table, oldest first.
func (r *Router) ChatHistory(ctx context.Context, tableID string) ([]protocol.Chat, error) {
	a, err := r.table(tableID)
	if err != nil {
		return nil, err
	}
	var lines []protocol.Chat
	err = a.do(ctx, func() error {
		lines = a.chatLog.history()
		return nil
	})
	return lines, err
}

// Close stops every table actor and waits for them to exit.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.metrics.SetActiveTables(0)
	r.logger.Info().Msg("Router closed")
	return nil
}

func (r *Router) table(id string) (*tableActor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrClosed
	}
	a, ok := r.tables[id]
	if !ok {
		return nil, &NotFoundError{Kind: "table", ID: id}
	}
	return a, nil
}

func (r *Router) conn(id string) (*connHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.conns[id]
	if !ok {
		return nil, &NotFoundError{Kind: "connection", ID: id}
	}
	return h, nil
}

func (r *Router) track(h *connHandle, tableID string, joined bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if joined {
		h.tables[tableID] = true
	} else {
		delete(h.tables, tableID)
	}
}
