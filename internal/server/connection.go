package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lox/homepoker/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Frames queued per connection before it counts as a slow consumer
	sendBuffer = 256

	// Frames over protocol.MaxMessageBytes get a protocol error; frames over
	// this limit close the connection
	maxFrameBytes = 4 * protocol.MaxMessageBytes
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSlowConsumer     = errors.New("connection send buffer full")
)

// Connection is one WebSocket client. It implements router.Connection.
type Connection struct {
	id       string
	playerID string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	logger   zerolog.Logger
}

func newConnection(id, playerID string, conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		id:       id,
		playerID: playerID,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		logger:   logger.With().Str("conn_id", id).Str("player_id", playerID).Logger(),
	}
}

func (c *Connection) ID() string       { return c.id }
func (c *Connection) PlayerID() string { return c.playerID }

// Send queues a frame. A client that falls a full buffer behind is closed.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.logger.Warn().Msg("Connection send buffer full, closing connection")
		c.Close()
		return ErrSlowConsumer
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump hands every frame to handle until the peer goes away.
func (c *Connection) readPump(ctx context.Context, handle func(context.Context, []byte)) error {
	defer c.Close()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("Unexpected WebSocket close error")
			}
			return nil
		}
		handle(ctx, message)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings.
func (c *Connection) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return nil
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}

		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil

		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return nil
		}
	}
}
