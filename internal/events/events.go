// Package events mirrors public table events to other services over NATS.
package events

import (
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is one public table event. Private data such as hole cards is never
// published.
type Event struct {
	TableID    string    `json:"tableId"`
	Type       string    `json:"type"`
	HandNumber int       `json:"handNumber"`
	Payload    any       `json:"payload,omitempty"`
	Time       time.Time `json:"timestamp"`
}

// Publisher delivers events. Implementations must not block the caller for
// long; tables publish from their own goroutine.
type Publisher interface {
	Publish(e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(Event) error { return nil }
func (Nop) Close() error        { return nil }

// NATSPublisher publishes each event on <prefix>.table.<tableID>.<type>.
type NATSPublisher struct {
	conn   *natsgo.Conn
	prefix string
	logger zerolog.Logger
}

// Connect dials the NATS server.
func Connect(url, prefix string, logger zerolog.Logger) (*NATSPublisher, error) {
	logger = logger.With().Str("component", "events").Logger()
	nc, err := natsgo.Connect(url,
		natsgo.Name("homepoker"),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			logger.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS server: %w", err)
	}
	logger.Info().Str("url", url).Str("prefix", prefix).Msg("Publishing table events to NATS")
	return NewNATSPublisher(nc, prefix, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(nc *natsgo.Conn, prefix string, logger zerolog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: nc, prefix: prefix, logger: logger}
}

// Subject names the subject an event is published on.
func (p *NATSPublisher) Subject(tableID, eventType string) string {
	return strings.Join([]string{p.prefix, "table", tableID, eventType}, ".")
}

func (p *NATSPublisher) Publish(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	return p.conn.Publish(p.Subject(e.TableID, e.Type), data)
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Memory keeps published events in order. Tests use it to observe what a
// table published.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) Close() error { return nil }

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types lists the published event types in order.
func (m *Memory) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}
