package protocol

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxMessageBytes bounds an inbound frame.
const MaxMessageBytes = 8 << 10

const schemaBase = "https://homepoker.dev/schemas/"

//go:embed schemas
var schemaFiles embed.FS

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// numbers keeps JSON numbers exact for schema validation so 2.5 is never
// mistaken for an integer.
var numbers = jsoniter.Config{UseNumber: true}.Froze()

var emptyPayload = []byte("{}")

// ProtocolError reports a malformed or unknown message. It is returned to
// the sender and never reaches a table.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsProtocolError reports whether err is a *ProtocolError.
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// Decoder validates and decodes inbound frames. It is safe for concurrent
// use.
type Decoder struct {
	envelope *jsonschema.Schema
	payloads map[Type]*jsonschema.Schema
}

// NewDecoder compiles the embedded schemas.
func NewDecoder() (*Decoder, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	entries, err := schemaFiles.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}
	for _, entry := range entries {
		data, err := schemaFiles.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(schemaBase+entry.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", entry.Name(), err)
		}
	}

	d := &Decoder{payloads: make(map[Type]*jsonschema.Schema)}
	if d.envelope, err = compiler.Compile(schemaBase + "envelope.json"); err != nil {
		return nil, fmt.Errorf("failed to compile envelope schema: %w", err)
	}
	for _, t := range []Type{TypeJoinRoom, TypeLeaveRoom, TypePlayerAction, TypeChatMessage, TypePing} {
		schema, err := compiler.Compile(schemaBase + string(t) + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", t, err)
		}
		d.payloads[t] = schema
	}
	return d, nil
}

// Decode validates a frame against the envelope and payload schemas and
// returns the typed message. Every failure is a *ProtocolError.
func (d *Decoder) Decode(data []byte) (Inbound, error) {
	if len(data) > MaxMessageBytes {
		return nil, &ProtocolError{Reason: fmt.Sprintf("message exceeds %d bytes", MaxMessageBytes)}
	}
	var doc any
	if err := numbers.Unmarshal(data, &doc); err != nil {
		return nil, &ProtocolError{Reason: "invalid JSON", Err: err}
	}
	if err := d.envelope.Validate(doc); err != nil {
		return nil, &ProtocolError{Reason: "invalid envelope", Err: err}
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Reason: "invalid envelope", Err: err}
	}
	payload := []byte(env.Payload)
	if len(payload) == 0 {
		payload = emptyPayload
	}
	var body any
	if err := numbers.Unmarshal(payload, &body); err != nil {
		return nil, &ProtocolError{Reason: "invalid payload", Err: err}
	}
	if err := d.payloads[env.Type].Validate(body); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("invalid %s payload", env.Type), Err: err}
	}

	msg, err := decodePayload(env.Type, payload)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("invalid %s payload", env.Type), Err: err}
	}
	return msg, nil
}

func decodePayload(t Type, payload []byte) (Inbound, error) {
	switch t {
	case TypeJoinRoom:
		var m JoinRoom
		err := json.Unmarshal(payload, &m)
		return m, err
	case TypeLeaveRoom:
		var m LeaveRoom
		err := json.Unmarshal(payload, &m)
		return m, err
	case TypePlayerAction:
		var m PlayerAction
		err := json.Unmarshal(payload, &m)
		return m, err
	case TypeChatMessage:
		var m ChatMessage
		err := json.Unmarshal(payload, &m)
		return m, err
	case TypePing:
		var m Ping
		err := json.Unmarshal(payload, &m)
		return m, err
	}
	return nil, fmt.Errorf("unknown message type %q", t)
}

// Encode wraps a payload in an envelope.
func Encode(t Type, payload any, at time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: raw, Timestamp: at.UTC()})
}

// EncodeError builds an error frame.
func EncodeError(code, message string, at time.Time) ([]byte, error) {
	return Encode(TypeError, Error{Code: code, Message: message}, at)
}
