// Package protocol defines the JSON messages exchanged with table clients.
// Every frame is an Envelope; inbound payloads are schema checked and
// decoded into one of the Inbound message types.
package protocol

import (
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/lox/homepoker/internal/table"
	"github.com/lox/homepoker/poker"
)

// Type identifies the type of message.
type Type string

const (
	// Client -> Server
	TypeJoinRoom     Type = "join_room"
	TypeLeaveRoom    Type = "leave_room"
	TypePlayerAction Type = "player_action" // also broadcast back
	TypeChatMessage  Type = "chat_message"  // also broadcast back
	TypePing         Type = "ping"

	// Server -> Client
	TypeRoomJoined      Type = "room_joined"
	TypeGameStateUpdate Type = "game_state_update"
	TypeNewHandStarted  Type = "new_hand_started"
	TypeHoleCards       Type = "hole_cards"
	TypeCommunityCards  Type = "community_cards"
	TypeShowdown        Type = "showdown"
	TypeHandCompleted   Type = "hand_completed"
	TypeHandAborted     Type = "hand_aborted"
	TypePlayerJoined    Type = "player_joined"
	TypePlayerLeft      Type = "player_left"
	TypeSittingOut      Type = "sitting_out"
	TypePong            Type = "pong"
	TypeError           Type = "error"
)

// Envelope wraps every frame on the wire.
type Envelope struct {
	Type      Type                `json:"type"`
	Payload   jsoniter.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Inbound is the closed set of client messages.
type Inbound interface {
	Type() Type
}

// JoinRoom subscribes to a table and takes a seat. Seat 0 picks the first
// free seat. Rejoining a table where the player is already seated only
// resubscribes and sits the player back in.
type JoinRoom struct {
	TableID string `json:"tableId"`
	Seat    int    `json:"seatNumber,omitempty"`
	BuyIn   int    `json:"buyIn,omitempty"`
}

// LeaveRoom gives up the seat, immediately between hands or once the
// current hand is over.
type LeaveRoom struct {
	TableID string `json:"tableId"`
}

// PlayerAction submits a decision. Amount is the total street bet for bet
// and raise.
type PlayerAction struct {
	TableID string           `json:"tableId"`
	Action  table.ActionType `json:"action"`
	Amount  int              `json:"amount,omitempty"`
}

// ChatMessage is a line of table chat.
type ChatMessage struct {
	TableID string `json:"tableId"`
	Message string `json:"message"`
}

// Ping asks for a pong carrying the same nonce.
type Ping struct {
	Nonce string `json:"nonce,omitempty"`
}

func (JoinRoom) Type() Type     { return TypeJoinRoom }
func (LeaveRoom) Type() Type    { return TypeLeaveRoom }
func (PlayerAction) Type() Type { return TypePlayerAction }
func (ChatMessage) Type() Type  { return TypeChatMessage }
func (Ping) Type() Type         { return TypePing }

// TableAction converts the message into an engine action.
func (m PlayerAction) TableAction() table.Action {
	return table.Action{Type: m.Action, Amount: m.Amount}
}

// Server -> Client payloads

// RoomJoined confirms a join with the player's view of the table.
type RoomJoined struct {
	TableID  string         `json:"tableId"`
	PlayerID string         `json:"playerId"`
	Seat     int            `json:"seatNumber"`
	State    table.Snapshot `json:"state"`
}

// NewHandStarted announces a hand with positions and starting stacks.
type NewHandStarted struct {
	TableID    string `json:"tableId"`
	HandNumber int    `json:"handNumber"`
	table.HandStart
}

// HoleCards is sent only to the seat's owner.
type HoleCards struct {
	TableID    string       `json:"tableId"`
	HandNumber int          `json:"handNumber"`
	Seat       int          `json:"seatNumber"`
	Cards      []poker.Card `json:"cards"`
}

// ActionTaken is broadcast after each accepted action, blinds and
// timeouts included.
type ActionTaken struct {
	TableID    string `json:"tableId"`
	HandNumber int    `json:"handNumber"`
	Seat       int    `json:"seatNumber"`
	PlayerID   string `json:"playerId"`
	table.ActionEvent
}

// CommunityCards is broadcast when board cards are dealt.
type CommunityCards struct {
	TableID    string       `json:"tableId"`
	HandNumber int          `json:"handNumber"`
	Street     table.Status `json:"street"`
	Cards      []poker.Card `json:"cards"`
	Board      []poker.Card `json:"board"`
}

// Showdown reveals the live hands and the pot split.
type Showdown struct {
	TableID    string `json:"tableId"`
	HandNumber int    `json:"handNumber"`
	table.ShowdownEvent
}

// HandCompleted closes a hand.
type HandCompleted struct {
	TableID    string `json:"tableId"`
	HandNumber int    `json:"handNumber"`
	table.HandResult
}

// HandAborted reports a hand cancelled with every contribution refunded.
type HandAborted struct {
	TableID    string `json:"tableId"`
	HandNumber int    `json:"handNumber"`
	Reason     string `json:"reason"`
}

// SeatUpdate covers players joining, leaving and sitting out.
type SeatUpdate struct {
	TableID    string `json:"tableId"`
	Seat       int    `json:"seatNumber"`
	PlayerID   string `json:"playerId"`
	Stack      int    `json:"stack,omitempty"`
	SittingOut bool   `json:"sittingOut"`
	Reason     string `json:"reason,omitempty"`
}

// Chat is a chat line as stored and broadcast.
type Chat struct {
	ID        string    `json:"id"`
	TableID   string    `json:"tableId"`
	PlayerID  string    `json:"playerId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Pong answers a Ping.
type Pong struct {
	Nonce string `json:"nonce,omitempty"`
}

// Error codes.
const (
	CodeProtocol      = "protocol_error"
	CodeIllegalAction = "illegal_action"
	CodeNotFound      = "not_found"
	CodeRejected      = "rejected"
	CodeInternal      = "internal_error"
)

// Error is sent to the offending connection only.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
