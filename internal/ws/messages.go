package ws

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string `json:"event"`          // e.g. "join-room"
	Body  any    `json:"body,omitempty"` // arbitrary JSON object
}

// inbound keeps the body raw until the router knows the request type.
type inbound struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSendMessage = "send-message"
	EventError       = "error"
)

// ──────────────────────────── Request / Response DTOs ─────────────────────────

type JoinRoomRequest struct {
	RoomID    string  `json:"room_id"    validate:"required,max=128"`
	Passcode  *string `json:"passcode,omitempty"`
	SegmentID string  `json:"segment_id,omitempty" validate:"max=128"`
}

type LeaveRoomRequest struct {
	RoomID string `json:"room_id" validate:"required,max=128"`
}

type SendMessageRequest struct {
	RoomID  string          `json:"room_id" validate:"required,max=128"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type RoomAck struct {
	RoomID string `json:"room_id"`
}

type SendMessageAck struct {
	RoomID string `json:"room_id"`
	Seq    uint64 `json:"seq"`
}

// ErrorBody is returned for failures. Reason is set for access denials.
type ErrorBody struct {
	Event  string `json:"event,omitempty"`
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}
