package relay

import (
	"encoding/json"
	"time"

	"proconnect/internal/access"
)

// Event is anything delivered to a connection's outbox.
type Event interface {
	EventName() string
}

// Outbox is the delivery side of a connection, owned by the transport.
// Deliver must not block; it reports false when the event could not be
// queued. Close is idempotent.
type Outbox interface {
	Deliver(ev Event) bool
	Close()
}

// Message is an accepted send-message, as fanned out to the room.
type Message struct {
	RoomID  string           `json:"room_id"`
	ConnID  string           `json:"conn_id"`
	Sender  *access.Identity `json:"sender"`
	Payload json.RawMessage  `json:"payload"`
	// Seq orders accepted messages within one room.
	Seq    uint64    `json:"seq"`
	SentAt time.Time `json:"sent_at"`
}

func (Message) EventName() string { return "receive-message" }

type PresenceKind string

const (
	PresenceJoined PresenceKind = "joined"
	PresenceLeft   PresenceKind = "left"
)

const (
	LeftByRequest    = "leave"
	LeftByDisconnect = "disconnect"
	LeftRoomClosed   = "room_closed"
)

type Presence struct {
	Kind     PresenceKind     `json:"kind"`
	RoomID   string           `json:"room_id"`
	ConnID   string           `json:"conn_id"`
	Identity *access.Identity `json:"identity"`
	Reason   string           `json:"reason,omitempty"`
	// Initial marks the roster replay a joiner receives for members already present.
	Initial bool      `json:"initial,omitempty"`
	Members int       `json:"members"`
	At      time.Time `json:"at"`
}

func (Presence) EventName() string { return "presence" }

// Sink receives every accepted message. Record must return quickly; the
// relay does not wait for or retry persistence.
type Sink interface {
	Record(msg Message)
}

type nopSink struct{}

func (nopSink) Record(Message) {}
