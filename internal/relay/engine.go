package relay

import (
	"context"
	"encoding/json"
	"time"

	"proconnect/internal/access"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Authorizer is the access decision point. *access.Gate implements it.
type Authorizer interface {
	Authorize(ctx context.Context, req access.Request) access.Decision
}

// Engine validates join/leave/send/disconnect intents, keeps the registry and
// the room table in agreement, and fans accepted traffic out to members.
//
// Callers must issue one connection's intents sequentially (the transport's
// read loop does); that is what keeps each sender's messages in order.
type Engine struct {
	registry *Registry
	rooms    *RoomTable
	gate     Authorizer
	presence *PresenceNotifier
	sink     Sink
	now      func() time.Time
}

func NewEngine(gate Authorizer, sink Sink) *Engine {
	if sink == nil {
		sink = nopSink{}
	}
	e := &Engine{
		registry: NewRegistry(),
		rooms:    NewRoomTable(),
		gate:     gate,
		sink:     sink,
		now:      time.Now,
	}
	e.presence = newPresenceNotifier(e.registry, e.deliver)
	return e
}

func (e *Engine) Registry() *Registry          { return e.registry }
func (e *Engine) Rooms() *RoomTable            { return e.rooms }
func (e *Engine) Presence() *PresenceNotifier { return e.presence }

// Connect registers a new connection with no rooms.
func (e *Engine) Connect(identity *access.Identity, out Outbox) (*Connection, error) {
	c := NewConnection(uuid.NewString(), identity, out)
	if err := e.registry.Register(c); err != nil {
		return nil, err
	}
	zap.L().Debug("relay.connected", zap.String("conn", c.ID), zap.Bool("anonymous", identity == nil))
	return c, nil
}

// Join authorizes and records a membership. Joining a room the connection is
// already in succeeds without side effects.
func (e *Engine) Join(ctx context.Context, connID, roomID string, passcode *string, segmentID string) error {
	c, prior, err := e.registry.beginJoin(connID, roomID)
	if err != nil {
		zap.L().Error("relay.join_unknown_connection", zap.String("conn", connID), zap.String("room", roomID))
		return err
	}
	switch prior {
	case Joined:
		return nil
	case Joining, Leaving:
		return ErrMembershipBusy
	}

	epoch := e.rooms.Epoch()
	d := e.gate.Authorize(ctx, access.Request{
		Identity:  c.Identity,
		RoomID:    roomID,
		Intent:    access.IntentJoin,
		Passcode:  passcode,
		SegmentID: segmentID,
	})
	if !d.Permit {
		e.registry.abortJoin(connID, roomID)
		zap.L().Debug("relay.join_denied", zap.String("conn", connID), zap.String("room", roomID), zap.String("reason", string(d.Reason)))
		return d.Err()
	}

	for {
		room := e.rooms.GetOrCreate(roomID)
		room.mu.Lock()
		// The room was retired while this join was being authorized; the
		// decision is stale.
		if e.rooms.RetiredSince(roomID, epoch) {
			e.rooms.dropIfEmpty(room)
			room.mu.Unlock()
			e.registry.abortJoin(connID, roomID)
			zap.L().Debug("relay.join_room_retired", zap.String("conn", connID), zap.String("room", roomID))
			return roomNotFound()
		}
		if room.retired {
			room.mu.Unlock()
			continue
		}
		// Registry first: if the connection disconnected while we were
		// authorizing, nothing is written on the room side.
		if err := e.registry.RecordJoin(connID, roomID); err != nil {
			room.mu.Unlock()
			zap.L().Debug("relay.join_rolled_back", zap.String("conn", connID), zap.String("room", roomID))
			return err
		}
		room.policy = d.Policy
		existing := e.registry.members(roomID, room.snapshot())
		existing = without(existing, connID)
		room.add(connID)
		all := append(existing, connID)
		policy := room.policy
		room.mu.Unlock()

		e.presence.joined(c, roomID, policy, existing, all)
		return nil
	}
}

// Leave removes a membership. Leaving a room the connection is not in is a
// no-op success.
func (e *Engine) Leave(ctx context.Context, connID, roomID string) error {
	c, ok, err := e.registry.beginLeave(connID, roomID)
	if err != nil {
		zap.L().Error("relay.leave_unknown_connection", zap.String("conn", connID), zap.String("room", roomID))
		return err
	}
	if !ok {
		return nil
	}

	room, found := e.rooms.Lookup(roomID)
	if !found {
		_ = e.registry.RecordLeave(connID, roomID)
		return nil
	}

	room.mu.Lock()
	removed := room.remove(connID)
	// A concurrent disconnect may already have dropped the connection.
	_ = e.registry.RecordLeave(connID, roomID)
	remaining := e.registry.members(roomID, room.snapshot())
	policy := room.policy
	room.mu.Unlock()

	if removed {
		e.presence.left(c, roomID, policy, remaining, LeftByRequest)
	}
	return nil
}

// Disconnect evicts the connection from every room it joined and discards
// it. Safe to call any number of times.
func (e *Engine) Disconnect(connID string) {
	c, rooms := e.registry.unregister(connID)
	if c == nil {
		return
	}
	for _, roomID := range rooms {
		room, ok := e.rooms.Lookup(roomID)
		if !ok {
			continue
		}
		room.mu.Lock()
		removed := room.remove(connID)
		remaining := e.registry.members(roomID, room.snapshot())
		policy := room.policy
		room.mu.Unlock()

		if removed {
			e.presence.left(c, roomID, policy, remaining, LeftByDisconnect)
		}
	}
	zap.L().Debug("relay.disconnected", zap.String("conn", connID), zap.Int("rooms", len(rooms)))
}

// Send fans payload out to the room's current members, sender included.
func (e *Engine) Send(ctx context.Context, connID, roomID string, payload json.RawMessage) (Message, error) {
	if ctx.Err() != nil {
		return Message{}, &access.DeniedError{Reason: access.ReasonAccessCheckFailed}
	}
	room, ok := e.rooms.Lookup(roomID)
	if !ok {
		return Message{}, roomNotFound()
	}
	c, ok := e.registry.Lookup(connID)
	if !ok {
		zap.L().Error("relay.send_unknown_connection", zap.String("conn", connID), zap.String("room", roomID))
		return Message{}, ErrUnknownConnection
	}

	d := e.gate.Authorize(ctx, access.Request{
		Identity: c.Identity,
		RoomID:   roomID,
		Intent:   access.IntentPublish,
		IsMember: e.registry.isMember(connID, roomID),
		Policy:   room.Policy(),
	})
	if !d.Permit {
		return Message{}, d.Err()
	}

	room.mu.Lock()
	if room.retired {
		room.mu.Unlock()
		return Message{}, roomNotFound()
	}
	room.seq++
	msg := Message{
		RoomID:  roomID,
		ConnID:  connID,
		Sender:  c.Identity,
		Payload: payload,
		Seq:     room.seq,
		SentAt:  e.now().UTC(),
	}
	targets := e.registry.members(roomID, room.snapshot())
	policy := room.policy
	room.mu.Unlock()

	e.deliver(policy, targets, msg)
	e.sink.Record(msg)
	return msg, nil
}

// Retire evicts every member of a room whose backing entity no longer exists
// and forgets the room. A later join recreates it only if the entity exists
// again.
func (e *Engine) Retire(roomID string) {
	room, ok := e.rooms.Lookup(roomID)
	if !ok {
		return
	}
	room.mu.Lock()
	if room.retired {
		room.mu.Unlock()
		return
	}
	room.retired = true
	var evicted []*Connection
	for _, id := range room.snapshot() {
		if err := e.registry.RecordLeave(id, roomID); err != nil {
			continue
		}
		if c, ok := e.registry.Lookup(id); ok {
			evicted = append(evicted, c)
		}
	}
	room.members = make(map[string]struct{})
	policy := room.policy
	e.rooms.forget(roomID)
	room.mu.Unlock()

	e.presence.closed(roomID, policy, evicted)
	zap.L().Info("relay.room_retired", zap.String("room", roomID), zap.Int("evicted", len(evicted)))
}

// Members is the room's member set as both sides currently agree on it.
func (e *Engine) Members(roomID string) []*Connection {
	room, ok := e.rooms.Lookup(roomID)
	if !ok {
		return nil
	}
	room.mu.Lock()
	ids := e.registry.members(roomID, room.snapshot())
	room.mu.Unlock()

	out := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := e.registry.Lookup(id); ok {
			out = append(out, c)
		}
	}
	return out
}

// Occupancy returns the member count of every known room.
func (e *Engine) Occupancy() map[string]int {
	out := make(map[string]int)
	for _, id := range e.rooms.IDs() {
		out[id] = len(e.Members(id))
	}
	return out
}

// CloseAll closes every connection's outbox. The transport reports each
// close back through Disconnect.
func (e *Engine) CloseAll() int {
	conns := e.registry.Connections()
	for _, c := range conns {
		c.out.Close()
	}
	return len(conns)
}

func (e *Engine) Stats() (connections, rooms int) {
	return e.registry.Len(), len(e.rooms.IDs())
}

// deliver hands ev to every target allowed to receive it. A target whose
// outbox is full is closed: skipping it would leave a gap in its stream.
func (e *Engine) deliver(policy *access.Policy, targets []string, ev Event) {
	for _, id := range targets {
		c, ok := e.registry.Lookup(id)
		if !ok {
			continue // unregistered after the snapshot
		}
		d := e.gate.Authorize(context.Background(), access.Request{
			Identity: c.Identity,
			RoomID:   roomOf(ev),
			Intent:   access.IntentReceive,
			IsMember: true,
			Policy:   policy,
		})
		if !d.Permit {
			continue
		}
		if c.out == nil || c.out.Deliver(ev) {
			continue
		}
		zap.L().Warn("relay.slow_consumer", zap.String("conn", c.ID), zap.String("event", ev.EventName()))
		c.out.Close()
	}
}

func roomOf(ev Event) string {
	switch v := ev.(type) {
	case Message:
		return v.RoomID
	case Presence:
		return v.RoomID
	}
	return ""
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
