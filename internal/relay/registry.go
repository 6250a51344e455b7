package relay

import (
	"sort"
	"sync"

	"proconnect/internal/access"

	"github.com/samber/lo"
)

// MembershipState is the lifecycle of one (connection, room) pair.
type MembershipState int

const (
	NotJoined MembershipState = iota
	Joining
	Joined
	Leaving
)

func (s MembershipState) String() string {
	switch s {
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Leaving:
		return "leaving"
	}
	return "not_joined"
}

// isMember is true while the room side holds the connection.
func (s MembershipState) isMember() bool { return s == Joined || s == Leaving }

// Connection is one live client session. A reconnect is a new Connection.
type Connection struct {
	ID       string
	Identity *access.Identity
	out      Outbox

	rooms map[string]MembershipState // guarded by Registry.mu
}

func NewConnection(id string, identity *access.Identity, out Outbox) *Connection {
	return &Connection{ID: id, Identity: identity, out: out, rooms: make(map[string]MembershipState)}
}

// Registry tracks every live connection and its per-room membership state.
// When both are needed, a room's lock is always taken before Registry.mu.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

func (r *Registry) Register(c *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID]; ok {
		return ErrDuplicateConnection
	}
	if c.rooms == nil {
		c.rooms = make(map[string]MembershipState)
	}
	r.conns[c.ID] = c
	return nil
}

// Unregister removes the connection and returns the rooms it must be evicted
// from. Unknown ids are a no-op so repeated close reports are harmless.
func (r *Registry) Unregister(id string) []string {
	_, rooms := r.unregister(id)
	return rooms
}

func (r *Registry) unregister(id string) (*Connection, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, nil
	}
	delete(r.conns, id)
	return c, memberRooms(c)
}

func (r *Registry) Lookup(id string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Connections snapshots every live connection.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Values(r.conns)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// JoinedRooms lists the rooms the connection is a member of, sorted.
func (r *Registry) JoinedRooms(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	if !ok {
		return nil
	}
	return memberRooms(c)
}

func (r *Registry) State(id, roomID string) MembershipState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[id]; ok {
		return c.rooms[roomID]
	}
	return NotJoined
}

func (r *Registry) RecordJoin(id, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	c.rooms[roomID] = Joined
	return nil
}

func (r *Registry) RecordLeave(id, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return ErrUnknownConnection
	}
	delete(c.rooms, roomID)
	return nil
}

// beginJoin moves NotJoined to Joining and returns the prior state.
func (r *Registry) beginJoin(id, roomID string) (*Connection, MembershipState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, NotJoined, ErrUnknownConnection
	}
	prior := c.rooms[roomID]
	if prior == NotJoined {
		c.rooms[roomID] = Joining
	}
	return c, prior, nil
}

func (r *Registry) abortJoin(id, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[id]; ok && c.rooms[roomID] == Joining {
		delete(c.rooms, roomID)
	}
}

// beginLeave moves Joined to Leaving. It reports false when there is
// nothing to leave.
func (r *Registry) beginLeave(id, roomID string) (*Connection, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return nil, false, ErrUnknownConnection
	}
	if c.rooms[roomID] != Joined {
		return c, false, nil
	}
	c.rooms[roomID] = Leaving
	return c, true, nil
}

func (r *Registry) isMember(id, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return ok && c.rooms[roomID].isMember()
}

// members keeps the ids that are live members of roomID on the registry side.
func (r *Registry) members(roomID string, ids []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(ids, func(id string, _ int) bool {
		c, ok := r.conns[id]
		return ok && c.rooms[roomID].isMember()
	})
}

func memberRooms(c *Connection) []string {
	rooms := lo.Keys(lo.PickBy(c.rooms, func(_ string, st MembershipState) bool {
		return st.isMember()
	}))
	sort.Strings(rooms)
	return rooms
}
