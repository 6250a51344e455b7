package relay

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"proconnect/internal/access"

	"github.com/samber/lo"
)

// Room is one broadcast domain. Its mutex is the per-room critical section
// for every membership change and fan-out snapshot.
type Room struct {
	ID string

	mu      sync.Mutex
	policy  *access.Policy // nil until a join supplies it; nil denies anonymous receive
	members map[string]struct{}
	seq     uint64
	retired bool
}

func newRoom(id string) *Room {
	return &Room{ID: id, members: make(map[string]struct{})}
}

// add and remove report whether the set changed. Callers hold r.mu.
func (r *Room) add(connID string) bool {
	if _, ok := r.members[connID]; ok {
		return false
	}
	r.members[connID] = struct{}{}
	return true
}

func (r *Room) remove(connID string) bool {
	if _, ok := r.members[connID]; !ok {
		return false
	}
	delete(r.members, connID)
	return true
}

func (r *Room) snapshot() []string {
	ids := lo.Keys(r.members)
	sort.Strings(ids)
	return ids
}

func (r *Room) Policy() *access.Policy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.policy
}

// tombstoneTTL outlives any join still authorizing against a retired room.
const tombstoneTTL = time.Minute

type tombstone struct {
	epoch uint64
	at    time.Time
}

// RoomTable maps room id to Room. Rooms are independent of each other.
type RoomTable struct {
	rooms sync.Map // roomID -> *Room

	epoch      atomic.Uint64
	tombstones sync.Map // roomID -> tombstone
}

func NewRoomTable() *RoomTable { return &RoomTable{} }

func (t *RoomTable) GetOrCreate(roomID string) *Room {
	if v, ok := t.rooms.Load(roomID); ok {
		return v.(*Room)
	}
	v, _ := t.rooms.LoadOrStore(roomID, newRoom(roomID))
	return v.(*Room)
}

func (t *RoomTable) Lookup(roomID string) (*Room, bool) {
	v, ok := t.rooms.Load(roomID)
	if !ok {
		return nil, false
	}
	return v.(*Room), true
}

func (t *RoomTable) AddMember(roomID, connID string) {
	r := t.GetOrCreate(roomID)
	r.mu.Lock()
	r.add(connID)
	r.mu.Unlock()
}

func (t *RoomTable) RemoveMember(roomID, connID string) {
	if r, ok := t.Lookup(roomID); ok {
		r.mu.Lock()
		r.remove(connID)
		r.mu.Unlock()
	}
}

// Members is a point-in-time copy of the room's member set.
func (t *RoomTable) Members(roomID string) []string {
	r, ok := t.Lookup(roomID)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (t *RoomTable) IsEmpty(roomID string) bool {
	r, ok := t.Lookup(roomID)
	if !ok {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0
}

// ReleaseIdlePolicies drops the policy snapshot of every empty room; the next
// join looks it up again. It returns the number of rooms released.
func (t *RoomTable) ReleaseIdlePolicies() int {
	released := 0
	t.rooms.Range(func(_, v any) bool {
		r := v.(*Room)
		r.mu.Lock()
		if len(r.members) == 0 && r.policy != nil {
			r.policy = nil
			released++
		}
		r.mu.Unlock()
		return true
	})
	t.pruneTombstones(time.Now())
	return released
}

// Epoch advances on every retirement. A join reads it before authorizing.
func (t *RoomTable) Epoch() uint64 { return t.epoch.Load() }

// RetiredSince reports whether roomID was retired after epoch was read.
func (t *RoomTable) RetiredSince(roomID string, epoch uint64) bool {
	v, ok := t.tombstones.Load(roomID)
	return ok && v.(tombstone).epoch > epoch
}

// forget drops a retired room. The tombstone is stored before the delete so
// a join that recreates the room always sees it.
func (t *RoomTable) forget(roomID string) {
	t.tombstones.Store(roomID, tombstone{epoch: t.epoch.Add(1), at: time.Now()})
	t.rooms.Delete(roomID)
}

// dropIfEmpty discards a room nobody joined. Callers hold r.mu; a join
// already waiting on r sees it retired and looks the room up again.
func (t *RoomTable) dropIfEmpty(r *Room) {
	if r.retired || len(r.members) > 0 {
		return
	}
	r.retired = true
	t.rooms.CompareAndDelete(r.ID, r)
}

func (t *RoomTable) pruneTombstones(now time.Time) {
	t.tombstones.Range(func(k, v any) bool {
		if now.Sub(v.(tombstone).at) > tombstoneTTL {
			t.tombstones.Delete(k)
		}
		return true
	})
}

func (t *RoomTable) IDs() []string {
	var ids []string
	t.rooms.Range(func(k, _ any) bool {
		ids = append(ids, k.(string))
		return true
	})
	sort.Strings(ids)
	return ids
}
