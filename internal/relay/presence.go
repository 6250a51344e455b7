package relay

import (
	"sync"
	"time"

	"proconnect/internal/access"
)

type deliverFunc func(policy *access.Policy, targets []string, ev Event)

// PresenceNotifier turns membership transitions into presence events for the
// room's members and for any registered observers.
type PresenceNotifier struct {
	registry *Registry
	deliver  deliverFunc
	now      func() time.Time

	mu        sync.RWMutex
	observers []func(Presence)
}

func newPresenceNotifier(registry *Registry, deliver deliverFunc) *PresenceNotifier {
	return &PresenceNotifier{registry: registry, deliver: deliver, now: time.Now}
}

// Observe registers fn for every presence transition. fn runs on the
// goroutine that caused the transition and must not block.
func (p *PresenceNotifier) Observe(fn func(Presence)) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

// joined sends the joiner one Initial event per member already present, then
// announces the joiner to everyone including itself.
func (p *PresenceNotifier) joined(c *Connection, roomID string, policy *access.Policy, existing, all []string) {
	at := p.now()
	for _, id := range existing {
		other, ok := p.registry.Lookup(id)
		if !ok {
			continue
		}
		p.deliver(policy, []string{c.ID}, Presence{
			Kind: PresenceJoined, RoomID: roomID, ConnID: other.ID, Identity: other.Identity,
			Initial: true, Members: len(all), At: at,
		})
	}

	ev := Presence{Kind: PresenceJoined, RoomID: roomID, ConnID: c.ID, Identity: c.Identity, Members: len(all), At: at}
	p.deliver(policy, all, ev)
	p.notify(ev)
}

func (p *PresenceNotifier) left(c *Connection, roomID string, policy *access.Policy, remaining []string, reason string) {
	ev := Presence{
		Kind: PresenceLeft, RoomID: roomID, ConnID: c.ID, Identity: c.Identity,
		Reason: reason, Members: len(remaining), At: p.now(),
	}
	p.deliver(policy, remaining, ev)
	p.notify(ev)
}

// closed tells each evicted member that the room itself went away.
func (p *PresenceNotifier) closed(roomID string, policy *access.Policy, evicted []*Connection) {
	at := p.now()
	for _, c := range evicted {
		ev := Presence{Kind: PresenceLeft, RoomID: roomID, ConnID: c.ID, Identity: c.Identity, Reason: LeftRoomClosed, At: at}
		p.deliver(policy, []string{c.ID}, ev)
		p.notify(ev)
	}
}

func (p *PresenceNotifier) notify(ev Presence) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, fn := range p.observers {
		fn(ev)
	}
}
