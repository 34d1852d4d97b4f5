// Package bridge broadcasts lifecycle and sync events to every active
// consumer. Payload shapes are fixed per event type; subscribers that fall
// behind lose events rather than blocking publishers.
package bridge

import (
	"sync"
	"time"
)

// Type names one broadcast message. The values are the wire names consumers
// subscribe on.
type Type string

const (
	// TypeVersionActivated fires once a new cache version has taken
	// control and stale namespaces are gone.
	TypeVersionActivated Type = "version-activated"
	// TypeSyncCompleted fires after every drain pass, partial success
	// included.
	TypeSyncCompleted Type = "sync-completed"
	// TypeActionQueued fires on every enqueue so consumers can show a
	// pending-sync count.
	TypeActionQueued Type = "action-queued"
	// TypeConnectivityChanged fires on every online/offline transition.
	TypeConnectivityChanged Type = "connectivity-changed"
)

// Event is one broadcast message. Only the fields relevant to the type are
// set.
type Event struct {
	Type Type
	At   time.Time

	// Version is the activated cache version (TypeVersionActivated).
	Version string

	// Pending is the number of unsynced actions (TypeActionQueued).
	Pending int

	// Synced and Failed are drain pass counts (TypeSyncCompleted).
	Synced int
	Failed int

	// Online is the new connectivity state (TypeConnectivityChanged).
	Online bool
}

// Broker fans events out to subscribers. The zero value is not usable; use
// New.
type Broker struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func New() *Broker {
	return &Broker{
		subs: make(map[int]chan Event),
	}
}

// Subscribe registers a consumer and returns its event channel plus a
// cancel function. The channel is buffered; a consumer that stops reading
// drops events instead of stalling the engine.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++

	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (b *Broker) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
