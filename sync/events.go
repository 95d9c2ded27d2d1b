// ABOUTME: Publish/subscribe broker for sync progress events
// ABOUTME: Lets consumers observe run state changes without coupling to the sync flow
package sync

import (
	"sync"
	"time"
)

// Event describes a sync run state change.
type Event struct {
	RunID   string    `json:"run_id"`
	State   string    `json:"state"`
	Step    string    `json:"step"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// Broker fans sync events out to subscribers. Slow subscribers miss events
// rather than blocking the sync flow.
type Broker struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a channel of events and a cancel function. Cancel must
// be called when done or the subscription leaks.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all current subscribers without blocking.
func (b *Broker) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}
