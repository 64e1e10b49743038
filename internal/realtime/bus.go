package realtime

import (
	"log"
	"sync"
)

// Filter scopes a subscription to one table and one user.
type Filter struct {
	Table  string
	UserID string
}

func (f Filter) match(e Event) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if f.UserID != "" && f.UserID != e.UserID {
		return false
	}
	return true
}

type subscription struct {
	filter Filter
	ch     chan Event
}

// Bus fans out published change events to scoped subscribers.
// Publish never blocks: a subscriber that falls behind loses events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	buffer int
}

// NewBus creates a Bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[*subscription]struct{}),
		buffer: buffer,
	}
}

// Publish delivers e to every matching subscriber.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.filter.match(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			log.Printf("[warn] realtime: dropping %s on %s for slow subscriber", e.Type, e.Table)
		}
	}
}

// Subscribe returns a channel of events matching f and a function that
// removes the subscription and closes the channel.
func (b *Bus) Subscribe(f Filter) (<-chan Event, func()) {
	sub := &subscription{filter: f, ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
