// Package bus carries system events (dispatch, subscription and stream
// lifecycle) to any number of observers without coupling the chat core to
// them. The webhook API's live event tap is one such observer.
package bus

import "sync"

// SystemEvent is a typed event flowing through the bus for observability.
type SystemEvent struct {
	Type   string      `json:"type"`   // e.g. "event.received", "stream.failed"
	Source string      `json:"source"` // e.g. "dispatch", "stream"
	Data   interface{} `json:"data"`
}

// Subscriber is a named tap on the event stream. Multiple subscribers can
// independently consume the same published events (fan-out).
type Subscriber struct {
	Name string
	ch   chan SystemEvent
}

// Bus fans published system events out to all subscribers.
type Bus struct {
	mu        sync.RWMutex
	subs      []*Subscriber
	closed    bool
	closeOnce sync.Once
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe creates a named subscriber that receives copies of all published
// events. The returned channel is buffered; slow consumers drop.
func (b *Bus) Subscribe(name string) <-chan SystemEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{Name: name, ch: make(chan SystemEvent, 64)}
	b.subs = append(b.subs, sub)
	return sub.ch
}

// Publish delivers an event to every subscriber.
func (b *Bus) Publish(event SystemEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default: // non-blocking, drop if subscriber is slow
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, sub := range b.subs {
			close(sub.ch)
		}
		b.subs = nil
		b.mu.Unlock()
	})
}
