package eventbus

import (
	"sync"
	"time"
)

// Event is one notification routed through the bus, keyed by the database
// channel it arrived on.
type Event struct {
	Channel string
	Payload string
	At      time.Time
}

// Bus is an in-process fan-out for database notifications: one LISTEN
// connection per channel feeds any number of subscribers. It uses Go
// channels for delivery and is safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- Event
	closed      bool
}

// New creates a new Bus ready for use.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan<- Event),
	}
}

// Subscribe registers a channel to receive events from the given database
// channel. The caller is responsible for creating the channel with
// sufficient buffer capacity; slow subscribers will have events dropped.
func (b *Bus) Subscribe(channel string, ch chan<- Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], ch)
}

// Publish sends an event to all subscribers registered for its channel.
// If a subscriber's channel is full, the event is dropped for that
// subscriber. Publish is a no-op after Close has been called.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subscribers[evt.Channel] {
		select {
		case ch <- evt:
		default:
			// drop if subscriber is slow
		}
	}
}

// Handler returns a payload callback suitable for a LISTEN loop that
// publishes each notification onto the bus.
func (b *Bus) Handler(channel string) func(payload string) {
	return func(payload string) {
		b.Publish(Event{Channel: channel, Payload: payload, At: time.Now()})
	}
}

// Close marks the bus as closed. After Close, Publish is a no-op.
// Close does not close subscriber channels; that is the caller's responsibility.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
