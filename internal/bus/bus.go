// Package bus provides the typed publish/subscribe event dispatcher shared
// by every simulation subsystem. The bus carries no business logic: it
// delivers events to current subscribers in subscription order and keeps a
// bounded ring of recent events for observers.
package bus

import (
	"log/slog"
	"sync"
)

// EventType tags the category of a simulation event.
type EventType string

const (
	EventTickCompleted     EventType = "TICK_COMPLETED"
	EventTransactionPosted EventType = "TRANSACTION_POSTED"
	EventStateChanged      EventType = "STATE_CHANGED"
	EventSupplyDisruption  EventType = "SUPPLY_DISRUPTION"
	EventRunFailed         EventType = "RUN_FAILED"
)

// Payload is the marker interface implemented by every event payload type.
// Handlers type-switch on the concrete payload; there is no reflection.
type Payload interface {
	EventType() EventType
}

// Event is an immutable record delivered through the bus.
type Event struct {
	Type    EventType `json:"type"`
	Tick    uint64    `json:"tick"`
	Origin  string    `json:"origin"`
	Payload Payload   `json:"payload,omitempty"`
}

// Handler receives published events. Handlers must not retain the event's
// payload past the call if the payload holds mutable references.
type Handler func(Event)

// Subscription identifies a registered handler so it can be removed.
type Subscription struct {
	typ EventType
	id  uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to subscribers. The zero value is not usable; use
// New or NewAsync.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]subscriber
	nextID uint64

	// Async mode: single consumer loop drains queue in publish order.
	queue chan Event
	done  chan struct{}

	// Bounded retention of recent events.
	ring     []Event
	ringHead int
	ringLen  int
}

const defaultRingSize = 256

// New creates a synchronous bus: Publish dispatches inline on the caller's
// goroutine.
func New() *Bus {
	return &Bus{
		subs: make(map[EventType][]subscriber),
		ring: make([]Event, defaultRingSize),
	}
}

// NewAsync creates a queue-backed bus with a single consumer goroutine.
// Ordering is preserved; handlers never run concurrently with each other.
func NewAsync(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 128
	}
	b := &Bus{
		subs:  make(map[EventType][]subscriber),
		ring:  make([]Event, defaultRingSize),
		queue: make(chan Event, buffer),
		done:  make(chan struct{}),
	}
	go b.consume()
	return b
}

func (b *Bus) consume() {
	defer close(b.done)
	for e := range b.queue {
		b.dispatch(e)
	}
}

// Publish delivers the event to every current subscriber of its type. In
// async mode the event is queued; the call blocks only when the queue is
// full.
func (b *Bus) Publish(e Event) {
	b.remember(e)
	if b.queue != nil {
		b.queue <- e
		return
	}
	b.dispatch(e)
}

// Close stops the async consumer after draining the queue. No-op for a
// synchronous bus. Publish must not be called after Close.
func (b *Bus) Close() {
	if b.queue == nil {
		return
	}
	close(b.queue)
	<-b.done
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs[e.Type]))
	copy(subs, b.subs[e.Type])
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s, e)
	}
}

// deliver invokes one handler, recovering a panic so one bad subscriber
// never aborts delivery to the rest or the publisher.
func (b *Bus) deliver(s subscriber, e Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panicked",
				"type", e.Type,
				"tick", e.Tick,
				"origin", e.Origin,
				"panic", r,
			)
		}
	}()
	s.handler(e)
}

// Subscribe registers a handler for one event type and returns a token for
// Unsubscribe. Handlers fire in subscription order.
func (b *Bus) Subscribe(t EventType, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs[t] = append(b.subs[t], subscriber{id: b.nextID, handler: h})
	return Subscription{typ: t, id: b.nextID}
}

// Unsubscribe removes a previously registered handler. Unknown tokens are
// ignored.
func (b *Bus) Unsubscribe(s Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[s.typ]
	for i, sub := range list {
		if sub.id == s.id {
			b.subs[s.typ] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

func (b *Bus) remember(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.ringHead] = e
	b.ringHead = (b.ringHead + 1) % len(b.ring)
	if b.ringLen < len(b.ring) {
		b.ringLen++
	}
}

// Recent returns up to n of the most recently published events, oldest
// first.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > b.ringLen {
		n = b.ringLen
	}
	out := make([]Event, 0, n)
	start := b.ringHead - n
	if start < 0 {
		start += len(b.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}
