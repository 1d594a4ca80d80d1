package bus

import (
	"sync/atomic"
	"testing"
	"time"
)

type notePayload struct{ note string }

func (notePayload) EventType() EventType { return EventStateChanged }

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe(EventStateChanged, func(e Event) { got = append(got, "first") })
	b.Subscribe(EventStateChanged, func(e Event) { got = append(got, "second") })
	b.Subscribe(EventTickCompleted, func(e Event) { got = append(got, "other-type") })

	b.Publish(Event{Type: EventStateChanged, Tick: 1, Payload: notePayload{"x"}})

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("delivery order = %v, want [first second]", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	calls := 0
	sub := b.Subscribe(EventTickCompleted, func(e Event) { calls++ })
	b.Publish(Event{Type: EventTickCompleted})
	b.Unsubscribe(sub)
	b.Publish(Event{Type: EventTickCompleted})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestHandlerPanicDoesNotAbortDelivery(t *testing.T) {
	b := New()
	reached := false
	b.Subscribe(EventRunFailed, func(e Event) { panic("boom") })
	b.Subscribe(EventRunFailed, func(e Event) { reached = true })

	b.Publish(Event{Type: EventRunFailed, Tick: 7})

	if !reached {
		t.Fatal("second handler not reached after first panicked")
	}
}

func TestAsyncPreservesOrderAndDrainsOnClose(t *testing.T) {
	b := NewAsync(16)
	var seen []uint64
	done := make(chan struct{})
	var count atomic.Int32
	b.Subscribe(EventTickCompleted, func(e Event) {
		seen = append(seen, e.Tick)
		if count.Add(1) == 10 {
			close(done)
		}
	})

	for i := uint64(1); i <= 10; i++ {
		b.Publish(Event{Type: EventTickCompleted, Tick: i})
	}
	b.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async consumer did not drain queue")
	}
	for i, tick := range seen {
		if tick != uint64(i+1) {
			t.Fatalf("seen[%d] = %d, want %d", i, tick, i+1)
		}
	}
}

func TestRecentReturnsBoundedHistory(t *testing.T) {
	b := New()
	for i := uint64(1); i <= 300; i++ {
		b.Publish(Event{Type: EventStateChanged, Tick: i})
	}

	recent := b.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("len(recent) = %d, want 3", len(recent))
	}
	want := []uint64{298, 299, 300}
	for i, e := range recent {
		if e.Tick != want[i] {
			t.Fatalf("recent[%d].Tick = %d, want %d", i, e.Tick, want[i])
		}
	}

	all := b.Recent(1000)
	if len(all) != defaultRingSize {
		t.Fatalf("len(all) = %d, want ring size %d", len(all), defaultRingSize)
	}
}
