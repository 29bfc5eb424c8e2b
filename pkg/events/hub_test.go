package events

import (
	"testing"
)

type tick struct {
	N int `json:"n"`
}

func TestEventHubPublishOrder(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for i := 1; i <= 5; i++ {
		h.Publish(CalibrationUpdate, tick{N: i})
	}

	for i := 1; i <= 5; i++ {
		ev := <-ch
		if ev.Name != CalibrationUpdate {
			t.Fatalf("unexpected event name %q", ev.Name)
		}
		got, err := DecodeAs[tick](ev)
		if err != nil {
			t.Fatalf("DecodeAs failed: %v", err)
		}
		if got.N != i {
			t.Fatalf("expected event %d, got %d", i, got.N)
		}
	}
}

func TestEventHubUnsubscribe(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	if h.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.Subscribers())
	}
	h.Unsubscribe(ch)
	h.Unsubscribe(ch) // second call is a no-op
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	h.Publish(CalibrationUpdate, tick{N: 1})
	if h.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Subscribers())
	}
}

func TestEventHubDropsWhenFull(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(CalibrationUpdate, tick{N: i})
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected %d queued events, got %d", subscriberBuffer, len(ch))
	}
	h.Close()
	if _, ok := <-h.Subscribe(); ok {
		t.Fatalf("expected closed channel after Close")
	}
}

func TestDecodeAsEmpty(t *testing.T) {
	got, err := DecodeAs[tick](Event{Name: CalibrationUpdate})
	if err != nil || got.N != 0 {
		t.Fatalf("expected zero value, got %+v, %v", got, err)
	}
}
