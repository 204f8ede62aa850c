package eventbus

import "testing"

func TestBusPublishSubscribe(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Publish("trade")
	v := <-ch
	if v != "trade" {
		t.Fatalf("expected trade got %v", v)
	}
	bus.Unsubscribe(ch)
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(i)
	}
	// the publisher never blocked; the buffer holds the oldest events
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected full buffer got %d", len(ch))
	}
	if v := <-ch; v != 0 {
		t.Fatalf("expected oldest event 0 got %v", v)
	}
}

func TestBusClose(t *testing.T) {
	bus := New()
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := New()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Publish after Close: %v", r)
		}
	}()
	bus.Publish("late")
}

func TestBusUnsubscribeAfterClose(t *testing.T) {
	bus := New()
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}
