package events

import (
	"testing"
	"time"

	"shopbook/backend/internal/domain"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch1, cancel1 := bus.Subscribe(1)
	defer cancel1()
	ch2, cancel2 := bus.Subscribe(1)
	defer cancel2()

	bus.Publish(Event{Kind: SaleRecorded, Sale: &domain.Sale{ID: "sale-1"}})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case event := <-ch:
			if event.Kind != SaleRecorded || event.Sale.ID != "sale-1" {
				t.Fatalf("subscriber %d got wrong event: %+v", i, event)
			}
			if event.At.IsZero() {
				t.Fatalf("publish must stamp the event time")
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Kind: PaymentRecorded})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a slow subscriber")
	}
}

func TestCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.Subscribe(1)
	cancel()

	if _, open := <-ch; open {
		t.Fatalf("channel must be closed after cancel")
	}

	// Publishing after cancel must not panic.
	bus.Publish(Event{Kind: DebtCreated})
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.Subscribe(1)
	bus.Close()

	if _, open := <-ch; open {
		t.Fatalf("channel must be closed after bus close")
	}

	// Subscribing after close yields a closed channel.
	late, _ := bus.Subscribe(1)
	if _, open := <-late; open {
		t.Fatalf("late subscription must be closed immediately")
	}
}
