package eventbus

import (
	"sync"
	"testing"
	"time"
)

func TestBus_SubscribeAndPublish(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 10)
	bus.Subscribe("pair_created", received)

	bus.Publish(Event{
		Channel: "pair_created",
		Payload: `{"pool_id":7,"pair_contract":"zig1pair"}`,
		At:      time.Now(),
	})

	select {
	case evt := <-received:
		if evt.Channel != "pair_created" {
			t.Errorf("expected pair_created, got %s", evt.Channel)
		}
		if evt.Payload == "" {
			t.Error("expected non-empty payload")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch1 := make(chan Event, 10)
	ch2 := make(chan Event, 10)
	bus.Subscribe("pair_created", ch1)
	bus.Subscribe("pair_created", ch2)

	bus.Publish(Event{Channel: "pair_created", Payload: "{}"})

	for _, ch := range []chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBus_ChannelFiltering(t *testing.T) {
	bus := New()
	defer bus.Close()

	pairCh := make(chan Event, 10)
	alertCh := make(chan Event, 10)
	bus.Subscribe("pair_created", pairCh)
	bus.Subscribe("alert_fired", alertCh)

	bus.Publish(Event{Channel: "pair_created", Payload: "{}"})

	select {
	case <-pairCh:
	case <-time.After(time.Second):
		t.Fatal("pair subscriber did not receive event")
	}

	select {
	case <-alertCh:
		t.Fatal("alert subscriber should NOT receive pair_created event")
	case <-time.After(50 * time.Millisecond):
		// good
	}
}

func TestBus_Handler(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 1)
	bus.Subscribe("pair_created", received)

	handle := bus.Handler("pair_created")
	handle(`{"pool_id":1}`)

	select {
	case evt := <-received:
		if evt.Payload != `{"pool_id":1}` {
			t.Errorf("unexpected payload %q", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bridged event")
	}
}

func TestBus_PublishBatch(t *testing.T) {
	bus := New()
	defer bus.Close()

	received := make(chan Event, 100)
	bus.Subscribe("pair_created", received)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(Event{Channel: "pair_created", Payload: "{}"})
		}()
	}
	wg.Wait()

	time.Sleep(100 * time.Millisecond)
	if len(received) != 50 {
		t.Errorf("expected 50 events, got %d", len(received))
	}
}
