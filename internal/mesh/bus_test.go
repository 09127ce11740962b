package mesh

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestLocalBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewLocalBus()
	got := make(chan string, 2)
	for _, name := range []string{"a", "b"} {
		name := name
		if _, err := bus.Subscribe(TopicMessageAnalyze, func(ctx context.Context, e Event) {
			got <- name
		}); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}

	if err := bus.Publish(context.Background(), Event{Topic: TopicMessageAnalyze, Payload: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-got:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for fan-out")
		}
	}
	if !seen["a"] || !seen["b"] {
		t.Fatalf("both subscribers should receive the event, got %v", seen)
	}
}

func TestLocalBusUnsubscribeLeavesOthersIntact(t *testing.T) {
	bus := NewLocalBus()
	got := make(chan string, 3)
	subscribe := func(name string) func() {
		unsub, err := bus.Subscribe(TopicNotifyUrgent, func(ctx context.Context, e Event) {
			got <- name
		})
		if err != nil {
			t.Fatalf("Subscribe %s: %v", name, err)
		}
		return unsub
	}
	unsubFirst := subscribe("first")
	subscribe("second")
	subscribe("third")

	// Removing an earlier subscription must not detach the later ones.
	unsubFirst()
	if err := bus.Publish(context.Background(), Event{Topic: TopicNotifyUrgent}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-got:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, delivered so far: %v", seen)
		}
	}
	if seen["first"] {
		t.Fatal("unsubscribed handler still received the event")
	}
	if !seen["second"] || !seen["third"] {
		t.Fatalf("surviving subscribers missed the event: %v", seen)
	}
}

func TestLocalBusStampsPublishTime(t *testing.T) {
	bus := NewLocalBus()
	got := make(chan Event, 1)
	if _, err := bus.Subscribe("t", func(ctx context.Context, e Event) { got <- e }); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bus.Publish(context.Background(), Event{Topic: "t"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case e := <-got:
		if e.Timestamp.IsZero() {
			t.Fatal("event delivered without a timestamp")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
