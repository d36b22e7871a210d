package memory

import (
	"context"
	"testing"
	"time"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
)

func TestEventBusDeliversInPublishOrder(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus(16)

	first, err := bus.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer first.Close()
	second, err := bus.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer second.Close()
	other, err := bus.Subscribe(ctx, "s2")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer other.Close()

	for rank := 1; rank <= 5; rank++ {
		msg := domain.Message{SessionID: "s1", Timestamp: time.Now(), Event: domain.BuzzerPressed{Rank: rank}}
		if err := bus.Publish(ctx, msg); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for _, sub := range []<-chan app.Delivery{first.C, second.C} {
		for want := 1; want <= 5; want++ {
			d := <-sub
			got := d.Message.Event.(domain.BuzzerPressed).Rank
			if got != want {
				t.Fatalf("expected rank %d, got %d", want, got)
			}
		}
	}
	select {
	case d := <-other.C:
		t.Fatalf("other topic received %+v", d)
	default:
	}
}

func TestEventBusClosesSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus(2)
	sub, err := bus.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 3; i++ {
		_ = bus.Publish(ctx, domain.Message{SessionID: "s1", Event: domain.TimerStopped{TotalBuzzes: i}})
	}
	if bus.Subscribers("s1") != 0 {
		t.Fatalf("expected slow subscriber dropped")
	}

	var got []int
	for d := range sub.C {
		got = append(got, d.Message.Event.(domain.TimerStopped).TotalBuzzes)
	}
	if len(got) != 2 || got[0] != 0 || got[1] != 1 {
		t.Fatalf("expected buffered prefix [0 1], got %v", got)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("close after drop: %v", err)
	}
}

func TestEventBusCloseUnsubscribes(t *testing.T) {
	ctx := context.Background()
	bus := NewEventBus(0)
	sub, err := bus.Subscribe(ctx, "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = sub.Close()
	_ = sub.Close()
	if bus.Subscribers("s1") != 0 {
		t.Fatalf("expected no subscribers after close")
	}
	if _, ok := <-sub.C; ok {
		t.Fatalf("expected closed channel")
	}
}
