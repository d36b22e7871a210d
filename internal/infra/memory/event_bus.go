package memory

import (
	"context"
	"sync"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
)

const defaultSubscriberBuffer = 64

// EventBus is an in-process app.EventChannel. Delivery happens under the bus
// lock, so every subscriber sees a topic in publish order. A subscriber that
// falls a full buffer behind is closed rather than skipped; the client then
// resubscribes and resyncs.
type EventBus struct {
	buffer int

	mu     sync.Mutex
	topics map[string]map[*busSubscriber]struct{}
}

type busSubscriber struct {
	ch chan app.Delivery
}

func NewEventBus(buffer int) *EventBus {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &EventBus{
		buffer: buffer,
		topics: make(map[string]map[*busSubscriber]struct{}),
	}
}

func (b *EventBus) Publish(_ context.Context, msg domain.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.topics[msg.SessionID] {
		select {
		case sub.ch <- app.Delivery{Message: msg}:
		default:
			b.dropLocked(msg.SessionID, sub)
		}
	}
	return nil
}

func (b *EventBus) Subscribe(ctx context.Context, sessionID string) (*app.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &busSubscriber{ch: make(chan app.Delivery, b.buffer)}

	b.mu.Lock()
	subs, ok := b.topics[sessionID]
	if !ok {
		subs = make(map[*busSubscriber]struct{})
		b.topics[sessionID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	return app.NewSubscription(sub.ch, func() error {
		b.mu.Lock()
		b.dropLocked(sessionID, sub)
		b.mu.Unlock()
		return nil
	}), nil
}

func (b *EventBus) dropLocked(sessionID string, sub *busSubscriber) {
	subs := b.topics[sessionID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(b.topics, sessionID)
	}
}

// Subscribers returns the number of live subscriptions of a topic.
func (b *EventBus) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[sessionID])
}
