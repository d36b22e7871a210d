package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
)

const channelSize = 256

// EventBus carries session events over Redis pub/sub, one channel per session:
//
//	PUBLISH quest:events:{sessionID} {envelope}
//
// A session has a single publisher holding its lock, and Redis delivers a
// channel in publish order, so subscribers observe emission order.
type EventBus struct {
	client *redis.Client
}

func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{client: client}
}

func (b *EventBus) Publish(ctx context.Context, msg domain.Message) error {
	data, err := domain.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, eventsChannel(msg.SessionID), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Event.Type(), err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription, so nothing
// published after it returns is missed.
func (b *EventBus) Subscribe(ctx context.Context, sessionID string) (*app.Subscription, error) {
	pubsub := b.client.Subscribe(ctx, eventsChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}

	in := pubsub.Channel(redis.WithChannelSize(channelSize))
	out := make(chan app.Delivery, channelSize)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for m := range in {
			msg, err := domain.DecodeMessage([]byte(m.Payload))
			d := app.Delivery{Message: msg, Err: err}
			if err != nil {
				d = app.Delivery{Err: fmt.Errorf("decode %s: %w", m.Channel, err)}
			}
			select {
			case out <- d:
			case <-done:
				return
			}
		}
	}()

	return app.NewSubscription(out, func() error {
		close(done)
		return pubsub.Close()
	}), nil
}

func eventsChannel(sessionID string) string {
	return "quest:events:" + sessionID
}
