package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"hifdh-quest-service/internal/app"
	"hifdh-quest-service/internal/domain"
)

const (
	subjectPrefix  = "quest.events."
	maxReconnects  = 10
	reconnectWait  = 2 * time.Second
	pendingBacklog = 256
)

// Connect dials NATS with bounded reconnects and logged connection events.
func Connect(url string, logger zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("hifdh-quest-service"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// EventBus carries session events over core NATS subjects, one per session.
// Messages from one connection to one subject arrive in publish order.
type EventBus struct {
	nc *nats.Conn
}

func NewEventBus(nc *nats.Conn) *EventBus {
	return &EventBus{nc: nc}
}

func (b *EventBus) Publish(_ context.Context, msg domain.Message) error {
	data, err := domain.EncodeMessage(msg)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(Subject(msg.SessionID), data); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Event.Type(), err)
	}
	return nil
}

// Subscribe registers interest and flushes it to the server before returning.
func (b *EventBus) Subscribe(ctx context.Context, sessionID string) (*app.Subscription, error) {
	in := make(chan *nats.Msg, pendingBacklog)
	sub, err := b.nc.ChanSubscribe(Subject(sessionID), in)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}
	if err := b.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription %s: %w", sessionID, err)
	}

	out := make(chan app.Delivery, pendingBacklog)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case m := <-in:
				select {
				case out <- decode(m):
				case <-done:
					return
				}
			}
		}
	}()

	return app.NewSubscription(out, func() error {
		close(done)
		return sub.Unsubscribe()
	}), nil
}

// Subject is the NATS subject of a session topic.
func Subject(sessionID string) string {
	return subjectPrefix + sessionID
}

func decode(m *nats.Msg) app.Delivery {
	msg, err := domain.DecodeMessage(m.Data)
	if err != nil {
		return app.Delivery{Err: fmt.Errorf("decode %s: %w", m.Subject, err)}
	}
	return app.Delivery{Message: msg}
}
