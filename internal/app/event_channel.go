package app

import (
	"context"
	"sync"

	"hifdh-quest-service/internal/domain"
)

// EventChannel is the ordered per-session publish/subscribe transport.
// Implementations must deliver the messages of one session to every
// subscriber in publish order, without duplicates.
type EventChannel interface {
	Publish(ctx context.Context, msg domain.Message) error
	Subscribe(ctx context.Context, sessionID string) (*Subscription, error)
}

// Delivery is one item read from a subscription. Err is set instead of
// Message when an inbound payload could not be decoded; the subscription
// stays open.
type Delivery struct {
	Message domain.Message
	Err     error
}

// Subscription is a live feed of one session topic. C is closed when the
// subscription ends, either through Close or because the transport dropped it.
type Subscription struct {
	C <-chan Delivery

	once    sync.Once
	closeFn func() error
	err     error
}

// NewSubscription is used by EventChannel implementations.
func NewSubscription(c <-chan Delivery, closeFn func() error) *Subscription {
	return &Subscription{C: c, closeFn: closeFn}
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
	})
	return s.err
}
