package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/veritaslabs/oraclesettle/internal/domain"
)

// eventChannel is the Pub/Sub channel carrying engine events.
const eventChannel = "oraclesettle:events"

// EventBus implements domain.EventBus on Redis Pub/Sub. Events are ephemeral
// observability signals; a subscriber that misses one loses nothing the
// persistent store does not already record.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends an engine event to all subscribers.
func (b *EventBus) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", ev.Type, err)
	}
	if err := b.rdb.Publish(ctx, eventChannel, data).Err(); err != nil {
		return fmt.Errorf("redis: publish event %s: %w", ev.Type, err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription and returns a channel of decoded
// events plus a stop function. The channel closes when stop is called or the
// context is cancelled. Malformed messages are dropped silently.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.Event, func(), error) {
	pubsub := b.rdb.Subscribe(ctx, eventChannel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe events: %w", err)
	}

	out := make(chan domain.Event, 64)
	stop := func() { _ = pubsub.Close() }

	go func() {
		defer close(out)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, stop, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
