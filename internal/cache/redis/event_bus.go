package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/voidlabs/voidbot/internal/domain"
)

// eventStream is the durable trail of every published event, trimmed via
// XADD MAXLEN ~.
const (
	eventStream        = "events"
	eventStreamMaxLen  = 10000
	eventChannelPrefix = "events:"
)

// EventBus implements domain.EventBus using Redis Pub/Sub for live fan-out
// and a Redis stream as a durable trail.
type EventBus struct {
	rdb    *redis.Client
	cancel context.CancelFunc
	ctx    context.Context
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBus{rdb: c.Underlying(), ctx: ctx, cancel: cancel}
}

func eventChannel(t domain.EventType) string {
	return eventChannelPrefix + string(t)
}

// Publish sends the event to its type channel and appends it to the durable
// stream.
func (b *EventBus) Publish(ctx context.Context, e domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: marshal event %s: %w", e.Type, err)
	}

	pipe := b.rdb.Pipeline()
	pipe.Publish(ctx, eventChannel(e.Type), data)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: eventStream,
		MaxLen: eventStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    string(e.Type),
			"payload": data,
		},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish event %s: %w", e.Type, err)
	}
	return nil
}

// Subscribe returns a channel emitting events of the given types. With no
// types it receives every event. The channel closes when ctx is done or the
// bus is closed.
func (b *EventBus) Subscribe(ctx context.Context, types ...domain.EventType) (<-chan domain.Event, error) {
	var pubsub *redis.PubSub
	if len(types) == 0 {
		pubsub = b.rdb.PSubscribe(ctx, eventChannelPrefix+"*")
	} else {
		channels := make([]string, len(types))
		for i, t := range types {
			channels[i] = eventChannel(t)
		}
		pubsub = b.rdb.Subscribe(ctx, channels...)
	}

	// Receive the subscription confirmation before handing the channel out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe events: %w", err)
	}

	out := make(chan domain.Event, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					continue
				}
				select {
				case out <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close stops all subscriptions.
func (b *EventBus) Close() error {
	b.cancel()
	return nil
}

var _ domain.EventBus = (*EventBus)(nil)
