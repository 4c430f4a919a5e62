package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus implements Bus over a redis pub/sub channel. Every process
// subscribes to the same topic, so every process sees every event.
type RedisBus struct {
	logger *zap.Logger
	client redis.UniversalClient
	topic  string
}

var _ Bus = (*RedisBus)(nil)

// NewRedisBus creates a bus publishing on topic. The bus takes ownership of client.
func NewRedisBus(logger *zap.Logger, client redis.UniversalClient, topic string) *RedisBus {
	return &RedisBus{
		logger: logger.Named("bus.redis"),
		client: client,
		topic:  topic,
	}
}

// Publish implements Bus.Publish
func (b *RedisBus) Publish(ctx context.Context, e *Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.topic, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event %q: %w", e.Name, err)
	}
	return nil
}

// Subscribe implements Bus.Subscribe. It returns once redis has confirmed
// the subscription, so events published afterwards are not missed.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan *Event, error) {
	pubsub := b.client.Subscribe(ctx, b.topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.topic, err)
	}

	out := make(chan *Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					b.logger.Error("failed to unmarshal event",
						zap.Error(err),
						zap.String("payload", msg.Payload))
					continue
				}
				select {
				case out <- &e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close implements Bus.Close
func (b *RedisBus) Close() error {
	return b.client.Close()
}
