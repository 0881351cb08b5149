package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Broker is the cross-process fan-out boundary. Delivery guarantees are
// whatever the underlying bus provides (at-least-once / best-effort); the
// relay layer adds nothing on top.
type Broker interface {
	// Publish sends payload to every subscriber of topic, across processes.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe opens a subscription for topic. When Subscribe returns, the
	// subscription is established: a payload published afterwards will be
	// observed by Receive.
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is one open topic subscription.
type Subscription interface {
	// Receive blocks until the next payload, the context is cancelled, or
	// the broker connection fails.
	Receive(ctx context.Context) ([]byte, error)
	// Close unsubscribes and releases the subscription.
	Close() error
}

// RedisBroker fans out over Redis pub/sub, the shared bus between server
// processes.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	// Wait for the SUBSCRIBE confirmation so no message published after we
	// return can slip past the server-side subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}
	return &redisSubscription{pubsub: pubsub}, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
}

func (s *redisSubscription) Receive(ctx context.Context) ([]byte, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	return []byte(msg.Payload), nil
}

func (s *redisSubscription) Close() error {
	return s.pubsub.Close()
}
