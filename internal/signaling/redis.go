package signaling

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"commhub-backend/pkg/logger"
)

// RedisProvider publishes and subscribes through Redis Pub/Sub so every
// service instance sees every topic
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider wraps an existing client
func NewRedisProvider(client *redis.Client) *RedisProvider {
	return &RedisProvider{client: client}
}

// Send publishes payload on topic
func (p *RedisProvider) Send(ctx context.Context, topic string, payload []byte) error {
	if err := p.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe listens on topic until the returned function is called
func (p *RedisProvider) Subscribe(ctx context.Context, topic string, handler func(payload []byte)) (func(), error) {
	pubsub := p.client.Subscribe(ctx, topic)

	// wait for the subscription confirmation so no message published after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	ch := pubsub.Channel()
	go func() {
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
	}()

	logger.Debug("Subscribed to Redis channel", zap.String("topic", topic))

	return func() {
		if err := pubsub.Close(); err != nil {
			logger.Debug("Redis unsubscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}, nil
}
