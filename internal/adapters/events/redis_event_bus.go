package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/zatekoja/attendance-relay/internal/domain/entities"
	"github.com/zatekoja/attendance-relay/internal/domain/providers"
	redisclient "github.com/zatekoja/attendance-relay/internal/infrastructure/clients/redis"
	"github.com/zatekoja/attendance-relay/internal/infrastructure/observability"
)

// pubSub is the part of *redis.PubSub the bus relies on.
type pubSub interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// RedisEventBus implements the EventBus interface using Redis Pub/Sub
type RedisEventBus struct {
	client     *redisclient.Client
	openPubSub func(ctx context.Context, channel string) pubSub
	fanout     *fanout

	// mu guards subscriptions and orders fanout membership changes against
	// opening and closing the Redis subscription for a channel.
	mu            sync.Mutex
	subscriptions map[string]pubSub

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	bus := newRedisEventBus(func(ctx context.Context, channel string) pubSub {
		return client.Client().Subscribe(ctx, channel)
	})
	bus.client = client
	return bus
}

func newRedisEventBus(open func(ctx context.Context, channel string) pubSub) *RedisEventBus {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		openPubSub:    open,
		fanout:        newFanout(),
		subscriptions: make(map[string]pubSub),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Publish publishes a detection to all subscribers
func (b *RedisEventBus) Publish(ctx context.Context, channel string, record *entities.DetectionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal detection: %w", err)
	}

	if err := b.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish detection: %w", err)
	}

	observability.LoggerFromContext(ctx).Debug().
		Str("channel", channel).
		Str("detection_id", record.ID).
		Msg("published detection")
	return nil
}

// Subscribe subscribes to detections on a channel
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.DetectionRecord, error) {
	b.mu.Lock()
	if _, exists := b.subscriptions[channel]; !exists {
		ps := b.openPubSub(b.ctx, channel)
		b.subscriptions[channel] = ps
		go b.receiveMessages(channel, ps)
	}
	ch, count := b.fanout.add(channel)
	b.mu.Unlock()

	observability.GetLogger().Info().
		Str("channel", channel).
		Int("subscribers", count).
		Msg("subscribed to channel")

	go func() {
		<-ctx.Done()
		b.leave(channel, ch)
	}()

	return ch, nil
}

// leave drops one subscriber and closes the Redis subscription when it was
// the last one on the channel.
func (b *RedisEventBus) leave(channel string, ch chan *entities.DetectionRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if remaining := b.fanout.remove(channel, ch); remaining == 0 {
		b.closeSubscriptionLocked(channel)
	}
}

// receiveMessages receives messages from Redis and broadcasts them to subscribers
func (b *RedisEventBus) receiveMessages(channel string, ps pubSub) {
	ch := ps.Channel()
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var record entities.DetectionRecord
			if err := json.Unmarshal([]byte(msg.Payload), &record); err != nil {
				observability.GetLogger().Error().Err(err).
					Str("channel", channel).
					Msg("failed to unmarshal detection")
				continue
			}
			b.fanout.broadcast(channel, &record)
		}
	}
}

func (b *RedisEventBus) closeSubscriptionLocked(channel string) {
	if ps, ok := b.subscriptions[channel]; ok {
		if err := ps.Close(); err != nil {
			observability.GetLogger().Warn().Err(err).Str("channel", channel).Msg("failed to close subscription")
		}
		delete(b.subscriptions, channel)
	}
}

// Unsubscribe unsubscribes from a channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fanout.closeChannel(channel)
	b.closeSubscriptionLocked(channel)
	return nil
}

// Close closes the event bus and all subscriptions
func (b *RedisEventBus) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for channel := range b.subscriptions {
		b.closeSubscriptionLocked(channel)
	}
	for _, channel := range b.fanout.channels() {
		b.fanout.closeChannel(channel)
	}
	return nil
}
