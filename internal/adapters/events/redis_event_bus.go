package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	redisclient "github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/redis"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
)

const subscriberBuffer = 100

// topic is one Redis subscription and the local channels it feeds
type topic struct {
	pubsub      *redis.PubSub
	subscribers map[chan *entities.QueueEvent]struct{}
}

func (t *topic) closeSubscribers() {
	for subscriber := range t.subscribers {
		close(subscriber)
		delete(t.subscribers, subscriber)
	}
}

// RedisEventBus fans queue events out across processes through Redis
// Pub/Sub. Each channel holds one Redis subscription for as long as it has
// local subscribers.
type RedisEventBus struct {
	client *redisclient.Client

	mu     sync.RWMutex
	topics map[string]*topic
	closed bool
}

// NewRedisEventBus creates a new Redis-based event bus
func NewRedisEventBus(client *redisclient.Client) providers.EventBus {
	return &RedisEventBus{
		client: client,
		topics: make(map[string]*topic),
	}
}

// Publish sends event to every process subscribed to channel
func (b *RedisEventBus) Publish(ctx context.Context, channel string, event *entities.QueueEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Client().Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe returns a channel of events published to channel. It is closed
// when ctx is done or the bus shuts down.
func (b *RedisEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueEvent, error) {
	eventChan := make(chan *entities.QueueEvent, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(eventChan)
		return eventChan, nil
	}

	t, ok := b.topics[channel]
	if !ok {
		pubsub := b.client.Client().Subscribe(context.Background(), channel)
		// Events published right after Subscribe returns must not be lost.
		if _, err := pubsub.Receive(ctx); err != nil {
			b.mu.Unlock()
			_ = pubsub.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
		}
		t = &topic{pubsub: pubsub, subscribers: make(map[chan *entities.QueueEvent]struct{})}
		b.topics[channel] = t
		go b.fanOut(channel, t)
	}
	t.subscribers[eventChan] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.leave(channel, t, eventChan)
	}()
	return eventChan, nil
}

// fanOut copies Redis messages to the topic's subscribers until its
// subscription is closed
func (b *RedisEventBus) fanOut(channel string, t *topic) {
	logger := observability.GetLogger().With().Str("channel", channel).Logger()

	for msg := range t.pubsub.Channel() {
		var event entities.QueueEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			logger.Warn().Err(err).Msg("failed to unmarshal queue event")
			continue
		}

		b.mu.RLock()
		for subscriber := range t.subscribers {
			select {
			case subscriber <- &event:
			default:
				logger.Warn().Str("event_id", event.ID).Msg("subscriber channel full, skipping event")
			}
		}
		b.mu.RUnlock()
	}

	b.mu.Lock()
	t.closeSubscribers()
	if b.topics[channel] == t {
		delete(b.topics, channel)
	}
	b.mu.Unlock()
}

// leave drops one subscriber and closes the Redis subscription after the
// last one goes
func (b *RedisEventBus) leave(channel string, t *topic, eventChan chan *entities.QueueEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := t.subscribers[eventChan]; !ok {
		return
	}
	delete(t.subscribers, eventChan)
	close(eventChan)

	if len(t.subscribers) == 0 && b.topics[channel] == t {
		delete(b.topics, channel)
		_ = t.pubsub.Close()
	}
}

// Unsubscribe closes every local subscriber of channel
func (b *RedisEventBus) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	t, ok := b.topics[channel]
	if ok {
		delete(b.topics, channel)
		t.closeSubscribers()
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}
	if err := t.pubsub.Close(); err != nil {
		return fmt.Errorf("failed to close subscription %s: %w", channel, err)
	}
	return nil
}

// Close closes every subscription; later Subscribe calls get a closed channel
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]*topic)
	for _, t := range topics {
		t.closeSubscribers()
	}
	b.mu.Unlock()

	var errs []error
	for channel, t := range topics {
		if err := t.pubsub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close subscription %s: %w", channel, err))
		}
	}
	return errors.Join(errs...)
}
