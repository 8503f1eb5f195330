package providers

import (
	"context"
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to queue events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.QueueEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.QueueEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for queue events
const (
	// EventChannelQueueUpdates carries every queue change
	EventChannelQueueUpdates = "queue:updates"

	// EventChannelQueueDayPrefix is the prefix for day-specific channels
	EventChannelQueueDayPrefix = "queue:day:"
)

// GetQueueDayChannel returns the channel name for one day's queue
func GetQueueDayChannel(day time.Time) string {
	return EventChannelQueueDayPrefix + entities.DayOf(day).Format("2006-01-02")
}
