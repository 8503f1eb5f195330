package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
)

// publishQueueEvent broadcasts on the global and the day channel. Failures
// are logged only; events drive live views and are never load-bearing.
func publishQueueEvent(ctx context.Context, bus providers.EventBus, eventType entities.QueueEventType, day time.Time, entry *entities.QueueEntry, data map[string]interface{}) {
	if bus == nil {
		return
	}

	event := entities.NewQueueEvent(uuid.New().String(), eventType, day)
	if entry != nil {
		event.EntryID = entry.ID
		event.Status = entry.Status
	}
	for k, v := range data {
		event.Data[k] = v
	}

	for _, channel := range []string{providers.EventChannelQueueUpdates, providers.GetQueueDayChannel(day)} {
		if err := bus.Publish(ctx, channel, event); err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).
				Str("channel", channel).
				Str("event_type", string(eventType)).
				Msg("failed to publish queue event")
		}
	}
}
