package entities

import (
	"time"
)

// QueueEventType represents the kind of queue change being broadcast
type QueueEventType string

const (
	QueueEventRebuilt       QueueEventType = "queue_rebuilt"
	QueueEventEntryUpdated  QueueEventType = "entry_updated"
	QueueEventReordered     QueueEventType = "queue_reordered"
	QueueEventBatchFinished QueueEventType = "batch_finished"
)

// QueueEvent is published whenever the day's queue changes
type QueueEvent struct {
	ID        string                 `json:"id"`
	EventType QueueEventType         `json:"event_type"`
	QueueDate time.Time              `json:"queue_date"`
	EntryID   string                 `json:"entry_id,omitempty"`
	Status    QueueEntryStatus       `json:"status,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewQueueEvent creates a new queue event
func NewQueueEvent(id string, eventType QueueEventType, queueDate time.Time) *QueueEvent {
	return &QueueEvent{
		ID:        id,
		EventType: eventType,
		QueueDate: DayOf(queueDate),
		Timestamp: time.Now(),
		Data:      make(map[string]interface{}),
	}
}
