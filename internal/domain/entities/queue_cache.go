package entities

import "time"

// QueueCache is the operator-side record of the last known queue and the
// local overrides applied on top of it. It is not authoritative for
// membership or order; its Unavailable and Completed lists only grow until
// the day rolls over.
type QueueCache struct {
	QueueDate   time.Time     `json:"queue_date" yaml:"queue_date"`
	LastKnown   []*QueueEntry `json:"last_known" yaml:"last_known"`
	Unavailable []*QueueEntry `json:"unavailable" yaml:"unavailable"`
	Completed   []*QueueEntry `json:"completed" yaml:"completed"`
	// PendingSync holds ids completed locally whose store write failed.
	PendingSync []string  `json:"pending_sync,omitempty" yaml:"pending_sync,omitempty"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewQueueCache returns an empty cache for the given day
func NewQueueCache(day time.Time) *QueueCache {
	return &QueueCache{
		QueueDate:   DayOf(day),
		LastKnown:   []*QueueEntry{},
		Unavailable: []*QueueEntry{},
		Completed:   []*QueueEntry{},
	}
}

// IsFor reports whether the cache belongs to the given day
func (c *QueueCache) IsFor(day time.Time) bool {
	return c != nil && DayOf(c.QueueDate).Equal(DayOf(day))
}

// QueueView is the reconciled operator view of a day's queue.
// Active, Completed and Unavailable never share an entry id.
type QueueView struct {
	QueueDate   time.Time     `json:"queue_date"`
	Active      []*QueueEntry `json:"active"`
	Completed   []*QueueEntry `json:"completed"`
	Unavailable []*QueueEntry `json:"unavailable"`
	PendingSync []string      `json:"pending_sync,omitempty"`
}

// Head returns the first active entry, or nil
func (v *QueueView) Head() *QueueEntry {
	if len(v.Active) == 0 {
		return nil
	}
	return v.Active[0]
}

// Stats counts the view by where each entry currently sits
func (v *QueueView) Stats() QueueStats {
	stats := QueueStats{QueueDate: v.QueueDate}
	for _, e := range v.Active {
		stats.Add(e.Status)
	}
	for range v.Completed {
		stats.Add(QueueEntryStatusCompleted)
	}
	for range v.Unavailable {
		stats.Add(QueueEntryStatusUnavailable)
	}
	return stats
}
