package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// QueueRepository defines the interface for the day's service queue
type QueueRepository interface {
	// ReplaceForDay deletes every entry for day and inserts entries in one
	// transaction, so readers never observe a half-built queue
	ReplaceForDay(ctx context.Context, day time.Time, entries []*entities.QueueEntry) error

	// ListByDay returns the day's entries ordered by queue position
	ListByDay(ctx context.Context, day time.Time) ([]*entities.QueueEntry, error)

	// GetByID retrieves a queue entry by ID
	GetByID(ctx context.Context, id string) (*entities.QueueEntry, error)

	// UpdateStatus moves one entry from its current status to status.
	// completedTime is stored only when moving to completed.
	UpdateStatus(ctx context.Context, id string, status entities.QueueEntryStatus, completedTime *time.Time) (*entities.QueueEntry, error)

	// CallNext marks id in_progress, failing with a conflict if any entry of
	// the same day is already in_progress
	CallNext(ctx context.Context, day time.Time, id string) (*entities.QueueEntry, error)

	// Reorder rewrites queue positions so ids occupy 1..n in the given order.
	// Entries of the day not listed keep their relative order after them.
	Reorder(ctx context.Context, day time.Time, ids []string) error

	// Stats counts the day's entries by status
	Stats(ctx context.Context, day time.Time) (*entities.QueueStats, error)
}
