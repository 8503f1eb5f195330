package repositories

import (
	"context"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// BatchRunRepository keeps the operational history of pipeline runs
type BatchRunRepository interface {
	// Create records the start of a run
	Create(ctx context.Context, run *entities.BatchRun) error

	// Update records progress or the final outcome of a run
	Update(ctx context.Context, run *entities.BatchRun) error

	// LatestCommitted returns the most recent run that committed decisions
	LatestCommitted(ctx context.Context) (*entities.BatchRun, error)

	// List returns the most recent runs, newest first
	List(ctx context.Context, limit int) ([]*entities.BatchRun, error)
}
