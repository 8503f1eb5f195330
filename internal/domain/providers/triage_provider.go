package providers

import (
	"context"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// TriageProvider ranks a batch of visit requests by clinical priority
type TriageProvider interface {
	// Submit returns at most one decision per submitted request id.
	// Decisions for ids outside the batch are dropped, never returned.
	Submit(ctx context.Context, items []entities.TriageBatchItem) ([]entities.TriageDecision, error)

	// Name identifies the provider in logs and run history
	Name() string
}
