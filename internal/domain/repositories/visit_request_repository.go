package repositories

import (
	"context"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// VisitRequestRepository defines the request store operations the triage pipeline needs
type VisitRequestRepository interface {
	// ListPending returns every pending request in submission order, with
	// the owning patient attached when it can be resolved
	ListPending(ctx context.Context) ([]*entities.VisitRequest, error)

	// ApplyDecisions writes rank, severity and status for each decision in a
	// single transaction. Decisions whose id matches no pending request are
	// returned in unmatched. Any write failure rolls the whole set back.
	ApplyDecisions(ctx context.Context, decisions []entities.TriageDecision) (updated []*entities.VisitRequest, unmatched []string, err error)

	// ListByIDs retrieves requests by id in no particular order
	ListByIDs(ctx context.Context, ids []string) ([]*entities.VisitRequest, error)
}
