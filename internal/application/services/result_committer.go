package services

import (
	"context"
	"fmt"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// ResultCommitter writes triage decisions back to the request store
type ResultCommitter struct {
	repo repositories.VisitRequestRepository
}

// NewResultCommitter creates a new result committer
func NewResultCommitter(repo repositories.VisitRequestRepository) *ResultCommitter {
	return &ResultCommitter{repo: repo}
}

// Commit applies decisions all-or-nothing and returns the rows actually
// updated. Downstream steps must use the returned rows, not the input.
func (c *ResultCommitter) Commit(ctx context.Context, decisions []entities.TriageDecision) ([]*entities.VisitRequest, error) {
	if len(decisions) == 0 {
		return []*entities.VisitRequest{}, nil
	}
	if err := validateDecisions(decisions); err != nil {
		return nil, err
	}

	logger := observability.LoggerFromContext(ctx)

	updated, unmatched, err := c.repo.ApplyDecisions(ctx, decisions)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeCommitFailure) {
			return nil, err
		}
		return nil, apperrors.NewCommitFailure("failed to commit triage decisions", err)
	}

	for _, id := range unmatched {
		logger.Warn().Str("request_id", id).Msg("triage decision matched no pending request, skipped")
	}

	logger.Info().
		Int("decisions", len(decisions)).
		Int("updated", len(updated)).
		Int("unmatched", len(unmatched)).
		Msg("triage decisions committed")

	return updated, nil
}

// validateDecisions rechecks decisions before any write. Only the HTTP
// provider goes through response parsing; the simulator and any other
// TriageProvider hand decisions straight to the committer.
func validateDecisions(decisions []entities.TriageDecision) error {
	seen := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		if d.RequestID == "" {
			return apperrors.NewCommitFailure("decision without request id", nil)
		}
		if seen[d.RequestID] {
			return apperrors.NewCommitFailure(fmt.Sprintf("duplicate decision for request %s", d.RequestID), nil)
		}
		seen[d.RequestID] = true

		if d.SeverityScore < entities.MinSeverityScore || d.SeverityScore > entities.MaxSeverityScore {
			return apperrors.NewCommitFailure(fmt.Sprintf("decision for %s has severity %d outside 1-10", d.RequestID, d.SeverityScore), nil)
		}
		if d.Status != entities.VisitRequestStatusApproved && d.Status != entities.VisitRequestStatusRebook {
			return apperrors.NewCommitFailure(fmt.Sprintf("decision for %s has status %q", d.RequestID, d.Status), nil)
		}
	}
	return nil
}
