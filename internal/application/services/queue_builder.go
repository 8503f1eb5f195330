package services

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// QueueBuilder turns committed approvals into today's service queue
type QueueBuilder struct {
	queueRepo   repositories.QueueRepository
	requestRepo repositories.VisitRequestRepository
	patientRepo repositories.PatientRepository
	runRepo     repositories.BatchRunRepository
	eventBus    providers.EventBus
	clock       *Clock
}

// NewQueueBuilder creates a new queue builder. eventBus may be nil.
func NewQueueBuilder(
	queueRepo repositories.QueueRepository,
	requestRepo repositories.VisitRequestRepository,
	patientRepo repositories.PatientRepository,
	runRepo repositories.BatchRunRepository,
	eventBus providers.EventBus,
	clock *Clock,
) *QueueBuilder {
	if clock == nil {
		clock = NewClock(nil, nil)
	}
	return &QueueBuilder{
		queueRepo:   queueRepo,
		requestRepo: requestRepo,
		patientRepo: patientRepo,
		runRepo:     runRepo,
		eventBus:    eventBus,
		clock:       clock,
	}
}

// RebuildForToday replaces today's queue with the approved subset of
// committed, ordered by rank ascending then severity descending. Running it
// twice with the same input yields the same membership and order.
func (b *QueueBuilder) RebuildForToday(ctx context.Context, committed []*entities.VisitRequest) ([]*entities.QueueEntry, error) {
	logger := observability.LoggerFromContext(ctx)
	now := b.clock.Now()
	day := b.clock.Today()

	approved := make([]*entities.VisitRequest, 0, len(committed))
	for _, req := range committed {
		if req != nil && req.Status == entities.VisitRequestStatusApproved {
			approved = append(approved, req)
		}
	}
	SortByPriority(approved)

	patients, err := resolvePatients(ctx, b.patientRepo, approved)
	if err != nil {
		return nil, apperrors.NewQueueBuildFailure("failed to resolve patients for queue", err)
	}

	entries := make([]*entities.QueueEntry, 0, len(approved))
	for _, req := range approved {
		patient, ok := patients[req.PatientID]
		if !ok {
			logger.Warn().
				Str("request_id", req.ID).
				Str("patient_id", req.PatientID).
				Msg("approved request has no resolvable patient, left out of queue")
			continue
		}

		entries = append(entries, &entities.QueueEntry{
			ID:            uuid.New().String(),
			RequestID:     req.ID,
			PatientID:     req.PatientID,
			PatientName:   patient.FullName(),
			QueueDate:     day,
			QueuePosition: len(entries) + 1,
			PriorityRank:  req.Rank(),
			SeverityScore: req.Severity(),
			Status:        entities.QueueEntryStatusApproved,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := b.queueRepo.ReplaceForDay(ctx, day, entries); err != nil {
		return nil, apperrors.NewQueueBuildFailure("failed to replace today's queue", err)
	}

	logger.Info().
		Str("queue_date", day.Format("2006-01-02")).
		Int("approved", len(approved)).
		Int("queued", len(entries)).
		Msg("queue rebuilt")

	publishQueueEvent(ctx, b.eventBus, entities.QueueEventRebuilt, day, nil, map[string]interface{}{
		"queued": len(entries),
	})

	return entries, nil
}

// RebuildFromLastRun rebuilds today's queue from the requests committed by
// the most recent run that committed anything
func (b *QueueBuilder) RebuildFromLastRun(ctx context.Context) ([]*entities.QueueEntry, error) {
	run, err := b.runRepo.LatestCommitted(ctx)
	if err != nil {
		return nil, err
	}
	if run == nil || len(run.CommittedIDs) == 0 {
		return nil, apperrors.NewNotFoundError("no batch run has committed decisions yet")
	}

	requests, err := b.requestRepo.ListByIDs(ctx, run.CommittedIDs)
	if err != nil {
		return nil, apperrors.NewQueueBuildFailure("failed to load committed requests", err)
	}

	observability.LoggerFromContext(ctx).Info().
		Str("run_id", run.ID).
		Int("committed", len(requests)).
		Msg("rebuilding queue from last committed run")

	return b.RebuildForToday(ctx, requests)
}

// SortByPriority orders requests by rank ascending, then severity
// descending. Ties keep their incoming order.
func SortByPriority(requests []*entities.VisitRequest) {
	sort.SliceStable(requests, func(i, j int) bool {
		if requests[i].Rank() != requests[j].Rank() {
			return requests[i].Rank() < requests[j].Rank()
		}
		return requests[i].Severity() > requests[j].Severity()
	})
}

// resolvePatients returns patients keyed by id, using attached records where
// present and one lookup for the rest
func resolvePatients(ctx context.Context, repo repositories.PatientRepository, requests []*entities.VisitRequest) (map[string]*entities.Patient, error) {
	patients := make(map[string]*entities.Patient, len(requests))
	var missing []string
	for _, req := range requests {
		if req.Patient != nil {
			patients[req.PatientID] = req.Patient
			continue
		}
		if _, seen := patients[req.PatientID]; !seen && req.PatientID != "" {
			missing = append(missing, req.PatientID)
		}
	}
	if len(missing) == 0 || repo == nil {
		return patients, nil
	}

	found, err := repo.GetByIDs(ctx, dedupe(missing))
	if err != nil {
		return nil, err
	}
	for id, p := range found {
		patients[id] = p
	}
	return patients, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
