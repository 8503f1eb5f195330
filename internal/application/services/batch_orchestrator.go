package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/zatekoja/outpatient-scheduling/internal/adapters/providers/triage"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// BatchLockName is the run lock shared by scheduled and manual triggers
const BatchLockName = "triage-batch"

// BatchRunReport is the outcome of one Run call
type BatchRunReport struct {
	Run      *entities.BatchRun `json:"run"`
	Message  string             `json:"message"`
	Warnings []string           `json:"warnings,omitempty"`
	// Shared is true when this caller joined a run already in flight
	Shared bool `json:"shared,omitempty"`

	step entities.BatchStep
}

// Success reports whether the run finished without any failed step
func (r *BatchRunReport) Success() bool {
	return r.Run != nil && (r.Run.Status == entities.BatchRunStatusSucceeded)
}

// BatchOrchestratorConfig tunes a BatchOrchestrator
type BatchOrchestratorConfig struct {
	LockTTL       time.Duration
	TriageTimeout time.Duration
}

// BatchOrchestrator runs the weekly triage pipeline:
// fetch pending, build payload, triage, commit, build queue, notify.
type BatchOrchestrator struct {
	requests   repositories.VisitRequestRepository
	runs       repositories.BatchRunRepository
	provider   providers.TriageProvider
	committer  *ResultCommitter
	builder    *QueueBuilder
	dispatcher *NotificationDispatcher
	lock       providers.RunLock
	eventBus   providers.EventBus
	metrics    *observability.Metrics
	clock      *Clock
	cfg        BatchOrchestratorConfig

	group singleflight.Group
}

// NewBatchOrchestrator creates a new orchestrator. eventBus and metrics may be nil.
func NewBatchOrchestrator(
	requests repositories.VisitRequestRepository,
	runs repositories.BatchRunRepository,
	provider providers.TriageProvider,
	committer *ResultCommitter,
	builder *QueueBuilder,
	dispatcher *NotificationDispatcher,
	lock providers.RunLock,
	eventBus providers.EventBus,
	metrics *observability.Metrics,
	clock *Clock,
	cfg BatchOrchestratorConfig,
) *BatchOrchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	if cfg.TriageTimeout <= 0 {
		cfg.TriageTimeout = 30 * time.Second
	}
	if clock == nil {
		clock = NewClock(nil, nil)
	}
	return &BatchOrchestrator{
		requests:   requests,
		runs:       runs,
		provider:   provider,
		committer:  committer,
		builder:    builder,
		dispatcher: dispatcher,
		lock:       lock,
		eventBus:   eventBus,
		metrics:    metrics,
		clock:      clock,
		cfg:        cfg,
	}
}

// ScheduledJob adapts Run to the scheduler's job signature
func (o *BatchOrchestrator) ScheduledJob() providers.Job {
	return func(ctx context.Context) {
		o.Run(ctx, entities.BatchTriggerSchedule)
	}
}

// Run executes one batch. It never returns an error or panics: failures are
// recorded on the report and in the run history. Concurrent in-process
// callers share one execution; other processes are kept out by the run lock.
func (o *BatchOrchestrator) Run(ctx context.Context, trigger entities.BatchTrigger) *BatchRunReport {
	// A manual trigger's HTTP request may go away mid-run; the commit must not.
	ctx = context.WithoutCancel(ctx)

	v, _, shared := o.group.Do(BatchLockName, func() (interface{}, error) {
		return o.runLocked(ctx, trigger), nil
	})

	report := v.(*BatchRunReport)
	if shared {
		joined := *report
		joined.Shared = true
		return &joined
	}
	return report
}

func (o *BatchOrchestrator) runLocked(ctx context.Context, trigger entities.BatchTrigger) (report *BatchRunReport) {
	runID := uuid.New().String()
	logger := observability.LoggerFromContext(ctx).With().
		Str("run_id", runID).
		Str("trigger", string(trigger)).
		Logger()
	ctx = logger.WithContext(ctx)

	report = &BatchRunReport{Run: &entities.BatchRun{
		ID:        runID,
		Trigger:   trigger,
		Status:    entities.BatchRunStatusRunning,
		StartedAt: o.clock.Now(),
	}}

	if o.lock != nil {
		token, acquired, err := o.lock.TryAcquire(ctx, BatchLockName, o.cfg.LockTTL)
		switch {
		case err != nil:
			// Lock backend down; the in-process guard still holds.
			logger.Warn().Err(err).Msg("run lock unavailable, continuing without it")
		case !acquired:
			o.finish(ctx, report, entities.BatchRunStatusSkipped, "another batch run is in progress")
			return report
		default:
			defer func() {
				if err := o.lock.Release(context.Background(), BatchLockName, token); err != nil {
					logger.Warn().Err(err).Msg("failed to release run lock")
				}
			}()
		}
	}

	if err := o.runs.Create(ctx, report.Run); err != nil {
		logger.Warn().Err(err).Msg("failed to record batch run start")
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("batch run panicked")
			if report.Run.FailedStep == "" {
				report.Run.FailedStep = report.step
			}
			report.Run.ErrorMessage = fmt.Sprintf("panic: %v", r)
			o.finish(ctx, report, entities.BatchRunStatusFailed, "batch run aborted by an internal error")
		}
	}()

	spanCtx, span := observability.StartSpan(ctx, "batch.run")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("batch.run_id", runID),
		attribute.String("batch.trigger", string(trigger)),
	)

	status, message := o.pipeline(spanCtx, report, &logger)
	o.finish(ctx, report, status, message)
	return report
}

// pipeline runs the steps in order and returns the final status. Only a
// failed fetch, triage or commit stops it early.
func (o *BatchOrchestrator) pipeline(ctx context.Context, report *BatchRunReport, logger *zerolog.Logger) (entities.BatchRunStatus, string) {
	run := report.Run
	now := o.clock.Now()

	var pending []*entities.VisitRequest
	err := o.step(ctx, report, entities.BatchStepFetch, func() error {
		var err error
		pending, err = o.requests.ListPending(ctx)
		return err
	})
	if err != nil {
		return o.fail(run, entities.BatchStepFetch, err)
	}
	run.PendingCount = len(pending)
	if len(pending) == 0 {
		return entities.BatchRunStatusSucceeded, "no pending requests"
	}

	var items []entities.TriageBatchItem
	_ = o.step(ctx, report, entities.BatchStepPayload, func() error {
		var warnings []error
		items, warnings = triage.BuildPayload(pending, now)
		for _, w := range warnings {
			logger.Warn().Err(w).Msg("request excluded from triage")
			report.Warnings = append(report.Warnings, apperrors.MessageOf(w))
		}
		run.SkippedCount = len(warnings)
		return nil
	})
	run.SubmittedCount = len(items)
	if len(items) == 0 {
		return entities.BatchRunStatusSucceeded, "no pending request had usable data for triage"
	}

	var decisions []entities.TriageDecision
	err = o.step(ctx, report, entities.BatchStepTriage, func() error {
		tctx, cancel := context.WithTimeout(ctx, o.cfg.TriageTimeout)
		defer cancel()

		started := time.Now()
		var err error
		decisions, err = o.provider.Submit(tctx, items)
		outcome := "ok"
		if err != nil {
			outcome = string(triage.Classify(err))
			if outcome == "" {
				outcome = "error"
			}
		}
		observability.RecordTriageCall(ctx, o.metrics, o.provider.Name(), outcome, time.Since(started))
		return err
	})
	if err != nil {
		return o.fail(run, entities.BatchStepTriage, err)
	}

	var committed []*entities.VisitRequest
	err = o.step(ctx, report, entities.BatchStepCommit, func() error {
		var err error
		committed, err = o.committer.Commit(ctx, decisions)
		return err
	})
	if err != nil {
		return o.fail(run, entities.BatchStepCommit, err)
	}
	attachPatients(committed, pending)

	run.CommittedCount = len(committed)
	run.CommittedIDs = make([]string, 0, len(committed))
	for _, req := range committed {
		run.CommittedIDs = append(run.CommittedIDs, req.ID)
		if req.Status == entities.VisitRequestStatusApproved {
			run.ApprovedCount++
		}
	}
	if err := o.runs.Update(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to record committed ids")
	}

	status := entities.BatchRunStatusSucceeded
	message := fmt.Sprintf("%d requests triaged, %d approved", run.CommittedCount, run.ApprovedCount)

	err = o.step(ctx, report, entities.BatchStepQueue, func() error {
		entries, err := o.builder.RebuildForToday(ctx, committed)
		run.QueuedCount = len(entries)
		return err
	})
	if err != nil {
		// The commit stands; the queue can be rebuilt by hand.
		logger.Error().Err(err).Msg("queue build failed after commit")
		status = entities.BatchRunStatusCompletedWithErrors
		run.FailedStep = entities.BatchStepQueue
		run.ErrorMessage = apperrors.MessageOf(err)
		message += "; queue build failed: " + apperrors.MessageOf(err)
	}

	_ = o.step(ctx, report, entities.BatchStepNotify, func() error {
		run.NotifiedCount = o.dispatcher.NotifyAll(ctx, committed)
		return nil
	})

	return status, message
}

func (o *BatchOrchestrator) step(ctx context.Context, report *BatchRunReport, step entities.BatchStep, fn func() error) error {
	report.step = step
	started := time.Now()
	err := fn()
	observability.RecordBatchStep(ctx, o.metrics, string(step), err == nil, time.Since(started))
	return err
}

func (o *BatchOrchestrator) fail(run *entities.BatchRun, step entities.BatchStep, err error) (entities.BatchRunStatus, string) {
	run.FailedStep = step
	run.ErrorMessage = apperrors.MessageOf(err)
	return entities.BatchRunStatusFailed, fmt.Sprintf("%s failed: %s", step, apperrors.MessageOf(err))
}

func (o *BatchOrchestrator) finish(ctx context.Context, report *BatchRunReport, status entities.BatchRunStatus, message string) {
	logger := observability.LoggerFromContext(ctx)
	run := report.Run

	finished := o.clock.Now()
	run.Status = status
	run.FinishedAt = &finished
	report.Message = message

	if status == entities.BatchRunStatusSkipped {
		if err := o.runs.Create(ctx, run); err != nil {
			logger.Warn().Err(err).Msg("failed to record skipped batch run")
		}
	} else if err := o.runs.Update(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("failed to record batch run outcome")
	}

	observability.RecordBatchRun(ctx, o.metrics, string(run.Trigger), string(status))

	event := logger.Info()
	if status == entities.BatchRunStatusFailed {
		event = logger.Error().Str("failed_step", string(run.FailedStep))
	} else if status == entities.BatchRunStatusCompletedWithErrors {
		event = logger.Warn()
	}
	event.
		Str("status", string(status)).
		Int("pending", run.PendingCount).
		Int("submitted", run.SubmittedCount).
		Int("skipped", run.SkippedCount).
		Int("committed", run.CommittedCount).
		Int("approved", run.ApprovedCount).
		Int("queued", run.QueuedCount).
		Int("notified", run.NotifiedCount).
		Dur("duration", finished.Sub(run.StartedAt)).
		Msg(message)

	publishQueueEvent(ctx, o.eventBus, entities.QueueEventBatchFinished, o.clock.Today(), nil, map[string]interface{}{
		"run_id": run.ID,
		"status": string(status),
		"queued": run.QueuedCount,
	})
}

// attachPatients copies the patient records loaded with the pending set
// onto the committed rows, sparing later steps a lookup
func attachPatients(committed, pending []*entities.VisitRequest) {
	byID := make(map[string]*entities.Patient, len(pending))
	for _, req := range pending {
		if req.Patient != nil {
			byID[req.ID] = req.Patient
		}
	}
	for _, req := range committed {
		if req.Patient == nil {
			req.Patient = byID[req.ID]
		}
	}
}
