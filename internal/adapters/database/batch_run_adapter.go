package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// batchRunRow is the storage shape of a BatchRun; committed ids are JSONB
type batchRunRow struct {
	ID             string         `db:"id"`
	Trigger        string         `db:"trigger_source"`
	Status         string         `db:"status"`
	StartedAt      time.Time      `db:"started_at"`
	FinishedAt     sql.NullTime   `db:"finished_at"`
	PendingCount   int            `db:"pending_count"`
	SubmittedCount int            `db:"submitted_count"`
	SkippedCount   int            `db:"skipped_count"`
	CommittedCount int            `db:"committed_count"`
	ApprovedCount  int            `db:"approved_count"`
	QueuedCount    int            `db:"queued_count"`
	NotifiedCount  int            `db:"notified_count"`
	CommittedIDs   []byte         `db:"committed_ids"`
	FailedStep     sql.NullString `db:"failed_step"`
	ErrorMessage   sql.NullString `db:"error_message"`
}

const batchRunSelect = `
	SELECT id, trigger_source, status, started_at, finished_at, pending_count,
	       submitted_count, skipped_count, committed_count, approved_count,
	       queued_count, notified_count, committed_ids, failed_step, error_message
	FROM batch_runs`

// BatchRunAdapter implements the BatchRunRepository interface
type BatchRunAdapter struct {
	db *sqlx.DB
}

// NewBatchRunAdapter creates a new batch run adapter
func NewBatchRunAdapter(db *sqlx.DB) repositories.BatchRunRepository {
	return &BatchRunAdapter{db: db}
}

// Create records the start of a run
func (a *BatchRunAdapter) Create(ctx context.Context, run *entities.BatchRun) error {
	row, err := toBatchRunRow(run)
	if err != nil {
		return apperrors.NewInternalError("failed to encode batch run", err)
	}

	query := `
		INSERT INTO batch_runs
		(id, trigger_source, status, started_at, finished_at, pending_count, submitted_count,
		 skipped_count, committed_count, approved_count, queued_count, notified_count,
		 committed_ids, failed_step, error_message)
		VALUES (:id, :trigger_source, :status, :started_at, :finished_at, :pending_count, :submitted_count,
		 :skipped_count, :committed_count, :approved_count, :queued_count, :notified_count,
		 :committed_ids, :failed_step, :error_message)
	`
	if _, err := a.db.NamedExecContext(ctx, query, row); err != nil {
		return apperrors.NewInternalError("failed to create batch run", err)
	}
	return nil
}

// Update records progress or the final outcome of a run
func (a *BatchRunAdapter) Update(ctx context.Context, run *entities.BatchRun) error {
	row, err := toBatchRunRow(run)
	if err != nil {
		return apperrors.NewInternalError("failed to encode batch run", err)
	}

	query := `
		UPDATE batch_runs
		SET status = :status, finished_at = :finished_at, pending_count = :pending_count,
		    submitted_count = :submitted_count, skipped_count = :skipped_count,
		    committed_count = :committed_count, approved_count = :approved_count,
		    queued_count = :queued_count, notified_count = :notified_count,
		    committed_ids = :committed_ids, failed_step = :failed_step, error_message = :error_message
		WHERE id = :id
	`
	result, err := a.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return apperrors.NewInternalError("failed to update batch run", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("batch run " + run.ID + " not found")
	}
	return nil
}

// LatestCommitted returns the newest run that committed at least one decision
func (a *BatchRunAdapter) LatestCommitted(ctx context.Context) (*entities.BatchRun, error) {
	var row batchRunRow
	query := batchRunSelect + ` WHERE committed_count > 0 ORDER BY started_at DESC LIMIT 1`
	if err := a.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("no batch run has committed decisions yet")
		}
		return nil, apperrors.NewInternalError("failed to get latest batch run", err)
	}
	return row.toEntity()
}

// List returns the most recent runs, newest first
func (a *BatchRunAdapter) List(ctx context.Context, limit int) ([]*entities.BatchRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var rows []batchRunRow
	if err := a.db.SelectContext(ctx, &rows, batchRunSelect+` ORDER BY started_at DESC LIMIT $1`, limit); err != nil {
		return nil, apperrors.NewInternalError("failed to list batch runs", err)
	}

	runs := make([]*entities.BatchRun, 0, len(rows))
	for i := range rows {
		run, err := rows[i].toEntity()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func toBatchRunRow(run *entities.BatchRun) (*batchRunRow, error) {
	ids := run.CommittedIDs
	if ids == nil {
		ids = []string{}
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}

	row := &batchRunRow{
		ID:             run.ID,
		Trigger:        string(run.Trigger),
		Status:         string(run.Status),
		StartedAt:      run.StartedAt,
		PendingCount:   run.PendingCount,
		SubmittedCount: run.SubmittedCount,
		SkippedCount:   run.SkippedCount,
		CommittedCount: run.CommittedCount,
		ApprovedCount:  run.ApprovedCount,
		QueuedCount:    run.QueuedCount,
		NotifiedCount:  run.NotifiedCount,
		CommittedIDs:   encoded,
		FailedStep:     sql.NullString{String: string(run.FailedStep), Valid: run.FailedStep != ""},
		ErrorMessage:   sql.NullString{String: run.ErrorMessage, Valid: run.ErrorMessage != ""},
	}
	if run.FinishedAt != nil {
		row.FinishedAt = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}
	return row, nil
}

func (r *batchRunRow) toEntity() (*entities.BatchRun, error) {
	run := &entities.BatchRun{
		ID:             r.ID,
		Trigger:        entities.BatchTrigger(r.Trigger),
		Status:         entities.BatchRunStatus(r.Status),
		StartedAt:      r.StartedAt,
		PendingCount:   r.PendingCount,
		SubmittedCount: r.SubmittedCount,
		SkippedCount:   r.SkippedCount,
		CommittedCount: r.CommittedCount,
		ApprovedCount:  r.ApprovedCount,
		QueuedCount:    r.QueuedCount,
		NotifiedCount:  r.NotifiedCount,
		FailedStep:     entities.BatchStep(r.FailedStep.String),
		ErrorMessage:   r.ErrorMessage.String,
		CommittedIDs:   []string{},
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		run.FinishedAt = &t
	}
	if len(r.CommittedIDs) > 0 {
		if err := json.Unmarshal(r.CommittedIDs, &run.CommittedIDs); err != nil {
			return nil, apperrors.NewInternalError("failed to decode committed ids", err)
		}
	}
	return run, nil
}
