package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// QueueAdapter implements the QueueRepository interface
type QueueAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewQueueAdapter creates a new queue adapter
func NewQueueAdapter(client *postgres.Client) repositories.QueueRepository {
	return &QueueAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// ReplaceForDay clears and rebuilds one day's queue atomically
func (a *QueueAdapter) ReplaceForDay(ctx context.Context, day time.Time, entries []*entities.QueueEntry) error {
	deleteQuery, deleteArgs, err := a.db.Delete(tableQueueEntries).
		Where(goqu.Ex{"queue_date": dayKey(day)}).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build delete query", err)
	}

	var insertQuery string
	var insertArgs []interface{}
	if len(entries) > 0 {
		rows := make([]interface{}, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, goqu.Record{
				"id":             e.ID,
				"request_id":     e.RequestID,
				"patient_id":     e.PatientID,
				"patient_name":   e.PatientName,
				"queue_date":     dayKey(day),
				"queue_position": e.QueuePosition,
				"priority_rank":  e.PriorityRank,
				"severity_score": e.SeverityScore,
				"status":         e.Status,
				"completed_time": e.CompletedTime,
				"created_at":     e.CreatedAt,
				"updated_at":     e.UpdatedAt,
			})
		}
		insertQuery, insertArgs, err = a.db.Insert(tableQueueEntries).Rows(rows...).ToSQL()
		if err != nil {
			return apperrors.NewInternalError("failed to build insert query", err)
		}
	}

	err = a.client.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
			return fmt.Errorf("delete stale queue: %w", err)
		}
		if insertQuery == "" {
			return nil
		}
		if _, err := tx.ExecContext(ctx, insertQuery, insertArgs...); err != nil {
			return fmt.Errorf("insert queue entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return apperrors.NewInternalError("failed to replace queue", err)
	}
	return nil
}

// ListByDay returns the day's entries ordered by position
func (a *QueueAdapter) ListByDay(ctx context.Context, day time.Time) ([]*entities.QueueEntry, error) {
	query, args, err := a.db.From(tableQueueEntries).
		Select(queueEntryColumns...).
		Where(goqu.Ex{"queue_date": dayKey(day)}).
		Order(goqu.C("queue_position").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list queue", err)
	}
	defer rows.Close()

	entries := make([]*entities.QueueEntry, 0)
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan queue entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate queue", err)
	}
	return entries, nil
}

// GetByID retrieves a queue entry by ID
func (a *QueueAdapter) GetByID(ctx context.Context, id string) (*entities.QueueEntry, error) {
	query, args, err := a.db.From(tableQueueEntries).
		Select(queueEntryColumns...).
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	e, err := scanQueueEntry(a.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("queue entry %s not found", id))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get queue entry", err)
	}
	return e, nil
}

// UpdateStatus applies a validated status transition to one entry
func (a *QueueAdapter) UpdateStatus(ctx context.Context, id string, status entities.QueueEntryStatus, completedTime *time.Time) (*entities.QueueEntry, error) {
	var updated *entities.QueueEntry
	err := a.client.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := a.lockEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := entities.ValidateQueueTransition(current.Status, status); err != nil {
			return apperrors.NewConflictError(err.Error())
		}
		if status == entities.QueueEntryStatusInProgress {
			if err := a.ensureNoneInProgress(ctx, tx, current.QueueDate, id); err != nil {
				return err
			}
		}
		updated, err = a.setStatus(ctx, tx, id, status, completedTime)
		return err
	})
	if err != nil {
		return nil, wrapQueueErr("failed to update queue entry", err)
	}
	return updated, nil
}

// CallNext moves id to in_progress if nothing else of the day is being served
func (a *QueueAdapter) CallNext(ctx context.Context, day time.Time, id string) (*entities.QueueEntry, error) {
	var updated *entities.QueueEntry
	err := a.client.WithTx(ctx, func(tx *sql.Tx) error {
		if err := a.ensureNoneInProgress(ctx, tx, day, ""); err != nil {
			return err
		}
		current, err := a.lockEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := entities.ValidateQueueTransition(current.Status, entities.QueueEntryStatusInProgress); err != nil {
			return apperrors.NewConflictError(err.Error())
		}
		updated, err = a.setStatus(ctx, tx, id, entities.QueueEntryStatusInProgress, nil)
		return err
	})
	if err != nil {
		return nil, wrapQueueErr("failed to call next entry", err)
	}
	return updated, nil
}

// Reorder rewrites the day's positions. The (queue_date, queue_position)
// constraint is deferred, so intermediate duplicates inside the transaction
// are allowed.
func (a *QueueAdapter) Reorder(ctx context.Context, day time.Time, ids []string) error {
	current, err := a.ListByDay(ctx, day)
	if err != nil {
		return err
	}

	order := make([]string, 0, len(current))
	listed := make(map[string]bool, len(ids))
	known := make(map[string]bool, len(current))
	for _, e := range current {
		known[e.ID] = true
	}
	for _, id := range ids {
		if known[id] && !listed[id] {
			order = append(order, id)
			listed[id] = true
		}
	}
	for _, e := range current {
		if !listed[e.ID] {
			order = append(order, e.ID)
		}
	}

	now := time.Now().UTC()
	err = a.client.WithTx(ctx, func(tx *sql.Tx) error {
		for i, id := range order {
			query, args, err := a.db.Update(tableQueueEntries).
				Set(goqu.Record{"queue_position": i + 1, "updated_at": now}).
				Where(goqu.Ex{"id": id}).
				ToSQL()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("reposition %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.NewInternalError("failed to reorder queue", err)
	}
	return nil
}

// Stats counts the day's entries by status
func (a *QueueAdapter) Stats(ctx context.Context, day time.Time) (*entities.QueueStats, error) {
	query, args, err := a.db.From(tableQueueEntries).
		Select("status", goqu.COUNT("*")).
		Where(goqu.Ex{"queue_date": dayKey(day)}).
		GroupBy("status").
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build stats query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query queue stats", err)
	}
	defer rows.Close()

	stats := &entities.QueueStats{QueueDate: entities.DayOf(day)}
	for rows.Next() {
		var status entities.QueueEntryStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.NewInternalError("failed to scan queue stats", err)
		}
		for i := 0; i < count; i++ {
			stats.Add(status)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate queue stats", err)
	}
	return stats, nil
}

func (a *QueueAdapter) lockEntry(ctx context.Context, tx *sql.Tx, id string) (*entities.QueueEntry, error) {
	query, args, err := a.db.From(tableQueueEntries).
		Select(queueEntryColumns...).
		Where(goqu.Ex{"id": id}).
		ForUpdate(exp.Wait).
		ToSQL()
	if err != nil {
		return nil, err
	}

	e, err := scanQueueEntry(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("queue entry %s not found", id))
	}
	return e, err
}

func (a *QueueAdapter) ensureNoneInProgress(ctx context.Context, tx *sql.Tx, day time.Time, exceptID string) error {
	ds := a.db.From(tableQueueEntries).
		Select("id").
		Where(goqu.Ex{
			"queue_date": dayKey(day),
			"status":     entities.QueueEntryStatusInProgress,
		}).
		Limit(1)
	if exceptID != "" {
		ds = ds.Where(goqu.C("id").Neq(exceptID))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return err
	}

	var busyID string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&busyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return apperrors.NewConflictError(fmt.Sprintf("queue entry %s is already in progress", busyID))
}

func (a *QueueAdapter) setStatus(ctx context.Context, tx *sql.Tx, id string, status entities.QueueEntryStatus, completedTime *time.Time) (*entities.QueueEntry, error) {
	record := goqu.Record{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if status == entities.QueueEntryStatusCompleted {
		if completedTime == nil {
			now := time.Now().UTC()
			completedTime = &now
		}
		record["completed_time"] = *completedTime
	}

	query, args, err := a.db.Update(tableQueueEntries).
		Set(record).
		Where(goqu.Ex{"id": id}).
		Returning(queueEntryColumns...).
		ToSQL()
	if err != nil {
		return nil, err
	}
	return scanQueueEntry(tx.QueryRowContext(ctx, query, args...))
}

func scanQueueEntry(row rowScanner) (*entities.QueueEntry, error) {
	e := &entities.QueueEntry{}
	var patientName sql.NullString
	var completed sql.NullTime

	if err := row.Scan(
		&e.ID, &e.RequestID, &e.PatientID, &patientName, &e.QueueDate, &e.QueuePosition,
		&e.PriorityRank, &e.SeverityScore, &e.Status, &completed, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	e.PatientName = patientName.String
	if completed.Valid {
		t := completed.Time
		e.CompletedTime = &t
	}
	return e, nil
}

// wrapQueueErr keeps not-found and conflict errors as they are
func wrapQueueErr(message string, err error) error {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeNotFound, apperrors.ErrorTypeConflict:
		var appErr *apperrors.AppError
		errors.As(err, &appErr)
		return appErr
	}
	return apperrors.NewInternalError(message, err)
}
