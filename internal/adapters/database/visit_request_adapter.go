package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// VisitRequestAdapter implements the VisitRequestRepository interface
type VisitRequestAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewVisitRequestAdapter creates a new visit request adapter
func NewVisitRequestAdapter(client *postgres.Client) repositories.VisitRequestRepository {
	return &VisitRequestAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

func (a *VisitRequestAdapter) selectWithPatient() *goqu.SelectDataset {
	cols := append(append([]interface{}{}, visitRequestColumns...), patientColumns...)
	return a.db.From(goqu.T(tableVisitRequests).As("vr")).
		Select(cols...).
		LeftJoin(goqu.T(tablePatients).As("p"), goqu.On(goqu.I("p.id").Eq(goqu.I("vr.patient_id"))))
}

// ListPending returns pending requests oldest first
func (a *VisitRequestAdapter) ListPending(ctx context.Context) ([]*entities.VisitRequest, error) {
	query, args, err := a.selectWithPatient().
		Where(goqu.I("vr.status").Eq(entities.VisitRequestStatusPending)).
		Order(goqu.I("vr.created_at").Asc(), goqu.I("vr.id").Asc()).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build pending query", err)
	}

	return a.queryWithPatient(ctx, query, args...)
}

// ListByIDs retrieves requests by id
func (a *VisitRequestAdapter) ListByIDs(ctx context.Context, ids []string) ([]*entities.VisitRequest, error) {
	if len(ids) == 0 {
		return []*entities.VisitRequest{}, nil
	}

	query, args, err := a.selectWithPatient().
		Where(goqu.I("vr.id").In(ids)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	return a.queryWithPatient(ctx, query, args...)
}

func (a *VisitRequestAdapter) queryWithPatient(ctx context.Context, query string, args ...interface{}) ([]*entities.VisitRequest, error) {
	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query visit requests", err)
	}
	defer rows.Close()

	requests := make([]*entities.VisitRequest, 0)
	for rows.Next() {
		req, err := scanVisitRequestWithPatient(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to scan visit request", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate visit requests", err)
	}

	return requests, nil
}

// ApplyDecisions updates every matched pending request inside one transaction
func (a *VisitRequestAdapter) ApplyDecisions(ctx context.Context, decisions []entities.TriageDecision) ([]*entities.VisitRequest, []string, error) {
	updated := make([]*entities.VisitRequest, 0, len(decisions))
	unmatched := make([]string, 0)
	logger := observability.LoggerFromContext(ctx)
	now := time.Now().UTC()

	err := a.client.WithTx(ctx, func(tx *sql.Tx) error {
		for _, d := range decisions {
			query, args, err := a.db.Update(tableVisitRequests).
				Set(goqu.Record{
					"priority_rank":  d.PriorityRank,
					"severity_score": d.SeverityScore,
					"status":         d.Status,
					"updated_at":     now,
				}).
				Where(goqu.Ex{
					"id":     d.RequestID,
					"status": entities.VisitRequestStatusPending,
				}).
				Returning(
					"id", "patient_id", "medical_condition", "visiting_status", "discharge_type",
					"status", "priority_rank", "severity_score", "created_at", "updated_at",
				).
				ToSQL()
			if err != nil {
				return fmt.Errorf("build update for %s: %w", d.RequestID, err)
			}

			req, err := scanVisitRequest(tx.QueryRowContext(ctx, query, args...))
			if errors.Is(err, sql.ErrNoRows) {
				logger.Warn().Str("request_id", d.RequestID).Msg("triage decision matches no pending request, skipping")
				unmatched = append(unmatched, d.RequestID)
				continue
			}
			if err != nil {
				return fmt.Errorf("update request %s: %w", d.RequestID, err)
			}
			updated = append(updated, req)
		}
		return nil
	})
	if err != nil {
		return nil, nil, apperrors.NewCommitFailure("triage decisions rolled back", err)
	}

	return updated, unmatched, nil
}

func scanVisitRequest(row rowScanner) (*entities.VisitRequest, error) {
	req := &entities.VisitRequest{}
	var dischargeType sql.NullString
	var rank, severity sql.NullInt64

	if err := row.Scan(
		&req.ID, &req.PatientID, &req.MedicalCondition, &req.VisitingStatus, &dischargeType,
		&req.Status, &rank, &severity, &req.CreatedAt, &req.UpdatedAt,
	); err != nil {
		return nil, err
	}

	applyNullables(req, dischargeType, rank, severity)
	return req, nil
}

func scanVisitRequestWithPatient(row rowScanner) (*entities.VisitRequest, error) {
	req := &entities.VisitRequest{}
	var dischargeType sql.NullString
	var rank, severity sql.NullInt64
	var pID, pFirst, pLast, pGender, pEmail, pPhone, pChannel sql.NullString
	var pBirth sql.NullTime

	if err := row.Scan(
		&req.ID, &req.PatientID, &req.MedicalCondition, &req.VisitingStatus, &dischargeType,
		&req.Status, &rank, &severity, &req.CreatedAt, &req.UpdatedAt,
		&pID, &pFirst, &pLast, &pGender, &pBirth, &pEmail, &pPhone, &pChannel,
	); err != nil {
		return nil, err
	}

	applyNullables(req, dischargeType, rank, severity)

	if pID.Valid {
		req.Patient = &entities.Patient{
			ID:               pID.String,
			FirstName:        pFirst.String,
			LastName:         pLast.String,
			Gender:           pGender.String,
			Email:            pEmail.String,
			Phone:            pPhone.String,
			PreferredChannel: entities.NotificationChannel(pChannel.String),
		}
		if pBirth.Valid {
			birth := pBirth.Time
			req.Patient.BirthDate = &birth
		}
	}

	return req, nil
}

func applyNullables(req *entities.VisitRequest, dischargeType sql.NullString, rank, severity sql.NullInt64) {
	if dischargeType.Valid {
		req.DischargeType = &dischargeType.String
	}
	if rank.Valid {
		v := int(rank.Int64)
		req.PriorityRank = &v
	}
	if severity.Valid {
		v := int(severity.Int64)
		req.SeverityScore = &v
	}
}
