package database

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// PatientAdapter implements the PatientRepository interface
type PatientAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewPatientAdapter creates a new patient adapter
func NewPatientAdapter(client *postgres.Client) repositories.PatientRepository {
	return &PatientAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

// GetByIDs retrieves the patients that exist among ids
func (a *PatientAdapter) GetByIDs(ctx context.Context, ids []string) (map[string]*entities.Patient, error) {
	result := make(map[string]*entities.Patient, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := a.db.From(goqu.T(tablePatients).As("p")).
		Select(patientColumns...).
		Where(goqu.I("p.id").In(ids)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build patient query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to query patients", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &entities.Patient{}
		var gender, email, phone, channel sql.NullString
		var birth sql.NullTime
		if err := rows.Scan(&p.ID, &p.FirstName, &p.LastName, &gender, &birth, &email, &phone, &channel); err != nil {
			return nil, apperrors.NewInternalError("failed to scan patient", err)
		}
		p.Gender = gender.String
		p.Email = email.String
		p.Phone = phone.String
		p.PreferredChannel = entities.NotificationChannel(channel.String)
		if birth.Valid {
			b := birth.Time
			p.BirthDate = &b
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate patients", err)
	}

	return result, nil
}
