package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

func setupMockClient(t *testing.T) (*postgres.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return postgres.NewClientFromDB(db), mock
}

var requestColumnNames = []string{
	"id", "patient_id", "medical_condition", "visiting_status", "discharge_type",
	"status", "priority_rank", "severity_score", "created_at", "updated_at",
}

func TestVisitRequestAdapter_ListPending(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewVisitRequestAdapter(client)

	created := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	birth := time.Date(1980, 1, 2, 0, 0, 0, 0, time.UTC)
	columns := append(append([]string{}, requestColumnNames...),
		"p_id", "first_name", "last_name", "gender", "birth_date", "email", "phone", "preferred_channel")

	mock.ExpectQuery(`SELECT .* FROM "visit_requests" AS "vr" LEFT JOIN "patients" AS "p"`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("r1", "p1", "severe headache", "discharged_2_weeks", "surgical", "pending", nil, nil, created, created,
				"p1", "Ada", "Obi", "female", birth, "ada@example.com", "+2348000", "sms").
			AddRow("r2", "p404", "routine checkup", "review", nil, "pending", nil, nil, created, created,
				nil, nil, nil, nil, nil, nil, nil, nil))

	requests, err := adapter.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, requests, 2)

	assert.Equal(t, entities.VisitingStatusDischarged2Weeks, requests[0].VisitingStatus)
	require.NotNil(t, requests[0].DischargeType)
	assert.Equal(t, "surgical", *requests[0].DischargeType)
	require.NotNil(t, requests[0].Patient)
	assert.Equal(t, entities.ChannelSMS, requests[0].Patient.PreferredChannel)
	require.NotNil(t, requests[0].Patient.BirthDate)
	assert.Nil(t, requests[0].PriorityRank)

	assert.Nil(t, requests[1].Patient, "unresolvable patient stays nil")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVisitRequestAdapter_ApplyDecisions(t *testing.T) {
	now := time.Now()
	decisions := []entities.TriageDecision{
		{RequestID: "r1", PriorityRank: 1, SeverityScore: 9, Status: entities.VisitRequestStatusApproved},
		{RequestID: "ghost", PriorityRank: 2, SeverityScore: 5, Status: entities.VisitRequestStatusApproved},
		{RequestID: "r2", PriorityRank: 3, SeverityScore: 3, Status: entities.VisitRequestStatusRebook},
	}

	t.Run("updates matched rows and reports unmatched ids", func(t *testing.T) {
		client, mock := setupMockClient(t)
		adapter := NewVisitRequestAdapter(client)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE "visit_requests" SET .* WHERE .*'r1'.* RETURNING`).
			WillReturnRows(sqlmock.NewRows(requestColumnNames).
				AddRow("r1", "p1", "severe headache", "discharged_2_weeks", nil, "approved", 1, 9, now, now))
		mock.ExpectQuery(`UPDATE "visit_requests" SET .* WHERE .*'ghost'.* RETURNING`).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`UPDATE "visit_requests" SET .* WHERE .*'r2'.* RETURNING`).
			WillReturnRows(sqlmock.NewRows(requestColumnNames).
				AddRow("r2", "p2", "routine checkup", "review", nil, "rebook", 3, 3, now, now))
		mock.ExpectCommit()

		updated, unmatched, err := adapter.ApplyDecisions(context.Background(), decisions)
		require.NoError(t, err)
		require.Len(t, updated, 2)
		assert.Equal(t, "r1", updated[0].ID)
		assert.Equal(t, 1, updated[0].Rank())
		assert.Equal(t, entities.VisitRequestStatusRebook, updated[1].Status)
		assert.Equal(t, []string{"ghost"}, unmatched)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back everything when one write fails", func(t *testing.T) {
		client, mock := setupMockClient(t)
		adapter := NewVisitRequestAdapter(client)

		mock.ExpectBegin()
		mock.ExpectQuery(`UPDATE "visit_requests"`).
			WillReturnRows(sqlmock.NewRows(requestColumnNames).
				AddRow("r1", "p1", "severe headache", "discharged_2_weeks", nil, "approved", 1, 9, now, now))
		mock.ExpectQuery(`UPDATE "visit_requests"`).
			WillReturnError(errors.New("deadlock detected"))
		mock.ExpectRollback()

		updated, unmatched, err := adapter.ApplyDecisions(context.Background(), decisions)
		require.Error(t, err)
		assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeCommitFailure))
		assert.Nil(t, updated)
		assert.Nil(t, unmatched)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVisitRequestAdapter_ListByIDs_Empty(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewVisitRequestAdapter(client)

	requests, err := adapter.ListByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, requests)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPatientAdapter_GetByIDs(t *testing.T) {
	client, mock := setupMockClient(t)
	adapter := NewPatientAdapter(client)

	mock.ExpectQuery(`SELECT .* FROM "patients" AS "p" WHERE .*IN`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "gender", "birth_date", "email", "phone", "preferred_channel"}).
			AddRow("p1", "Ada", "Obi", "female", nil, "ada@example.com", nil, "email"))

	patients, err := adapter.GetByIDs(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	require.Contains(t, patients, "p1")
	assert.NotContains(t, patients, "p2")
	assert.Nil(t, patients["p1"].BirthDate)
	assert.Equal(t, entities.ChannelEmail, patients["p1"].PreferredChannel)
	assert.NoError(t, mock.ExpectationsWereMet())
}
