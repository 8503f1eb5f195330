package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	"github.com/zatekoja/outpatient-scheduling/pkg/config"
)

var firstNames = []string{"Ada", "Chinedu", "Fatima", "Tunde", "Ngozi", "Ibrahim", "Amaka", "Emeka", "Zainab", "Segun"}

var lastNames = []string{"Okafor", "Bello", "Adeyemi", "Eze", "Musa", "Olawale", "Nwosu", "Abubakar"}

var conditions = []string{
	"severe headache and blurred vision",
	"routine checkup after surgery",
	"numbness in left arm",
	"follow-up on blood pressure medication",
	"persistent cough, mild fever",
	"chest pain on exertion",
	"prescription refill for diabetes",
	"wound dressing review",
	"shortness of breath at night",
	"stable, review of lab results",
}

var visitingStatuses = []entities.VisitingStatus{
	entities.VisitingStatusDischarged2Weeks,
	entities.VisitingStatusDischarged1Week,
	entities.VisitingStatusExternalReferral,
	entities.VisitingStatusInternalReferral,
	entities.VisitingStatusReview,
}

func main() {
	var patients int
	var missingBirthDates int
	var seed uint64

	flag.IntVar(&patients, "patients", 50, "Number of patients to create, each with one pending visit request")
	flag.IntVar(&missingBirthDates, "missing-birth-dates", 2, "Number of patients created without a birth date")
	flag.Uint64Var(&seed, "seed", 1, "Random seed")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	observability.InitLogger("seed", cfg.Env)
	logger := observability.GetLogger()

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pgClient.Close()

	ctx := context.Background()
	db := goqu.New("postgres", pgClient.DB())

	if os.Getenv("RESET_DB") == "true" {
		logger.Info().Msg("RESET_DB=true detected, truncating tables before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `
			TRUNCATE TABLE queue_entries, visit_requests, patients, batch_runs CASCADE
		`); err != nil {
			logger.Fatal().Err(err).Msg("Failed to reset tables")
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed+1))
	now := time.Now()

	patientRows := make([]interface{}, 0, patients)
	requestRows := make([]interface{}, 0, patients)
	for i := 0; i < patients; i++ {
		patientID := uuid.New().String()

		var birthDate interface{}
		if i >= missingBirthDates {
			birthDate = now.AddDate(-18-rng.IntN(70), -rng.IntN(12), -rng.IntN(28)).Format("2006-01-02")
		}
		channel := entities.ChannelEmail
		if rng.IntN(3) == 0 {
			channel = entities.ChannelSMS
		}
		first := firstNames[rng.IntN(len(firstNames))]
		last := lastNames[rng.IntN(len(lastNames))]

		patientRows = append(patientRows, goqu.Record{
			"id":                patientID,
			"first_name":        first,
			"last_name":         last,
			"gender":            []string{"female", "male"}[rng.IntN(2)],
			"birth_date":        birthDate,
			"email":             fmt.Sprintf("%s.%s.%d@example.com", first, last, i),
			"phone":             fmt.Sprintf("+23480%08d", rng.IntN(100000000)),
			"preferred_channel": channel,
		})

		status := visitingStatuses[rng.IntN(len(visitingStatuses))]
		var dischargeType interface{}
		if status.IsDischarge() {
			dischargeType = "inpatient"
		}
		// Staggered so submission order is deterministic.
		createdAt := now.Add(-time.Duration(patients-i) * 10 * time.Minute)
		requestRows = append(requestRows, goqu.Record{
			"id":                uuid.New().String(),
			"patient_id":        patientID,
			"medical_condition": conditions[rng.IntN(len(conditions))],
			"visiting_status":   status,
			"discharge_type":    dischargeType,
			"status":            entities.VisitRequestStatusPending,
			"created_at":        createdAt,
			"updated_at":        createdAt,
		})
	}

	if len(patientRows) == 0 {
		logger.Info().Msg("Nothing to seed")
		return
	}

	if _, err := db.Insert("patients").Rows(patientRows...).Executor().ExecContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to insert patients")
	}
	if _, err := db.Insert("visit_requests").Rows(requestRows...).Executor().ExecContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to insert visit requests")
	}

	logger.Info().
		Int("patients", len(patientRows)).
		Int("pending_requests", len(requestRows)).
		Int("missing_birth_dates", min(missingBirthDates, patients)).
		Msg("Seeding completed")
}
