package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/outpatient-scheduling/internal/app"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	"github.com/zatekoja/outpatient-scheduling/pkg/config"
)

// Runs one triage batch outside the server's schedule. Exits 1 when the run
// failed and 2 when another run held the lock.
func main() {
	os.Exit(run())
}

func run() int {
	var simulate bool
	var rebuildOnly bool

	flag.BoolVar(&simulate, "simulate", false, "Use the local triage simulator instead of the live service")
	flag.BoolVar(&rebuildOnly, "rebuild-only", false, "Rebuild today's queue from the last run without triaging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if simulate {
		cfg.Triage.Simulation = true
	}

	observability.InitLogger(cfg.OTEL.ServiceName+"-batch", cfg.Env)
	logger := observability.GetLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx)

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	container, err := app.Build(ctx, cfg, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to wire application")
	}
	defer container.Close()

	start := time.Now()

	if rebuildOnly {
		entries, err := container.Builder.RebuildFromLastRun(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Queue rebuild failed")
			return 1
		}
		logger.Info().
			Int("queued", len(entries)).
			Dur("duration", time.Since(start)).
			Msg("Queue rebuilt")
		return 0
	}

	report := container.Orchestrator.Run(ctx, entities.BatchTriggerManual)
	batchRun := report.Run

	event := logger.Info()
	if !report.Success() {
		event = logger.Error()
	}
	event.
		Str("run_id", batchRun.ID).
		Str("status", string(batchRun.Status)).
		Str("failed_step", string(batchRun.FailedStep)).
		Int("pending", batchRun.PendingCount).
		Int("submitted", batchRun.SubmittedCount).
		Int("committed", batchRun.CommittedCount).
		Int("skipped", batchRun.SkippedCount).
		Int("queued", batchRun.QueuedCount).
		Int("notified", batchRun.NotifiedCount).
		Strs("warnings", report.Warnings).
		Dur("duration", time.Since(start)).
		Msg(report.Message)

	switch batchRun.Status {
	case entities.BatchRunStatusFailed:
		return 1
	case entities.BatchRunStatusSkipped:
		return 2
	}
	return 0
}
