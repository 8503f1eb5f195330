package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/outpatient-scheduling/internal/adapters/providers/scheduling"
	"github.com/zatekoja/outpatient-scheduling/internal/api/handlers"
	"github.com/zatekoja/outpatient-scheduling/internal/api/routes"
	"github.com/zatekoja/outpatient-scheduling/internal/app"
	"github.com/zatekoja/outpatient-scheduling/internal/application/services"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	"github.com/zatekoja/outpatient-scheduling/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env)
	logger := observability.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx)

	// Initialize OpenTelemetry if enabled
	var otelShutdown func(context.Context) error
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		otelShutdown, err = observability.Setup(
			ctx,
			cfg.OTEL.ServiceName,
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			logger.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	// Initialize metrics
	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	container, err := app.Build(ctx, cfg, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to wire application")
	}

	// Restore today's queue from the cache or the store. A failure here is
	// not fatal; the first request retries the load.
	if _, err := container.Runtime.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial queue load failed")
	}
	if err := container.Runtime.Watch(ctx); err != nil {
		logger.Warn().Err(err).Msg("Queue rebuild watch unavailable; use /api/queue/reload after a batch run")
	}

	var scheduler *scheduling.CronScheduler
	if cfg.Batch.SchedulerEnabled {
		scheduler = scheduling.NewCronScheduler(cfg.Batch.Location())
		if err := scheduler.Register(services.BatchLockName, cfg.Batch.Schedule, container.Orchestrator.ScheduledJob()); err != nil {
			logger.Fatal().Err(err).Str("schedule", cfg.Batch.Schedule).Msg("Failed to register batch schedule")
		}
		scheduler.Start()
		logger.Info().
			Str("schedule", cfg.Batch.Schedule).
			Str("timezone", cfg.Batch.Timezone).
			Msg("Batch scheduler started")
	}

	// Initialize handlers
	batchHandler := handlers.NewBatchHandler(container.Orchestrator, container.Runs)
	queueHandler := handlers.NewQueueHandler(container.Runtime, container.Builder)
	sseHandler := handlers.NewSSEHandler(container.EventBus, container.Clock)

	checks := map[string]handlers.Pinger{"postgres": container.Postgres}
	if container.Redis != nil {
		checks["redis"] = container.Redis
	}
	healthHandler := handlers.NewHealthHandler(checks)

	router := routes.NewRouter(batchHandler, queueHandler, sseHandler, healthHandler, cfg.Server.AllowedOrigins, metrics)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     router.SetupRoutes(),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
		ReadTimeout: 15 * time.Second,
		// No write deadline: SSE streams stay open.
		IdleTimeout: 60 * time.Second,
	}

	// Cancelling the base context ends open event streams on shutdown.
	server.RegisterOnShutdown(cancel)

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop dispatching batches first; a run in flight finishes its commit.
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Scheduler did not stop cleanly")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Close()

	if otelShutdown != nil {
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Error shutting down OpenTelemetry")
		}
	}

	logger.Info().Msg("Server exited")
}
