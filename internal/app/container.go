package app

import (
	"context"
	"fmt"

	"github.com/zatekoja/outpatient-scheduling/internal/adapters/cache"
	"github.com/zatekoja/outpatient-scheduling/internal/adapters/database"
	"github.com/zatekoja/outpatient-scheduling/internal/adapters/events"
	"github.com/zatekoja/outpatient-scheduling/internal/adapters/providers/triage"
	"github.com/zatekoja/outpatient-scheduling/internal/application/services"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/clients/redis"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/notifications"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	"github.com/zatekoja/outpatient-scheduling/pkg/config"
)

// Container holds the wired stores, adapters and services shared by the
// API server and the one-shot batch command
type Container struct {
	Config  *config.Config
	Clock   *services.Clock
	Metrics *observability.Metrics

	Postgres *postgres.Client
	// Redis is nil when disabled or unreachable; in-process fallbacks are used
	Redis *redis.Client

	EventBus   providers.EventBus
	RunLock    providers.RunLock
	QueueCache providers.QueueCacheStore
	Triage     providers.TriageProvider
	Sender     providers.MessageSender

	Requests repositories.VisitRequestRepository
	Patients repositories.PatientRepository
	Queue    repositories.QueueRepository
	Runs     repositories.BatchRunRepository

	Builder      *services.QueueBuilder
	Orchestrator *services.BatchOrchestrator
	Runtime      *services.QueueRuntime
}

// Build connects to the stores and wires every component. metrics may be nil.
func Build(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*Container, error) {
	logger := observability.LoggerFromContext(ctx)
	c := &Container{
		Config:  cfg,
		Clock:   services.NewClock(cfg.Batch.Location(), nil),
		Metrics: metrics,
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL client: %w", err)
	}
	c.Postgres = pgClient

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			// Locks, events and the queue cache fall back to in-process versions.
			logger.Warn().Err(err).Msg("Redis unavailable, using in-process fallbacks")
		} else {
			c.Redis = redisClient
		}
	}

	if c.Redis != nil {
		c.EventBus = events.NewRedisEventBus(c.Redis)
		c.RunLock = cache.NewRedisRunLock(c.Redis)
	} else {
		c.EventBus = events.NewMemoryEventBus()
		c.RunLock = cache.NewMemoryRunLock()
	}

	c.QueueCache, err = c.queueCacheStore()
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Sender, err = notifications.NewMessageSender(ctx, cfg.Notifications)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize notification sender: %w", err)
	}

	c.Triage = triage.NewTriageProvider(cfg.Triage)

	c.Requests = database.NewVisitRequestAdapter(pgClient)
	c.Patients = database.NewPatientAdapter(pgClient)
	c.Queue = database.NewQueueAdapter(pgClient)
	c.Runs = database.NewBatchRunAdapter(pgClient.SQLX())

	c.Builder = services.NewQueueBuilder(c.Queue, c.Requests, c.Patients, c.Runs, c.EventBus, c.Clock)
	c.Runtime = services.NewQueueRuntime(c.Queue, c.QueueCache, c.EventBus, metrics, c.Clock)
	c.Orchestrator = services.NewBatchOrchestrator(
		c.Requests,
		c.Runs,
		c.Triage,
		services.NewResultCommitter(c.Requests),
		c.Builder,
		services.NewNotificationDispatcher(c.Patients, c.Sender, metrics),
		c.RunLock,
		c.EventBus,
		metrics,
		c.Clock,
		services.BatchOrchestratorConfig{
			LockTTL:       cfg.Batch.LockTTL,
			TriageTimeout: cfg.Triage.Timeout,
		},
	)

	logger.Info().
		Str("triage_provider", c.Triage.Name()).
		Str("notify_transport", cfg.Notifications.Transport).
		Str("queue_cache", cfg.Queue.CacheBackend).
		Bool("redis", c.Redis != nil).
		Msg("application wired")
	return c, nil
}

func (c *Container) queueCacheStore() (providers.QueueCacheStore, error) {
	cfg := c.Config.Queue
	if cfg.CacheBackend == "redis" {
		if c.Redis != nil {
			return cache.NewRedisQueueCacheStore(cache.NewRedisAdapter(c.Redis), cfg.CacheTTL), nil
		}
		observability.GetLogger().Warn().Msg("QUEUE_CACHE_BACKEND=redis but Redis is unavailable, using the file store")
	}

	store, err := cache.NewFileQueueCacheStore(cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue cache store: %w", err)
	}
	return store, nil
}

// Close releases the event bus and store connections
func (c *Container) Close() {
	logger := observability.GetLogger()
	if c.EventBus != nil {
		if err := c.EventBus.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close event bus")
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close Redis client")
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close PostgreSQL client")
		}
	}
}
