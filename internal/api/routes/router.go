package routes

import (
	"net/http"

	"github.com/zatekoja/outpatient-scheduling/internal/api/handlers"
	"github.com/zatekoja/outpatient-scheduling/internal/api/middleware"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	batchHandler  *handlers.BatchHandler
	queueHandler  *handlers.QueueHandler
	sseHandler    *handlers.SSEHandler
	healthHandler *handlers.HealthHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. sseHandler may be nil to disable streaming.
func NewRouter(
	batchHandler *handlers.BatchHandler,
	queueHandler *handlers.QueueHandler,
	sseHandler *handlers.SSEHandler,
	healthHandler *handlers.HealthHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		batchHandler:   batchHandler,
		queueHandler:   queueHandler,
		sseHandler:     sseHandler,
		healthHandler:  healthHandler,
		allowedOrigins: allowedOrigins,
		metrics:        metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Batch endpoints
	r.mux.HandleFunc("POST /api/batch/run", r.batchHandler.TriggerRun)
	r.mux.HandleFunc("GET /api/batch/runs", r.batchHandler.ListRuns)

	// Queue read endpoints
	r.mux.HandleFunc("GET /api/queue", r.queueHandler.GetQueue)
	r.mux.HandleFunc("GET /api/queue/snapshot", r.queueHandler.GetSnapshot)
	r.mux.HandleFunc("GET /api/queue/stats", r.queueHandler.GetStats)
	r.mux.HandleFunc("GET /api/queue/current", r.queueHandler.GetCurrent)
	r.mux.HandleFunc("GET /api/queue/next", r.queueHandler.GetNext)

	// Operator actions
	r.mux.HandleFunc("POST /api/queue/call-next", r.queueHandler.CallNext)
	r.mux.HandleFunc("POST /api/queue/skip", r.queueHandler.Skip)
	r.mux.HandleFunc("POST /api/queue/unavailable", r.queueHandler.MarkUnavailable)
	r.mux.HandleFunc("POST /api/queue/complete", r.queueHandler.MarkCompleted)
	r.mux.HandleFunc("POST /api/queue/reload", r.queueHandler.Reload)
	r.mux.HandleFunc("POST /api/queue/rebuild", r.queueHandler.Rebuild)
	r.mux.HandleFunc("POST /api/queue/entries/{id}/restore", r.queueHandler.Restore)
	r.mux.HandleFunc("PATCH /api/queue/entries/{id}/status", r.queueHandler.UpdateStatus)

	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/stream/queue", r.sseHandler.StreamQueueUpdates)
	}

	// Last wrapper runs first; CORS stays outermost so preflights never
	// reach the handlers.
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
