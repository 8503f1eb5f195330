package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/zatekoja/outpatient-scheduling/internal/application/services"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
)

const (
	defaultRunHistoryLimit = 20
	maxRunHistoryLimit     = 200
)

// BatchRunner executes one triage batch
type BatchRunner interface {
	Run(ctx context.Context, trigger entities.BatchTrigger) *services.BatchRunReport
}

// BatchHandler handles manual batch triggers and run history
type BatchHandler struct {
	runner BatchRunner
	runs   repositories.BatchRunRepository
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(runner BatchRunner, runs repositories.BatchRunRepository) *BatchHandler {
	return &BatchHandler{
		runner: runner,
		runs:   runs,
	}
}

// TriggerRun handles POST /api/batch/run
func (h *BatchHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	report := h.runner.Run(r.Context(), entities.BatchTriggerManual)

	respondWithJSON(w, statusForRun(report.Run), map[string]interface{}{
		"success": report.Success(),
		"status":  report.Run.Status,
		"message": report.Message,
		"report":  report,
	})
}

func statusForRun(run *entities.BatchRun) int {
	switch run.Status {
	case entities.BatchRunStatusSkipped:
		return http.StatusConflict
	case entities.BatchRunStatusFailed:
		if run.FailedStep == entities.BatchStepTriage {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// ListRuns handles GET /api/batch/runs?limit=N
func (h *BatchHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxRunHistoryLimit)
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*entities.BatchRun{}
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}
