package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// QueueOperator is the operator-facing queue state machine
type QueueOperator interface {
	View(ctx context.Context) (*entities.QueueView, error)
	Load(ctx context.Context) (*entities.QueueView, error)
	Snapshot(ctx context.Context) ([]*entities.QueueEntry, error)
	Stats(ctx context.Context) (*entities.QueueStats, error)
	Current(ctx context.Context) (*entities.QueueEntry, error)
	Next(ctx context.Context) (*entities.QueueEntry, error)
	CallNext(ctx context.Context) (*entities.QueueEntry, error)
	Skip(ctx context.Context) (*entities.QueueView, error)
	MarkUnavailable(ctx context.Context) (*entities.QueueEntry, error)
	MarkCompleted(ctx context.Context) (*entities.QueueEntry, error)
	Restore(ctx context.Context, id string) (*entities.QueueEntry, error)
	SetStatus(ctx context.Context, id string, status entities.QueueEntryStatus) (*entities.QueueEntry, error)
}

// QueueRebuilder rebuilds today's queue from the last committed batch
type QueueRebuilder interface {
	RebuildFromLastRun(ctx context.Context) ([]*entities.QueueEntry, error)
}

// QueueHandler handles the operator queue endpoints
type QueueHandler struct {
	queue   QueueOperator
	builder QueueRebuilder
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queue QueueOperator, builder QueueRebuilder) *QueueHandler {
	return &QueueHandler{
		queue:   queue,
		builder: builder,
	}
}

// GetQueue handles GET /api/queue
func (h *QueueHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	view, err := h.queue.View(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// GetSnapshot handles GET /api/queue/snapshot
func (h *QueueHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queue.Snapshot(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetStats handles GET /api/queue/stats
func (h *QueueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// GetCurrent handles GET /api/queue/current
func (h *QueueHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	h.respondWithEntry(w, r, h.queue.Current)
}

// GetNext handles GET /api/queue/next
func (h *QueueHandler) GetNext(w http.ResponseWriter, r *http.Request) {
	h.respondWithEntry(w, r, h.queue.Next)
}

// CallNext handles POST /api/queue/call-next
func (h *QueueHandler) CallNext(w http.ResponseWriter, r *http.Request) {
	h.respondWithEntry(w, r, h.queue.CallNext)
}

// MarkUnavailable handles POST /api/queue/unavailable
func (h *QueueHandler) MarkUnavailable(w http.ResponseWriter, r *http.Request) {
	h.respondWithEntry(w, r, h.queue.MarkUnavailable)
}

// MarkCompleted handles POST /api/queue/complete
func (h *QueueHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	h.respondWithEntry(w, r, h.queue.MarkCompleted)
}

// Skip handles POST /api/queue/skip
func (h *QueueHandler) Skip(w http.ResponseWriter, r *http.Request) {
	view, err := h.queue.Skip(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// Reload handles POST /api/queue/reload
func (h *QueueHandler) Reload(w http.ResponseWriter, r *http.Request) {
	view, err := h.queue.Load(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// Rebuild handles POST /api/queue/rebuild
func (h *QueueHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	entries, err := h.builder.RebuildFromLastRun(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	view, err := h.queue.Load(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"queued": len(entries),
		"queue":  view,
	})
}

// Restore handles POST /api/queue/entries/{id}/restore
func (h *QueueHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "entry ID is required")
		return
	}
	h.respondWithEntry(w, r, func(ctx context.Context) (*entities.QueueEntry, error) {
		return h.queue.Restore(ctx, id)
	})
}

type statusUpdateRequest struct {
	Status entities.QueueEntryStatus `json:"status"`
}

// UpdateStatus handles PATCH /api/queue/entries/{id}/status
func (h *QueueHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "entry ID is required")
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		respondWithError(w, http.StatusBadRequest, "status is required")
		return
	}

	h.respondWithEntry(w, r, func(ctx context.Context) (*entities.QueueEntry, error) {
		return h.queue.SetStatus(ctx, id, req.Status)
	})
}

// respondWithEntry writes {"entry": ...}; a nil entry is a valid answer
// for the read endpoints
func (h *QueueHandler) respondWithEntry(w http.ResponseWriter, r *http.Request, op func(context.Context) (*entities.QueueEntry, error)) {
	entry, err := op(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"entry": entry,
	})
}
