package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/outpatient-scheduling/internal/api/handlers"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

func entry(id string, status entities.QueueEntryStatus) *entities.QueueEntry {
	return &entities.QueueEntry{ID: id, Status: status}
}

func decodeEntry(t *testing.T, rec *httptest.ResponseRecorder) *entities.QueueEntry {
	t.Helper()
	var body struct {
		Entry *entities.QueueEntry `json:"entry"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body.Entry
}

func TestQueueHandler_GetQueue(t *testing.T) {
	queue := new(MockQueueOperator)
	queue.On("View", mock.Anything).Return(&entities.QueueView{
		Active:      []*entities.QueueEntry{entry("Q2", entities.QueueEntryStatusApproved)},
		Completed:   []*entities.QueueEntry{entry("Q1", entities.QueueEntryStatusCompleted)},
		Unavailable: []*entities.QueueEntry{},
	}, nil)
	handler := handlers.NewQueueHandler(queue, new(MockQueueRebuilder))

	rec := httptest.NewRecorder()
	handler.GetQueue(rec, httptest.NewRequest(http.MethodGet, "/api/queue", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var view entities.QueueView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.Equal(t, "Q2", view.Active[0].ID)
	assert.Equal(t, "Q1", view.Completed[0].ID)
}

func TestQueueHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: apperrors.NewNotFoundError("the queue is empty"), wantStatus: http.StatusNotFound},
		{name: "conflict", err: apperrors.NewConflictError("queue entry Q1 is already in progress"), wantStatus: http.StatusConflict},
		{name: "validation", err: apperrors.NewValidationError("bad"), wantStatus: http.StatusBadRequest},
		{name: "external", err: apperrors.NewExternalError("store unreachable", errors.New("dial tcp")), wantStatus: http.StatusBadGateway},
		{name: "internal", err: apperrors.NewInternalError("failed to load today's queue", errors.New("boom")), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := new(MockQueueOperator)
			queue.On("CallNext", mock.Anything).Return(nil, tt.err)
			handler := handlers.NewQueueHandler(queue, new(MockQueueRebuilder))

			rec := httptest.NewRecorder()
			handler.CallNext(rec, httptest.NewRequest(http.MethodPost, "/api/queue/call-next", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, apperrors.MessageOf(tt.err), body["error"])
		})
	}
}

func TestQueueHandler_OperatorActions(t *testing.T) {
	queue := new(MockQueueOperator)
	queue.On("CallNext", mock.Anything).Return(entry("Q1", entities.QueueEntryStatusInProgress), nil)
	queue.On("MarkCompleted", mock.Anything).Return(entry("Q1", entities.QueueEntryStatusCompleted), nil)
	queue.On("MarkUnavailable", mock.Anything).Return(entry("Q2", entities.QueueEntryStatusUnavailable), nil)
	queue.On("Restore", mock.Anything, "Q2").Return(entry("Q2", entities.QueueEntryStatusApproved), nil)
	handler := handlers.NewQueueHandler(queue, new(MockQueueRebuilder))

	rec := httptest.NewRecorder()
	handler.CallNext(rec, httptest.NewRequest(http.MethodPost, "/api/queue/call-next", nil))
	assert.Equal(t, entities.QueueEntryStatusInProgress, decodeEntry(t, rec).Status)

	rec = httptest.NewRecorder()
	handler.MarkCompleted(rec, httptest.NewRequest(http.MethodPost, "/api/queue/complete", nil))
	assert.Equal(t, entities.QueueEntryStatusCompleted, decodeEntry(t, rec).Status)

	rec = httptest.NewRecorder()
	handler.MarkUnavailable(rec, httptest.NewRequest(http.MethodPost, "/api/queue/unavailable", nil))
	assert.Equal(t, "Q2", decodeEntry(t, rec).ID)

	req := httptest.NewRequest(http.MethodPost, "/api/queue/entries/Q2/restore", nil)
	req.SetPathValue("id", "Q2")
	rec = httptest.NewRecorder()
	handler.Restore(rec, req)
	assert.Equal(t, entities.QueueEntryStatusApproved, decodeEntry(t, rec).Status)

	queue.AssertExpectations(t)
}

func TestQueueHandler_CurrentWhenNobodyCalled(t *testing.T) {
	queue := new(MockQueueOperator)
	queue.On("Current", mock.Anything).Return(nil, nil)
	handler := handlers.NewQueueHandler(queue, new(MockQueueRebuilder))

	rec := httptest.NewRecorder()
	handler.GetCurrent(rec, httptest.NewRequest(http.MethodGet, "/api/queue/current", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entry": null}`, rec.Body.String())
}

func TestQueueHandler_UpdateStatus(t *testing.T) {
	t.Run("applies the status", func(t *testing.T) {
		queue := new(MockQueueOperator)
		queue.On("SetStatus", mock.Anything, "Q3", entities.QueueEntryStatusUnavailable).
			Return(entry("Q3", entities.QueueEntryStatusUnavailable), nil)
		handler := handlers.NewQueueHandler(queue, new(MockQueueRebuilder))

		req := httptest.NewRequest(http.MethodPatch, "/api/queue/entries/Q3/status", strings.NewReader(`{"status":"unavailable"}`))
		req.SetPathValue("id", "Q3")
		rec := httptest.NewRecorder()
		handler.UpdateStatus(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		queue.AssertExpectations(t)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		handler := handlers.NewQueueHandler(new(MockQueueOperator), new(MockQueueRebuilder))

		req := httptest.NewRequest(http.MethodPatch, "/api/queue/entries/Q3/status", strings.NewReader(`{"status":`))
		req.SetPathValue("id", "Q3")
		rec := httptest.NewRecorder()
		handler.UpdateStatus(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("requires a status", func(t *testing.T) {
		handler := handlers.NewQueueHandler(new(MockQueueOperator), new(MockQueueRebuilder))

		req := httptest.NewRequest(http.MethodPatch, "/api/queue/entries/Q3/status", strings.NewReader(`{}`))
		req.SetPathValue("id", "Q3")
		rec := httptest.NewRecorder()
		handler.UpdateStatus(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestQueueHandler_Rebuild(t *testing.T) {
	t.Run("rebuilds and reloads", func(t *testing.T) {
		queue := new(MockQueueOperator)
		builder := new(MockQueueRebuilder)
		builder.On("RebuildFromLastRun", mock.Anything).Return([]*entities.QueueEntry{entry("Q1", entities.QueueEntryStatusApproved)}, nil)
		queue.On("Load", mock.Anything).Return(&entities.QueueView{Active: []*entities.QueueEntry{entry("Q1", entities.QueueEntryStatusApproved)}}, nil)
		handler := handlers.NewQueueHandler(queue, builder)

		rec := httptest.NewRecorder()
		handler.Rebuild(rec, httptest.NewRequest(http.MethodPost, "/api/queue/rebuild", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"queued":1`)
		queue.AssertExpectations(t)
	})

	t.Run("no committed run yet", func(t *testing.T) {
		queue := new(MockQueueOperator)
		builder := new(MockQueueRebuilder)
		builder.On("RebuildFromLastRun", mock.Anything).Return(nil, apperrors.NewNotFoundError("no batch run has committed decisions yet"))
		handler := handlers.NewQueueHandler(queue, builder)

		rec := httptest.NewRecorder()
		handler.Rebuild(rec, httptest.NewRequest(http.MethodPost, "/api/queue/rebuild", nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		queue.AssertNotCalled(t, "Load", mock.Anything)
	})
}
