package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// statusForError maps an error's type to the HTTP status returned for it
func statusForError(err error) int {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeDataQuality:
		return http.StatusBadRequest
	case apperrors.ErrorTypeConflict:
		return http.StatusConflict
	case apperrors.ErrorTypeExternal, apperrors.ErrorTypeTriageUnavailable,
		apperrors.ErrorTypeContractViolation, apperrors.ErrorTypeNotificationFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError writes err with its mapped status. Errors that are not
// AppErrors never leak their text.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	message := apperrors.MessageOf(err)
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	respondWithJSON(w, status, map[string]string{
		"error": message,
		"type":  string(apperrors.TypeOf(err)),
	})
}
