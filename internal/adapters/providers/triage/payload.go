package triage

import (
	"errors"
	"fmt"
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// ErrMalformedAge marks a request whose patient age cannot be derived
var ErrMalformedAge = errors.New("malformed age")

// NewMalformedAgeError reports a request that cannot be projected because
// its patient or birth date is missing
func NewMalformedAgeError(requestID, reason string) *apperrors.AppError {
	return &apperrors.AppError{
		Type:    apperrors.ErrorTypeDataQuality,
		Message: fmt.Sprintf("request %s: %s", requestID, reason),
		Err:     ErrMalformedAge,
	}
}

// ProjectRequest builds the triage item for one request
func ProjectRequest(req *entities.VisitRequest, now time.Time) (entities.TriageBatchItem, error) {
	if req.Patient == nil {
		return entities.TriageBatchItem{}, NewMalformedAgeError(req.ID, "patient record not found")
	}
	age, ok := req.Patient.AgeAt(now)
	if !ok {
		return entities.TriageBatchItem{}, NewMalformedAgeError(req.ID, "patient birth date is missing")
	}

	return entities.TriageBatchItem{
		RequestID:        req.ID,
		Age:              age,
		Gender:           req.Patient.Gender,
		VisitingStatus:   req.VisitingStatus,
		MedicalCondition: req.MedicalCondition,
	}, nil
}

// BuildPayload projects every request it can. Requests that fail projection
// are left out and returned as data-quality warnings; they stay pending and
// are picked up again by the next run.
func BuildPayload(requests []*entities.VisitRequest, now time.Time) ([]entities.TriageBatchItem, []error) {
	items := make([]entities.TriageBatchItem, 0, len(requests))
	var warnings []error

	for _, req := range requests {
		item, err := ProjectRequest(req, now)
		if err != nil {
			warnings = append(warnings, err)
			continue
		}
		items = append(items, item)
	}

	return items, warnings
}
