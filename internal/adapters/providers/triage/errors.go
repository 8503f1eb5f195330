package triage

import (
	"errors"
	"fmt"

	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// FailureKind classifies why a triage call did not produce decisions
type FailureKind string

const (
	FailureNoResponse        FailureKind = "no_response"
	FailureHTTPStatus        FailureKind = "http_status"
	FailureMalformedResponse FailureKind = "malformed_response"
	FailureCircuitOpen       FailureKind = "circuit_open"
)

// Failure carries the classification underneath a TRIAGE_UNAVAILABLE error
type Failure struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (f *Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", f.Kind, f.StatusCode, f.Err)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// unavailable wraps a classified failure into the single error the
// orchestrator handles
func unavailable(kind FailureKind, statusCode int, cause string, err error) error {
	return apperrors.NewTriageUnavailableError(cause, &Failure{
		Kind:       kind,
		StatusCode: statusCode,
		Err:        err,
	})
}

// Classify returns the failure kind of a triage error, or "" if err did not
// come from a triage call
func Classify(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
