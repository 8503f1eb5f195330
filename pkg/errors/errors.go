package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a validation error
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeDataQuality marks a single bad input record; the item is skipped
	ErrorTypeDataQuality ErrorType = "DATA_QUALITY"

	// ErrorTypeTriageUnavailable aborts the current batch run
	ErrorTypeTriageUnavailable ErrorType = "TRIAGE_UNAVAILABLE"

	// ErrorTypeContractViolation indicates a triage response of the wrong shape
	ErrorTypeContractViolation ErrorType = "CONTRACT_VIOLATION"

	// ErrorTypeCommitFailure aborts the current batch run after a rollback
	ErrorTypeCommitFailure ErrorType = "COMMIT_FAILURE"

	// ErrorTypeQueueBuildFailure is surfaced but never undoes a commit
	ErrorTypeQueueBuildFailure ErrorType = "QUEUE_BUILD_FAILURE"

	// ErrorTypeNotificationFailure is logged per recipient
	ErrorTypeNotificationFailure ErrorType = "NOTIFICATION_FAILURE"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// IsType reports whether any AppError in err's chain has type t
func IsType(err error, t ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == t {
			return true
		}
		err = appErr.Err
	}
	return false
}

// TypeOf returns the type of the outermost AppError, or ErrorTypeInternal
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// MessageOf returns the human-readable message of the outermost AppError
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewDataQualityWarning creates a skip-and-continue error for one record
func NewDataQualityWarning(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeDataQuality,
		Message: message,
	}
}

// NewTriageUnavailableError wraps any triage failure with a readable cause
func NewTriageUnavailableError(cause string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTriageUnavailable,
		Message: cause,
		Err:     err,
	}
}

// NewContractViolationError creates a triage response shape error
func NewContractViolationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeContractViolation,
		Message: message,
	}
}

// NewCommitFailure creates a rolled-back commit error
func NewCommitFailure(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeCommitFailure,
		Message: message,
		Err:     err,
	}
}

// NewQueueBuildFailure creates a queue rebuild error
func NewQueueBuildFailure(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeQueueBuildFailure,
		Message: message,
		Err:     err,
	}
}

// NewNotificationFailure creates a per-recipient delivery error
func NewNotificationFailure(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeNotificationFailure,
		Message: message,
		Err:     err,
	}
}
