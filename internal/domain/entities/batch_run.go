package entities

import "time"

// BatchTrigger identifies what started a batch run
type BatchTrigger string

const (
	BatchTriggerSchedule BatchTrigger = "schedule"
	BatchTriggerManual   BatchTrigger = "manual"
)

// BatchRunStatus represents the outcome of a batch run
type BatchRunStatus string

const (
	BatchRunStatusRunning             BatchRunStatus = "running"
	BatchRunStatusSucceeded           BatchRunStatus = "succeeded"
	BatchRunStatusCompletedWithErrors BatchRunStatus = "completed_with_errors"
	BatchRunStatusFailed              BatchRunStatus = "failed"
	BatchRunStatusSkipped             BatchRunStatus = "skipped"
)

// BatchStep names a step of the triage pipeline
type BatchStep string

const (
	BatchStepFetch   BatchStep = "fetch_pending"
	BatchStepPayload BatchStep = "build_payload"
	BatchStepTriage  BatchStep = "triage"
	BatchStepCommit  BatchStep = "commit"
	BatchStepQueue   BatchStep = "build_queue"
	BatchStepNotify  BatchStep = "notify"
)

// BatchRun is the persisted record of one pipeline execution
type BatchRun struct {
	ID             string         `json:"id" db:"id"`
	Trigger        BatchTrigger   `json:"trigger" db:"trigger"`
	Status         BatchRunStatus `json:"status" db:"status"`
	StartedAt      time.Time      `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
	PendingCount   int            `json:"pending_count" db:"pending_count"`
	SubmittedCount int            `json:"submitted_count" db:"submitted_count"`
	SkippedCount   int            `json:"skipped_count" db:"skipped_count"`
	CommittedCount int            `json:"committed_count" db:"committed_count"`
	ApprovedCount  int            `json:"approved_count" db:"approved_count"`
	QueuedCount    int            `json:"queued_count" db:"queued_count"`
	NotifiedCount  int            `json:"notified_count" db:"notified_count"`
	CommittedIDs   []string       `json:"committed_ids" db:"-"`
	FailedStep     BatchStep      `json:"failed_step,omitempty" db:"failed_step"`
	ErrorMessage   string         `json:"error_message,omitempty" db:"error_message"`
}

// Finished reports whether the run has reached a final status
func (r *BatchRun) Finished() bool {
	return r.Status != BatchRunStatusRunning
}

// Success reports whether the run committed everything it set out to
func (r *BatchRun) Success() bool {
	return r.Status == BatchRunStatusSucceeded
}
