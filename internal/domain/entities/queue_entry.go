package entities

import (
	"fmt"
	"time"
)

// QueueEntryStatus represents where a patient is in the day's service line
type QueueEntryStatus string

const (
	QueueEntryStatusApproved    QueueEntryStatus = "approved"
	QueueEntryStatusInProgress  QueueEntryStatus = "in_progress"
	QueueEntryStatusCompleted   QueueEntryStatus = "completed"
	QueueEntryStatusUnavailable QueueEntryStatus = "unavailable"
)

// approved ↔ in_progress → completed; unavailable is a side branch that
// returns to approved when the operator restores the patient.
var validQueueTransitions = map[QueueEntryStatus]map[QueueEntryStatus]bool{
	QueueEntryStatusApproved: {
		QueueEntryStatusInProgress:  true,
		QueueEntryStatusUnavailable: true,
	},
	QueueEntryStatusInProgress: {
		QueueEntryStatusCompleted:   true,
		QueueEntryStatusUnavailable: true,
		QueueEntryStatusApproved:    true, // skipped after being called
	},
	QueueEntryStatusUnavailable: {
		QueueEntryStatusApproved: true,
	},
}

// Valid reports whether s is a known queue status
func (s QueueEntryStatus) Valid() bool {
	switch s {
	case QueueEntryStatusApproved, QueueEntryStatusInProgress,
		QueueEntryStatusCompleted, QueueEntryStatusUnavailable:
		return true
	}
	return false
}

// ValidateQueueTransition returns an error if from → to is not allowed
func ValidateQueueTransition(from, to QueueEntryStatus) error {
	if from == QueueEntryStatusCompleted {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validQueueTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid queue transition: %q → %q", from, to)
	}
	return nil
}

// QueueEntry is one patient's place in a day's service queue
type QueueEntry struct {
	ID            string           `json:"id" db:"id" yaml:"id"`
	RequestID     string           `json:"request_id" db:"request_id" yaml:"request_id"`
	PatientID     string           `json:"patient_id" db:"patient_id" yaml:"patient_id"`
	PatientName   string           `json:"patient_name" db:"patient_name" yaml:"patient_name"`
	QueueDate     time.Time        `json:"queue_date" db:"queue_date" yaml:"queue_date"`
	QueuePosition int              `json:"queue_position" db:"queue_position" yaml:"queue_position"`
	PriorityRank  int              `json:"priority_rank" db:"priority_rank" yaml:"priority_rank"`
	SeverityScore int              `json:"severity_score" db:"severity_score" yaml:"severity_score"`
	Status        QueueEntryStatus `json:"status" db:"status" yaml:"status"`
	CompletedTime *time.Time       `json:"completed_time,omitempty" db:"completed_time" yaml:"completed_time,omitempty"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at" yaml:"updated_at"`
}

// IsCompleted reports whether the store has recorded the entry as served
func (e *QueueEntry) IsCompleted() bool {
	return e.Status == QueueEntryStatusCompleted || (e.CompletedTime != nil && !e.CompletedTime.IsZero())
}

// Clone returns a copy that shares no pointers with e
func (e *QueueEntry) Clone() *QueueEntry {
	c := *e
	if e.CompletedTime != nil {
		t := *e.CompletedTime
		c.CompletedTime = &t
	}
	return &c
}

// QueueStats aggregates a day's queue by status
type QueueStats struct {
	QueueDate   time.Time `json:"queue_date"`
	Total       int       `json:"total"`
	Approved    int       `json:"approved"`
	InProgress  int       `json:"in_progress"`
	Completed   int       `json:"completed"`
	Unavailable int       `json:"unavailable"`
}

// Add counts one entry with the given status
func (s *QueueStats) Add(status QueueEntryStatus) {
	s.Total++
	switch status {
	case QueueEntryStatusApproved:
		s.Approved++
	case QueueEntryStatusInProgress:
		s.InProgress++
	case QueueEntryStatusCompleted:
		s.Completed++
	case QueueEntryStatusUnavailable:
		s.Unavailable++
	}
}

// DayOf truncates t to midnight in its own location
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
