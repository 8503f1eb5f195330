package entities

import (
	"time"
)

// VisitRequestStatus represents the lifecycle status of a visit request
type VisitRequestStatus string

const (
	VisitRequestStatusPending   VisitRequestStatus = "pending"
	VisitRequestStatusApproved  VisitRequestStatus = "approved"
	VisitRequestStatusRebook    VisitRequestStatus = "rebook"
	VisitRequestStatusCancelled VisitRequestStatus = "cancelled"
)

// VisitingStatus is the clinical category a patient is visiting under
type VisitingStatus string

const (
	VisitingStatusDischarged2Weeks VisitingStatus = "discharged_2_weeks"
	VisitingStatusDischarged1Week  VisitingStatus = "discharged_1_week"
	VisitingStatusExternalReferral VisitingStatus = "external_referral"
	VisitingStatusInternalReferral VisitingStatus = "internal_referral"
	VisitingStatusReview           VisitingStatus = "review"
)

// IsDischarge reports whether the category is one of the post-discharge follow-ups
func (v VisitingStatus) IsDischarge() bool {
	return v == VisitingStatusDischarged2Weeks || v == VisitingStatusDischarged1Week
}

// Valid reports whether v is a known category
func (v VisitingStatus) Valid() bool {
	switch v {
	case VisitingStatusDischarged2Weeks, VisitingStatusDischarged1Week,
		VisitingStatusExternalReferral, VisitingStatusInternalReferral,
		VisitingStatusReview:
		return true
	}
	return false
}

// VisitRequest is a patient's request for an outpatient visit
type VisitRequest struct {
	ID               string             `json:"id" db:"id"`
	PatientID        string             `json:"patient_id" db:"patient_id"`
	MedicalCondition string             `json:"medical_condition" db:"medical_condition"`
	VisitingStatus   VisitingStatus     `json:"visiting_status" db:"visiting_status"`
	DischargeType    *string            `json:"discharge_type,omitempty" db:"discharge_type"`
	Status           VisitRequestStatus `json:"status" db:"status"`
	PriorityRank     *int               `json:"priority_rank,omitempty" db:"priority_rank"`
	SeverityScore    *int               `json:"severity_score,omitempty" db:"severity_score"`
	CreatedAt        time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" db:"updated_at"`

	// Patient is populated by reads that join the owning patient record.
	Patient *Patient `json:"patient,omitempty" db:"-"`
}

// Rank returns the priority rank, or 0 when the request has not been ranked
func (r *VisitRequest) Rank() int {
	if r.PriorityRank == nil {
		return 0
	}
	return *r.PriorityRank
}

// Severity returns the severity score, or 0 when the request has not been ranked
func (r *VisitRequest) Severity() int {
	if r.SeverityScore == nil {
		return 0
	}
	return *r.SeverityScore
}
