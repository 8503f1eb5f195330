package entities

// TriageBatchItem is the projection of a visit request sent to the triage service
type TriageBatchItem struct {
	RequestID        string         `json:"request_id"`
	Age              int            `json:"age"`
	Gender           string         `json:"gender"`
	VisitingStatus   VisitingStatus `json:"visiting_status"`
	MedicalCondition string         `json:"medical_condition"`
}

// TriageDecision is the triage outcome for one request
type TriageDecision struct {
	RequestID     string             `json:"request_id"`
	PriorityRank  int                `json:"priority_rank"`
	SeverityScore int                `json:"severity_score"`
	Status        VisitRequestStatus `json:"status"`
}

// Severity bounds accepted from the triage service
const (
	MinSeverityScore = 1
	MaxSeverityScore = 10
)
