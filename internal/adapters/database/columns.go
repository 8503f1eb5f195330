package database

import (
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

const (
	tableVisitRequests = "visit_requests"
	tablePatients      = "patients"
	tableQueueEntries  = "queue_entries"
	tableBatchRuns     = "batch_runs"
)

var visitRequestColumns = []interface{}{
	goqu.I("vr.id"), goqu.I("vr.patient_id"), goqu.I("vr.medical_condition"),
	goqu.I("vr.visiting_status"), goqu.I("vr.discharge_type"), goqu.I("vr.status"),
	goqu.I("vr.priority_rank"), goqu.I("vr.severity_score"),
	goqu.I("vr.created_at"), goqu.I("vr.updated_at"),
}

var patientColumns = []interface{}{
	goqu.I("p.id"), goqu.I("p.first_name"), goqu.I("p.last_name"), goqu.I("p.gender"),
	goqu.I("p.birth_date"), goqu.I("p.email"), goqu.I("p.phone"), goqu.I("p.preferred_channel"),
}

var queueEntryColumns = []interface{}{
	"id", "request_id", "patient_id", "patient_name", "queue_date", "queue_position",
	"priority_rank", "severity_score", "status", "completed_time", "created_at", "updated_at",
}

// dayKey formats a queue day as a DATE literal. Passing a time.Time would be
// converted to UTC by goqu and could land on the previous calendar day.
func dayKey(day time.Time) string {
	return entities.DayOf(day).Format("2006-01-02")
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}
