package services

import (
	"context"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/repositories"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
)

// NotificationDispatcher tells patients the outcome of triage
type NotificationDispatcher struct {
	patientRepo repositories.PatientRepository
	sender      providers.MessageSender
	metrics     *observability.Metrics
}

// NewNotificationDispatcher creates a new dispatcher. metrics may be nil.
func NewNotificationDispatcher(patientRepo repositories.PatientRepository, sender providers.MessageSender, metrics *observability.Metrics) *NotificationDispatcher {
	return &NotificationDispatcher{
		patientRepo: patientRepo,
		sender:      sender,
		metrics:     metrics,
	}
}

// NotifyAll sends one approval or waitlist message per committed request and
// returns how many sends were attempted. Delivery is best effort: failures
// are logged per recipient and never stop the loop.
func (d *NotificationDispatcher) NotifyAll(ctx context.Context, committed []*entities.VisitRequest) int {
	logger := observability.LoggerFromContext(ctx)

	patients, err := resolvePatients(ctx, d.patientRepo, committed)
	if err != nil {
		// Carry on with whatever patients were already attached.
		logger.Warn().Err(err).Msg("patient lookup for notifications failed")
		patients = attachedPatients(committed)
	}

	attempted := 0
	for _, req := range committed {
		msg, ok := d.buildMessage(ctx, req, patients[req.PatientID])
		if !ok {
			continue
		}

		attempted++
		if err := d.sender.Send(ctx, msg); err != nil {
			logger.Warn().Err(err).
				Str("request_id", req.ID).
				Str("kind", string(msg.Kind)).
				Str("channel", string(msg.Recipient.Channel)).
				Msg("notification failed")
			observability.RecordNotification(ctx, d.metrics, string(msg.Kind), false)
			continue
		}
		observability.RecordNotification(ctx, d.metrics, string(msg.Kind), true)
	}

	logger.Info().Int("committed", len(committed)).Int("attempted", attempted).Msg("notifications dispatched")
	return attempted
}

func (d *NotificationDispatcher) buildMessage(ctx context.Context, req *entities.VisitRequest, patient *entities.Patient) (*entities.OutboundMessage, bool) {
	logger := observability.LoggerFromContext(ctx)

	kind, ok := entities.MessageKindFor(req.Status)
	if !ok {
		return nil, false
	}
	if patient == nil {
		logger.Warn().Str("request_id", req.ID).Str("patient_id", req.PatientID).Msg("no patient record, notification skipped")
		return nil, false
	}
	contact, err := entities.ContactFor(patient)
	if err != nil {
		logger.Warn().Err(err).Str("request_id", req.ID).Msg("no contact address, notification skipped")
		return nil, false
	}

	return &entities.OutboundMessage{
		RequestID: req.ID,
		Recipient: contact,
		Kind:      kind,
		Data: entities.MessageData{
			FirstName:     patient.FirstName,
			PriorityRank:  req.Rank(),
			SeverityScore: req.Severity(),
		},
	}, true
}

func attachedPatients(requests []*entities.VisitRequest) map[string]*entities.Patient {
	patients := make(map[string]*entities.Patient, len(requests))
	for _, req := range requests {
		if req.Patient != nil {
			patients[req.PatientID] = req.Patient
		}
	}
	return patients
}
