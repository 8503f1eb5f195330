package entities

import "fmt"

// NotificationChannel represents the delivery channel a patient prefers
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
)

// Valid reports whether c is a supported channel
func (c NotificationChannel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// MessageKind represents the purpose of an outbound message
type MessageKind string

const (
	MessageKindApproval MessageKind = "approval"
	MessageKindWaitlist MessageKind = "waitlist"
)

// MessageKindFor maps a committed request status to the message it triggers.
// ok is false for statuses that do not notify.
func MessageKindFor(status VisitRequestStatus) (MessageKind, bool) {
	switch status {
	case VisitRequestStatusApproved:
		return MessageKindApproval, true
	case VisitRequestStatusRebook:
		return MessageKindWaitlist, true
	}
	return "", false
}

// Contact is a resolved recipient address on a single channel
type Contact struct {
	Channel NotificationChannel `json:"channel"`
	Address string              `json:"address"`
}

// ContactFor picks the patient's address on their preferred channel,
// falling back to the other channel when the preferred one is empty.
func ContactFor(p *Patient) (Contact, error) {
	preferred := p.PreferredChannel
	if !preferred.Valid() {
		preferred = ChannelEmail
	}

	candidates := []NotificationChannel{preferred, ChannelEmail, ChannelSMS}
	for _, ch := range candidates {
		switch ch {
		case ChannelEmail:
			if p.Email != "" {
				return Contact{Channel: ChannelEmail, Address: p.Email}, nil
			}
		case ChannelSMS:
			if p.Phone != "" {
				return Contact{Channel: ChannelSMS, Address: p.Phone}, nil
			}
		}
	}
	return Contact{}, fmt.Errorf("patient %s has no email or phone on record", p.ID)
}

// MessageData is the template data carried by approval and waitlist messages
type MessageData struct {
	FirstName     string `json:"firstName"`
	PriorityRank  int    `json:"priorityRank"`
	SeverityScore int    `json:"severityScore"`
}

// OutboundMessage is one message handed to the messaging collaborator
type OutboundMessage struct {
	RequestID string      `json:"request_id"`
	Recipient Contact     `json:"recipient"`
	Kind      MessageKind `json:"kind"`
	Data      MessageData `json:"data"`
}
