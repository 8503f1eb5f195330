package providers

import (
	"context"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
)

// MessageSender is the outbound messaging collaborator (email/SMS transport)
type MessageSender interface {
	Send(ctx context.Context, msg *entities.OutboundMessage) error
}
