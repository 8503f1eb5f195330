package notifications

import (
	"context"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/internal/infrastructure/observability"
)

// LogSender only logs messages. Development transport.
type LogSender struct{}

var _ providers.MessageSender = LogSender{}

// Send logs msg without the recipient address
func (LogSender) Send(ctx context.Context, msg *entities.OutboundMessage) error {
	observability.LoggerFromContext(ctx).Info().
		Str("request_id", msg.RequestID).
		Str("channel", string(msg.Recipient.Channel)).
		Str("kind", string(msg.Kind)).
		Int("priority_rank", msg.Data.PriorityRank).
		Int("severity_score", msg.Data.SeverityScore).
		Msg("notification (log transport)")
	return nil
}
