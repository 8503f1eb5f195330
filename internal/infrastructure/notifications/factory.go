package notifications

import (
	"context"
	"fmt"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	"github.com/zatekoja/outpatient-scheduling/pkg/config"
)

// NewMessageSender returns the sender selected by NOTIFY_TRANSPORT
func NewMessageSender(ctx context.Context, cfg config.NotificationConfig) (providers.MessageSender, error) {
	switch cfg.Transport {
	case "http":
		return NewHTTPGatewaySender(cfg.GatewayURL, cfg.Timeout)
	case "sqs":
		return NewSQSSenderFromEnv(ctx, cfg.SQSQueueURL)
	case "log", "":
		return LogSender{}, nil
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Transport)
	}
}
