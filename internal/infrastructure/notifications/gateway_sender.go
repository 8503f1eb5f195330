package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// HTTPGatewaySender posts messages to the hospital messaging gateway, which
// owns templates and the actual email/SMS delivery.
type HTTPGatewaySender struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPGatewaySender creates a gateway sender
func NewHTTPGatewaySender(endpoint string, timeout time.Duration) (*HTTPGatewaySender, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("NOTIFY_GATEWAY_URL must be set for the http transport")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPGatewaySender{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

var _ providers.MessageSender = (*HTTPGatewaySender)(nil)

// GatewayMessage is the request body the gateway accepts
type GatewayMessage struct {
	Channel   entities.NotificationChannel `json:"channel"`
	To        string                       `json:"to"`
	Template  entities.MessageKind         `json:"template"`
	Reference string                       `json:"reference"`
	Data      entities.MessageData         `json:"data"`
}

// GatewayResponse is the gateway's acknowledgement
type GatewayResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

// Send delivers one message; any non-2xx is a notification failure
func (s *HTTPGatewaySender) Send(ctx context.Context, msg *entities.OutboundMessage) error {
	jsonData, err := json.Marshal(GatewayMessage{
		Channel:   msg.Recipient.Channel,
		To:        msg.Recipient.Address,
		Template:  msg.Kind,
		Reference: msg.RequestID,
		Data:      msg.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return apperrors.NewNotificationFailure("messaging gateway unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apperrors.NewNotificationFailure("failed to read gateway response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var gwResp GatewayResponse
		reason := string(body)
		if json.Unmarshal(body, &gwResp) == nil && gwResp.Error != "" {
			reason = gwResp.Error
		}
		return apperrors.NewNotificationFailure(
			fmt.Sprintf("messaging gateway error (status %d): %s", resp.StatusCode, reason), nil)
	}
	return nil
}
