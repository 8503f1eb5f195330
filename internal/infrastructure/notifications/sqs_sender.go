package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/zatekoja/outpatient-scheduling/internal/domain/entities"
	"github.com/zatekoja/outpatient-scheduling/internal/domain/providers"
	apperrors "github.com/zatekoja/outpatient-scheduling/pkg/errors"
)

// SQSAPI is the subset of the SQS client the sender uses
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSender enqueues messages for a downstream delivery worker
type SQSSender struct {
	client   SQSAPI
	queueURL string
}

// NewSQSSender wraps an existing SQS client
func NewSQSSender(client SQSAPI, queueURL string) *SQSSender {
	return &SQSSender{client: client, queueURL: queueURL}
}

// NewSQSSenderFromEnv builds the SQS client from the default AWS config chain
func NewSQSSenderFromEnv(ctx context.Context, queueURL string) (*SQSSender, error) {
	if queueURL == "" {
		return nil, fmt.Errorf("NOTIFY_SQS_QUEUE_URL must be set for the sqs transport")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	client := sqs.New(sqs.Options{
		Region:       cfg.Region,
		Credentials:  cfg.Credentials,
		HTTPClient:   cfg.HTTPClient,
		BaseEndpoint: cfg.BaseEndpoint,
	})
	return NewSQSSender(client, queueURL), nil
}

var _ providers.MessageSender = (*SQSSender)(nil)

// Send enqueues msg as JSON with the kind and channel as attributes
func (s *SQSSender) Send(ctx context.Context, msg *entities.OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"kind":    {DataType: aws.String("String"), StringValue: aws.String(string(msg.Kind))},
			"channel": {DataType: aws.String("String"), StringValue: aws.String(string(msg.Recipient.Channel))},
		},
	})
	if err != nil {
		return apperrors.NewNotificationFailure("failed to enqueue message", err)
	}
	return nil
}
