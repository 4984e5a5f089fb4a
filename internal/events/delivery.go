package events

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/consult-booking/pkg/logging"
)

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDelivery forwards outbox entries to an SQS queue. The event type and id
// travel as message attributes so consumers can route without decoding.
type SQSDelivery struct {
	client   sqsSender
	queueURL string
}

func NewSQSDelivery(client *sqs.Client, queueURL string) *SQSDelivery {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	return newSQSDelivery(client, queueURL)
}

func newSQSDelivery(client sqsSender, queueURL string) *SQSDelivery {
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSDelivery{client: client, queueURL: queueURL}
}

func (d *SQSDelivery) Handle(ctx context.Context, entry OutboxEntry) error {
	_, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(entry.Payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"event_id":   {DataType: aws.String("String"), StringValue: aws.String(entry.ID.String())},
			"aggregate":  {DataType: aws.String("String"), StringValue: aws.String(entry.AggregateID)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: send SQS message: %w", err)
	}
	return nil
}

// LogDelivery writes outbox entries to the log. It is the default handler
// when no queue is configured.
type LogDelivery struct {
	logger *logging.Logger
}

func NewLogDelivery(logger *logging.Logger) *LogDelivery {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogDelivery{logger: logger}
}

func (d *LogDelivery) Handle(_ context.Context, entry OutboxEntry) error {
	d.logger.Info("domain event",
		"event_id", entry.ID,
		"type", entry.Type,
		"aggregate_id", entry.AggregateID,
		"payload", string(entry.Payload),
	)
	return nil
}
