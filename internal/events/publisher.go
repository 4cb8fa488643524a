package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
)

// SQSAPI is the subset of the SQS client used by this package.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Store is where events are durably appended.
type Store interface {
	AppendEvent(ctx context.Context, evt *domain.NotificationEvent) error
}

const publishTimeout = 5 * time.Second

// Publisher sends notification events to an SQS queue as JSON.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

// NewPublisher creates a publisher for queueURL.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// Publish sends one event.
func (p *Publisher) Publish(ctx context.Context, evt *domain.NotificationEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(string(evt.Kind))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish to SQS: %w", err)
	}
	return nil
}

// Recorder appends events to the store, then publishes them when a
// publisher is configured. Publishing is best-effort.
type Recorder struct {
	store     Store
	publisher *Publisher
	log       *logger.Logger
}

// NewRecorder creates a recorder. publisher may be nil.
func NewRecorder(store Store, publisher *Publisher) *Recorder {
	return &Recorder{store: store, publisher: publisher, log: logger.Component("events")}
}

// AppendEvent implements the event recorder contract used by the services.
func (r *Recorder) AppendEvent(ctx context.Context, evt *domain.NotificationEvent) error {
	if err := r.store.AppendEvent(ctx, evt); err != nil {
		return err
	}
	if r.publisher == nil {
		return nil
	}
	if err := r.publisher.Publish(ctx, evt); err != nil {
		r.log.Warn("event fan-out failed", "waitlist_id", evt.WaitlistID, "event_type", evt.Kind, "err", err)
	}
	return nil
}
