package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
)

// EventSink ingests a parsed engagement event.
type EventSink interface {
	RecordEvent(ctx context.Context, evt domain.NotificationEvent) error
}

// ErrSkip marks a message that carries nothing to record. Skipped messages
// are deleted from the queue.
var ErrSkip = errors.New("nothing to record")

// sesNotification is the subset of an SES event publishing record we read.
type sesNotification struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageID string              `json:"messageId"`
		Timestamp time.Time           `json:"timestamp"`
		Tags      map[string][]string `json:"tags"`
	} `json:"mail"`
	Bounce *struct {
		BounceType string `json:"bounceType"`
	} `json:"bounce,omitempty"`
	Click *struct {
		Link string `json:"link"`
	} `json:"click,omitempty"`
}

// snsEnvelope wraps SES events delivered through an SNS subscription
// without raw message delivery.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

var sesEventKinds = map[string]domain.EventKind{
	"delivery":  domain.EventDelivered,
	"open":      domain.EventOpened,
	"click":     domain.EventClicked,
	"bounce":    domain.EventBounced,
	"complaint": domain.EventUnsubscribed,
}

// ParseSESEvent converts an SQS message body into a NotificationEvent. It
// returns ErrSkip for event types we do not track or for mail that was not
// sent by this service.
func ParseSESEvent(body string) (domain.NotificationEvent, error) {
	var env snsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err == nil && env.Type == "Notification" && env.Message != "" {
		body = env.Message
	}

	var n sesNotification
	if err := json.Unmarshal([]byte(body), &n); err != nil {
		return domain.NotificationEvent{}, fmt.Errorf("decode SES event: %w", err)
	}

	eventType := n.EventType
	if eventType == "" {
		eventType = n.NotificationType
	}
	kind, ok := sesEventKinds[strings.ToLower(eventType)]
	if !ok {
		return domain.NotificationEvent{}, fmt.Errorf("%w: event type %q", ErrSkip, eventType)
	}

	waitlistID := firstTag(n.Mail.Tags, "waitlist_id")
	if waitlistID == "" {
		return domain.NotificationEvent{}, fmt.Errorf("%w: no waitlist_id tag", ErrSkip)
	}

	data := map[string]any{"email_id": n.Mail.MessageID, "source": "ses"}
	if n.Bounce != nil {
		data["bounce_type"] = n.Bounce.BounceType
	}
	if n.Click != nil {
		data["link"] = n.Click.Link
	}

	return domain.NotificationEvent{
		WaitlistID: waitlistID,
		Kind:       kind,
		Template:   domain.TemplateName(firstTag(n.Mail.Tags, "template")),
		Data:       data,
	}, nil
}

func firstTag(tags map[string][]string, name string) string {
	if vals := tags[name]; len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Consumer long-polls an SQS queue of SES engagement events.
type Consumer struct {
	client   SQSAPI
	queueURL string
	sink     EventSink
	log      *logger.Logger

	// permanent reports sink errors that redelivery cannot fix; those
	// messages are deleted.
	permanent func(error) bool

	// retryDelay is the pause after a failed receive.
	retryDelay time.Duration
}

// NewConsumer creates a consumer that feeds sink. permanent may be nil, in
// which case every sink error leaves the message for redelivery.
func NewConsumer(client SQSAPI, queueURL string, sink EventSink, permanent func(error) bool) *Consumer {
	if permanent == nil {
		permanent = func(error) bool { return false }
	}
	return &Consumer{
		client:     client,
		queueURL:   queueURL,
		sink:       sink,
		log:        logger.Component("ses-events"),
		permanent:  permanent,
		retryDelay: 5 * time.Second,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Info("SES event consumer started", "queue", c.queueURL)
	for ctx.Err() == nil {
		if _, err := c.PollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			c.log.Warn("SQS receive failed", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(c.retryDelay):
			}
		}
	}
	c.log.Info("SES event consumer stopped")
}

// PollOnce receives one batch and processes it. Messages that fail with a
// transient error are left on the queue for redelivery.
func (c *Consumer) PollOnce(ctx context.Context) (processed int, err error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return 0, err
	}

	for _, msg := range out.Messages {
		evt, err := ParseSESEvent(aws.ToString(msg.Body))
		switch {
		case errors.Is(err, ErrSkip):
			c.log.Debug("SES event skipped", "reason", err)
		case err != nil:
			c.log.Warn("SES event undecodable", "message_id", aws.ToString(msg.MessageId), "err", err)
		default:
			if err := c.sink.RecordEvent(ctx, evt); err != nil {
				if !c.permanent(err) {
					c.log.Warn("SES event not recorded", "waitlist_id", evt.WaitlistID, "event_type", evt.Kind, "err", err)
					continue
				}
				c.log.Info("SES event dropped", "waitlist_id", evt.WaitlistID, "event_type", evt.Kind, "err", err)
			} else {
				processed++
			}
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
	}
	return processed, nil
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		c.log.Warn("SQS delete failed", "err", err)
	}
}
