package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/creator-waitlist/internal/domain"
)

type fakeSQS struct {
	mu      sync.Mutex
	sent    []*sqs.SendMessageInput
	sendErr error
	batch   []types.Message
	recvErr error
	deleted []string
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, in)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("sqs-1")}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	return &sqs.ReceiveMessageOutput{Messages: f.batch}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type memStore struct {
	events []domain.NotificationEvent
	err    error
}

func (m *memStore) AppendEvent(_ context.Context, evt *domain.NotificationEvent) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *evt)
	return nil
}

type sinkFunc func(ctx context.Context, evt domain.NotificationEvent) error

func (f sinkFunc) RecordEvent(ctx context.Context, evt domain.NotificationEvent) error { return f(ctx, evt) }

func TestRecorder_StoresThenPublishes(t *testing.T) {
	store := &memStore{}
	client := &fakeSQS{}
	rec := NewRecorder(store, NewPublisher(client, "https://sqs.local/q"))
	evt := &domain.NotificationEvent{ID: "e1", WaitlistID: "w1", Kind: domain.EventSent, Template: domain.TemplateWelcome}

	require.NoError(t, rec.AppendEvent(context.Background(), evt))
	require.Len(t, store.events, 1)
	require.Len(t, client.sent, 1)

	var body domain.NotificationEvent
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.sent[0].MessageBody)), &body))
	assert.Equal(t, "w1", body.WaitlistID)
	assert.Equal(t, domain.EventSent, body.Kind)
	assert.Equal(t, "sent", aws.ToString(client.sent[0].MessageAttributes["event_type"].StringValue))
}

func TestRecorder_PublishFailureIsNotFatal(t *testing.T) {
	store := &memStore{}
	rec := NewRecorder(store, NewPublisher(&fakeSQS{sendErr: errors.New("throttled")}, "q"))

	require.NoError(t, rec.AppendEvent(context.Background(), &domain.NotificationEvent{ID: "e1", WaitlistID: "w1", Kind: domain.EventOpened}))
	assert.Len(t, store.events, 1)
}

func TestRecorder_StoreFailureSkipsPublish(t *testing.T) {
	client := &fakeSQS{}
	rec := NewRecorder(&memStore{err: errors.New("db down")}, NewPublisher(client, "q"))

	err := rec.AppendEvent(context.Background(), &domain.NotificationEvent{ID: "e1", WaitlistID: "w1", Kind: domain.EventOpened})
	assert.Error(t, err)
	assert.Empty(t, client.sent)
}

func TestRecorder_WithoutPublisher(t *testing.T) {
	store := &memStore{}
	require.NoError(t, NewRecorder(store, nil).AppendEvent(context.Background(), &domain.NotificationEvent{ID: "e1"}))
	assert.Len(t, store.events, 1)
}

const sesOpen = `{
  "eventType": "Open",
  "mail": {
    "messageId": "0100-abc",
    "timestamp": "2026-03-01T12:00:00Z",
    "tags": {"waitlist_id": ["w-123"], "template": ["welcome"]}
  },
  "open": {"ipAddress": "10.0.0.1"}
}`

func TestParseSESEvent(t *testing.T) {
	evt, err := ParseSESEvent(sesOpen)
	require.NoError(t, err)
	assert.Equal(t, "w-123", evt.WaitlistID)
	assert.Equal(t, domain.EventOpened, evt.Kind)
	assert.Equal(t, domain.TemplateWelcome, evt.Template)
	assert.Equal(t, "0100-abc", evt.Data["email_id"])
}

func TestParseSESEvent_SNSEnvelope(t *testing.T) {
	env, err := json.Marshal(map[string]string{"Type": "Notification", "Message": sesOpen})
	require.NoError(t, err)

	evt, err := ParseSESEvent(string(env))
	require.NoError(t, err)
	assert.Equal(t, domain.EventOpened, evt.Kind)
}

func TestParseSESEvent_Variants(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind domain.EventKind
		wantSkip bool
		wantErr  bool
	}{
		{
			name:     "bounce",
			body:     `{"eventType":"Bounce","mail":{"tags":{"waitlist_id":["w1"]}},"bounce":{"bounceType":"Permanent"}}`,
			wantKind: domain.EventBounced,
		},
		{
			name:     "complaint unsubscribes",
			body:     `{"notificationType":"Complaint","mail":{"tags":{"waitlist_id":["w1"]}}}`,
			wantKind: domain.EventUnsubscribed,
		},
		{
			name:     "send is not tracked",
			body:     `{"eventType":"Send","mail":{"tags":{"waitlist_id":["w1"]}}}`,
			wantSkip: true,
		},
		{
			name:     "foreign mail",
			body:     `{"eventType":"Open","mail":{"tags":{}}}`,
			wantSkip: true,
		},
		{
			name:    "garbage",
			body:    `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := ParseSESEvent(tt.body)
			switch {
			case tt.wantSkip:
				assert.ErrorIs(t, err, ErrSkip)
			case tt.wantErr:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrSkip)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantKind, evt.Kind)
			}
		})
	}
}

func TestConsumer_PollOnce(t *testing.T) {
	errGone := errors.New("gone")
	client := &fakeSQS{batch: []types.Message{
		{MessageId: aws.String("m1"), ReceiptHandle: aws.String("r1"), Body: aws.String(sesOpen)},
		{MessageId: aws.String("m2"), ReceiptHandle: aws.String("r2"), Body: aws.String(`{"eventType":"Send","mail":{}}`)},
		{MessageId: aws.String("m3"), ReceiptHandle: aws.String("r3"), Body: aws.String(`{"eventType":"Click","mail":{"tags":{"waitlist_id":["retry"]}}}`)},
		{MessageId: aws.String("m4"), ReceiptHandle: aws.String("r4"), Body: aws.String(`{"eventType":"Click","mail":{"tags":{"waitlist_id":["missing"]}}}`)},
	}}

	var recorded []domain.NotificationEvent
	sink := sinkFunc(func(_ context.Context, evt domain.NotificationEvent) error {
		switch evt.WaitlistID {
		case "retry":
			return errors.New("db timeout")
		case "missing":
			return errGone
		}
		recorded = append(recorded, evt)
		return nil
	})
	consumer := NewConsumer(client, "q", sink, func(err error) bool { return errors.Is(err, errGone) })

	n, err := consumer.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, recorded, 1)
	assert.Equal(t, "w-123", recorded[0].WaitlistID)
	assert.ElementsMatch(t, []string{"r1", "r2", "r4"}, client.deleted)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	client := &fakeSQS{recvErr: errors.New("network")}
	consumer := NewConsumer(client, "q", sinkFunc(func(context.Context, domain.NotificationEvent) error { return nil }), nil)
	consumer.retryDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consumer.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
}
