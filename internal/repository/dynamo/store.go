// Package dynamo implements the signup repository on a single DynamoDB
// table. Email uniqueness is enforced with a guard item written in the same
// transaction as the signup.
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/service/signup"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

const (
	entitySignup = "signup"
	entityEmail  = "email"
	entityEvent  = "event"

	profileSK = "PROFILE"
	lockSK    = "LOCK"
)

func signupPK(id string) string   { return "SIGNUP#" + id }
func emailPK(email string) string { return "EMAIL#" + email }

func eventSK(evt *domain.NotificationEvent) string {
	return fmt.Sprintf("EVENT#%020d#%s", evt.CreatedAt.UTC().UnixMilli(), evt.ID)
}

// signupItem is the persisted form of a SignupRecord. Timestamps are unix
// milliseconds so they can be compared in filter expressions.
type signupItem struct {
	PK     string `dynamodbav:"PK"`
	SK     string `dynamodbav:"SK"`
	Entity string `dynamodbav:"entity"`

	ID              string `dynamodbav:"id"`
	Email           string `dynamodbav:"email"`
	Name            string `dynamodbav:"name,omitempty"`
	ChannelName     string `dynamodbav:"youtube_channel_name,omitempty"`
	ChannelURL      string `dynamodbav:"youtube_channel_url,omitempty"`
	SubscriberCount *int   `dynamodbav:"subscriber_count,omitempty"`
	SubscriberRange string `dynamodbav:"subscriber_range,omitempty"`
	ContentNiche    string `dynamodbav:"content_niche,omitempty"`
	SignupSource    string `dynamodbav:"signup_source"`
	UTMSource       string `dynamodbav:"utm_source,omitempty"`
	UTMMedium       string `dynamodbav:"utm_medium,omitempty"`
	UTMCampaign     string `dynamodbav:"utm_campaign,omitempty"`
	ReferralCode    string `dynamodbav:"referral_code,omitempty"`
	IPAddress       string `dynamodbav:"ip_address,omitempty"`
	UserAgent       string `dynamodbav:"user_agent,omitempty"`

	Status             string `dynamodbav:"status"`
	WelcomeEmailSent   bool   `dynamodbav:"welcome_email_sent"`
	WelcomeEmailSentAt int64  `dynamodbav:"welcome_email_sent_at,omitempty"`
	EmailsSent         int    `dynamodbav:"emails_sent"`
	EmailsOpened       int    `dynamodbav:"emails_opened"`
	EmailsClicked      int    `dynamodbav:"emails_clicked"`
	LastEngagedAt      int64  `dynamodbav:"last_engaged_at,omitempty"`
	UnsubscribedAt     int64  `dynamodbav:"unsubscribed_at,omitempty"`
	CreatedAt          int64  `dynamodbav:"created_at"`
	UpdatedAt          int64  `dynamodbav:"updated_at"`
}

type emailItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	Entity     string `dynamodbav:"entity"`
	WaitlistID string `dynamodbav:"waitlist_id"`
}

type eventItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	Entity     string `dynamodbav:"entity"`
	ID         string `dynamodbav:"id"`
	WaitlistID string `dynamodbav:"waitlist_id"`
	Kind       string `dynamodbav:"event_type"`
	Template   string `dynamodbav:"template,omitempty"`
	Data       string `dynamodbav:"event_data"`
	CreatedAt  int64  `dynamodbav:"created_at"`
}

// Store persists waitlist signups in DynamoDB.
type Store struct {
	client    API
	tableName string
}

// New creates a store from the default AWS credential chain.
func New(ctx context.Context, tableName, region, profile string) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewWithClient(dynamodb.NewFromConfig(cfg), tableName), nil
}

// NewWithClient creates a store around an existing client.
func NewWithClient(client API, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Ping verifies the table is reachable.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	return err
}

func (s *Store) Create(ctx context.Context, rec *domain.SignupRecord) error {
	item, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("marshaling signup: %w", err)
	}
	guard, err := attributevalue.MarshalMap(emailItem{
		PK: emailPK(rec.Email), SK: lockSK, Entity: entityEmail, WaitlistID: rec.ID,
	})
	if err != nil {
		return fmt.Errorf("marshaling email guard: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                guard,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if conditionFailed(err) {
		return signup.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("putting signup to DynamoDB: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.SignupRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            key(signupPK(id), profileSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting signup from DynamoDB: %w", err)
	}
	if out.Item == nil {
		return nil, signup.ErrNotFound
	}
	var item signupItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling signup: %w", err)
	}
	return item.toRecord(), nil
}

func (s *Store) MarkWelcomeSent(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, id,
		"SET welcome_email_sent = :t, welcome_email_sent_at = :at, updated_at = :at ADD emails_sent :one",
		"attribute_exists(PK)",
		map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberBOOL{Value: true},
			":at":  millis(at),
			":one": &types.AttributeValueMemberN{Value: "1"},
		}, nil)
}

func (s *Store) MarkUnsubscribed(ctx context.Context, id string, at time.Time) (bool, error) {
	err := s.update(ctx, id,
		"SET #status = :u, unsubscribed_at = :at, updated_at = :at",
		"attribute_exists(PK) AND #status <> :u",
		map[string]types.AttributeValue{
			":u":  &types.AttributeValueMemberS{Value: string(domain.StatusUnsubscribed)},
			":at": millis(at),
		},
		map[string]string{"#status": "status"})
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, signup.ErrNotFound) {
		return false, err
	}
	// The condition also fails for records that are already unsubscribed.
	if _, getErr := s.Get(ctx, id); getErr != nil {
		return false, getErr
	}
	return false, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.SignupStatus, at time.Time) error {
	return s.update(ctx, id,
		"SET #status = :s, updated_at = :at",
		"attribute_exists(PK)",
		map[string]types.AttributeValue{
			":s":  &types.AttributeValueMemberS{Value: string(status)},
			":at": millis(at),
		},
		map[string]string{"#status": "status"})
}

func (s *Store) RecordEngagement(ctx context.Context, id string, kind domain.EventKind, at time.Time) error {
	opened, clicked := "0", "0"
	switch kind {
	case domain.EventOpened:
		opened = "1"
	case domain.EventClicked:
		clicked = "1"
	}
	return s.update(ctx, id,
		"SET last_engaged_at = :at, updated_at = :at ADD emails_opened :o, emails_clicked :c",
		"attribute_exists(PK)",
		map[string]types.AttributeValue{
			":at": millis(at),
			":o":  &types.AttributeValueMemberN{Value: opened},
			":c":  &types.AttributeValueMemberN{Value: clicked},
		}, nil)
}

func (s *Store) update(ctx context.Context, id, expr, cond string, values map[string]types.AttributeValue, names map[string]string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       key(signupPK(id), profileSK),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String(cond),
		ExpressionAttributeValues: values,
		ExpressionAttributeNames:  names,
	})
	if conditionFailed(err) {
		return signup.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("updating signup in DynamoDB: %w", err)
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, evt *domain.NotificationEvent) error {
	data := evt.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event data: %w", err)
	}
	item, err := attributevalue.MarshalMap(eventItem{
		PK:         signupPK(evt.WaitlistID),
		SK:         eventSK(evt),
		Entity:     entityEvent,
		ID:         evt.ID,
		WaitlistID: evt.WaitlistID,
		Kind:       string(evt.Kind),
		Template:   string(evt.Template),
		Data:       string(raw),
		CreatedAt:  evt.CreatedAt.UTC().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{ConditionCheck: &types.ConditionCheck{
				TableName:           aws.String(s.tableName),
				Key:                 key(signupPK(evt.WaitlistID), profileSK),
				ConditionExpression: aws.String("attribute_exists(PK)"),
			}},
			{Put: &types.Put{
				TableName:           aws.String(s.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(SK)"),
			}},
		},
	})
	if conditionFailed(err) {
		return signup.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("putting event to DynamoDB: %w", err)
	}
	return nil
}

// ListPendingWelcome scans the table. Waitlists are small enough that a
// filtered scan beats maintaining a sparse index.
func (s *Store) ListPendingWelcome(ctx context.Context, createdBefore time.Time, limit int) ([]domain.SignupRecord, error) {
	items, err := s.scanSignups(ctx,
		"entity = :e AND #status = :a AND welcome_email_sent = :f AND created_at < :before",
		map[string]types.AttributeValue{
			":e":      &types.AttributeValueMemberS{Value: entitySignup},
			":a":      &types.AttributeValueMemberS{Value: string(domain.StatusActive)},
			":f":      &types.AttributeValueMemberBOOL{Value: false},
			":before": millis(createdBefore),
		},
		map[string]string{"#status": "status"})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt < items[j].CreatedAt })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	out := make([]domain.SignupRecord, 0, len(items))
	for _, item := range items {
		out = append(out, *item.toRecord())
	}
	return out, nil
}

func (s *Store) Stats(ctx context.Context) (*domain.SignupStats, error) {
	items, err := s.scanSignups(ctx, "entity = :e",
		map[string]types.AttributeValue{":e": &types.AttributeValueMemberS{Value: entitySignup}}, nil)
	if err != nil {
		return nil, err
	}
	st := &domain.SignupStats{ByStatus: make(map[domain.SignupStatus]int)}
	for _, item := range items {
		st.Total++
		st.ByStatus[domain.SignupStatus(item.Status)]++
		if item.WelcomeEmailSent {
			st.WelcomeSent++
		} else {
			st.WelcomePending++
		}
	}
	return st, nil
}

func (s *Store) scanSignups(ctx context.Context, filter string, values map[string]types.AttributeValue, names map[string]string) ([]signupItem, error) {
	var (
		out   []signupItem
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.tableName),
			FilterExpression:          aws.String(filter),
			ExpressionAttributeValues: values,
			ExpressionAttributeNames:  names,
			ExclusiveStartKey:         start,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning DynamoDB: %w", err)
		}
		var items []signupItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshaling signups: %w", err)
		}
		out = append(out, items...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}

func conditionFailed(err error) bool {
	if err == nil {
		return false
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func millis(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: fmt.Sprint(t.UTC().UnixMilli())}
}

func toMillisPtr(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UTC().UnixMilli()
}

func fromMillisPtr(v int64) *time.Time {
	if v == 0 {
		return nil
	}
	t := time.UnixMilli(v).UTC()
	return &t
}

func toItem(rec *domain.SignupRecord) signupItem {
	return signupItem{
		PK:                 signupPK(rec.ID),
		SK:                 profileSK,
		Entity:             entitySignup,
		ID:                 rec.ID,
		Email:              rec.Email,
		Name:               rec.Name,
		ChannelName:        rec.ChannelName,
		ChannelURL:         rec.ChannelURL,
		SubscriberCount:    rec.SubscriberCount,
		SubscriberRange:    string(rec.SubscriberRange),
		ContentNiche:       rec.ContentNiche,
		SignupSource:       rec.SignupSource,
		UTMSource:          rec.UTMSource,
		UTMMedium:          rec.UTMMedium,
		UTMCampaign:        rec.UTMCampaign,
		ReferralCode:       rec.ReferralCode,
		IPAddress:          rec.IPAddress,
		UserAgent:          rec.UserAgent,
		Status:             string(rec.Status),
		WelcomeEmailSent:   rec.WelcomeEmailSent,
		WelcomeEmailSentAt: toMillisPtr(rec.WelcomeEmailSentAt),
		EmailsSent:         rec.EmailsSent,
		EmailsOpened:       rec.EmailsOpened,
		EmailsClicked:      rec.EmailsClicked,
		LastEngagedAt:      toMillisPtr(rec.LastEngagedAt),
		UnsubscribedAt:     toMillisPtr(rec.UnsubscribedAt),
		CreatedAt:          rec.CreatedAt.UTC().UnixMilli(),
		UpdatedAt:          rec.UpdatedAt.UTC().UnixMilli(),
	}
}

func (it signupItem) toRecord() *domain.SignupRecord {
	return &domain.SignupRecord{
		ID:                 it.ID,
		Email:              it.Email,
		Name:               it.Name,
		ChannelName:        it.ChannelName,
		ChannelURL:         it.ChannelURL,
		SubscriberCount:    it.SubscriberCount,
		SubscriberRange:    domain.SubscriberRange(it.SubscriberRange),
		ContentNiche:       it.ContentNiche,
		SignupSource:       it.SignupSource,
		UTMSource:          it.UTMSource,
		UTMMedium:          it.UTMMedium,
		UTMCampaign:        it.UTMCampaign,
		ReferralCode:       it.ReferralCode,
		IPAddress:          it.IPAddress,
		UserAgent:          it.UserAgent,
		Status:             domain.SignupStatus(it.Status),
		WelcomeEmailSent:   it.WelcomeEmailSent,
		WelcomeEmailSentAt: fromMillisPtr(it.WelcomeEmailSentAt),
		EmailsSent:         it.EmailsSent,
		EmailsOpened:       it.EmailsOpened,
		EmailsClicked:      it.EmailsClicked,
		LastEngagedAt:      fromMillisPtr(it.LastEngagedAt),
		UnsubscribedAt:     fromMillisPtr(it.UnsubscribedAt),
		CreatedAt:          time.UnixMilli(it.CreatedAt).UTC(),
		UpdatedAt:          time.UnixMilli(it.UpdatedAt).UTC(),
	}
}

var _ signup.Repository = (*Store)(nil)
