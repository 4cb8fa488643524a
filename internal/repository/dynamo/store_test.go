package dynamo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/service/signup"
)

type fakeAPI struct {
	getOut   *dynamodb.GetItemOutput
	getErr   error
	updateIn []*dynamodb.UpdateItemInput
	updateFn func(*dynamodb.UpdateItemInput) error
	txIn     []*dynamodb.TransactWriteItemsInput
	txErr    error
	pages    []*dynamodb.ScanOutput
	scanIn   []*dynamodb.ScanInput
}

func (f *fakeAPI) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.getOut == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOut, nil
}

func (f *fakeAPI) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateIn = append(f.updateIn, in)
	if f.updateFn != nil {
		if err := f.updateFn(in); err != nil {
			return nil, err
		}
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeAPI) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.txIn = append(f.txIn, in)
	if f.txErr != nil {
		return nil, f.txErr
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeAPI) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanIn = append(f.scanIn, in)
	page := f.pages[len(f.scanIn)-1]
	return page, nil
}

func (f *fakeAPI) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRecord(id, email string, created time.Time) *domain.SignupRecord {
	return &domain.SignupRecord{
		ID:           id,
		Email:        email,
		Name:         "Ada",
		SignupSource: domain.DefaultSignupSource,
		Status:       domain.StatusActive,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func marshalRecord(t *testing.T, rec *domain.SignupRecord) map[string]types.AttributeValue {
	t.Helper()
	av, err := attributevalue.MarshalMap(toItem(rec))
	require.NoError(t, err)
	return av
}

func txCanceled(codes ...string) error {
	reasons := make([]types.CancellationReason, 0, len(codes))
	for _, c := range codes {
		reasons = append(reasons, types.CancellationReason{Code: aws.String(c)})
	}
	return &types.TransactionCanceledException{CancellationReasons: reasons}
}

func TestStore_CreateWritesGuardAndProfile(t *testing.T) {
	api := &fakeAPI{}
	store := NewWithClient(api, "waitlist")

	require.NoError(t, store.Create(context.Background(), testRecord("id-1", "ada@example.com", testNow)))

	require.Len(t, api.txIn, 1)
	items := api.txIn[0].TransactItems
	require.Len(t, items, 2)

	var guard emailItem
	require.NoError(t, attributevalue.UnmarshalMap(items[0].Put.Item, &guard))
	assert.Equal(t, "EMAIL#ada@example.com", guard.PK)
	assert.Equal(t, "id-1", guard.WaitlistID)
	assert.Equal(t, "attribute_not_exists(PK)", aws.ToString(items[0].Put.ConditionExpression))

	var profile signupItem
	require.NoError(t, attributevalue.UnmarshalMap(items[1].Put.Item, &profile))
	assert.Equal(t, "SIGNUP#id-1", profile.PK)
	assert.Equal(t, profileSK, profile.SK)
	assert.Equal(t, "active", profile.Status)
	assert.Equal(t, testNow.UnixMilli(), profile.CreatedAt)
}

func TestStore_CreateDuplicate(t *testing.T) {
	api := &fakeAPI{txErr: txCanceled("ConditionalCheckFailed", "None")}
	store := NewWithClient(api, "waitlist")

	err := store.Create(context.Background(), testRecord("id-2", "ada@example.com", testNow))
	assert.ErrorIs(t, err, signup.ErrDuplicate)

	api.txErr = txCanceled("ThrottlingError")
	err = store.Create(context.Background(), testRecord("id-3", "ada@example.com", testNow))
	require.Error(t, err)
	assert.NotErrorIs(t, err, signup.ErrDuplicate)
}

func TestStore_Get(t *testing.T) {
	rec := testRecord("id-1", "ada@example.com", testNow)
	sent := testNow.Add(time.Minute)
	rec.WelcomeEmailSent = true
	rec.WelcomeEmailSentAt = &sent

	api := &fakeAPI{getOut: &dynamodb.GetItemOutput{Item: marshalRecord(t, rec)}}
	store := NewWithClient(api, "waitlist")

	got, err := store.Get(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Email, got.Email)
	assert.True(t, got.CreatedAt.Equal(testNow))
	require.NotNil(t, got.WelcomeEmailSentAt)
	assert.True(t, got.WelcomeEmailSentAt.Equal(sent))
	assert.Nil(t, got.UnsubscribedAt)

	api.getOut = nil
	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, signup.ErrNotFound)
}

func TestStore_MarkUnsubscribed(t *testing.T) {
	rec := testRecord("id-1", "ada@example.com", testNow)
	ccf := &types.ConditionalCheckFailedException{Message: aws.String("failed")}

	t.Run("flips status", func(t *testing.T) {
		api := &fakeAPI{}
		changed, err := NewWithClient(api, "waitlist").MarkUnsubscribed(context.Background(), "id-1", testNow)
		require.NoError(t, err)
		assert.True(t, changed)
		require.Len(t, api.updateIn, 1)
		assert.Equal(t, "status", api.updateIn[0].ExpressionAttributeNames["#status"])
	})

	t.Run("already unsubscribed", func(t *testing.T) {
		api := &fakeAPI{
			updateFn: func(*dynamodb.UpdateItemInput) error { return ccf },
			getOut:   &dynamodb.GetItemOutput{Item: marshalRecord(t, rec)},
		}
		changed, err := NewWithClient(api, "waitlist").MarkUnsubscribed(context.Background(), "id-1", testNow)
		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("unknown id", func(t *testing.T) {
		api := &fakeAPI{updateFn: func(*dynamodb.UpdateItemInput) error { return ccf }}
		_, err := NewWithClient(api, "waitlist").MarkUnsubscribed(context.Background(), "missing", testNow)
		assert.ErrorIs(t, err, signup.ErrNotFound)
	})

	t.Run("transport error", func(t *testing.T) {
		api := &fakeAPI{updateFn: func(*dynamodb.UpdateItemInput) error { return errors.New("timeout") }}
		_, err := NewWithClient(api, "waitlist").MarkUnsubscribed(context.Background(), "id-1", testNow)
		require.Error(t, err)
		assert.NotErrorIs(t, err, signup.ErrNotFound)
	})
}

func TestStore_RecordEngagement(t *testing.T) {
	api := &fakeAPI{}
	store := NewWithClient(api, "waitlist")

	require.NoError(t, store.RecordEngagement(context.Background(), "id-1", domain.EventOpened, testNow))
	require.Len(t, api.updateIn, 1)
	vals := api.updateIn[0].ExpressionAttributeValues
	assert.Equal(t, "1", vals[":o"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "0", vals[":c"].(*types.AttributeValueMemberN).Value)
}

func TestStore_AppendEventChecksParent(t *testing.T) {
	api := &fakeAPI{}
	store := NewWithClient(api, "waitlist")
	evt := &domain.NotificationEvent{
		ID: "evt-1", WaitlistID: "id-1", Kind: domain.EventSent,
		Template: domain.TemplateWelcome, CreatedAt: testNow,
	}

	require.NoError(t, store.AppendEvent(context.Background(), evt))
	items := api.txIn[0].TransactItems
	require.Len(t, items, 2)
	require.NotNil(t, items[0].ConditionCheck)

	var stored eventItem
	require.NoError(t, attributevalue.UnmarshalMap(items[1].Put.Item, &stored))
	assert.Equal(t, "SIGNUP#id-1", stored.PK)
	assert.Contains(t, stored.SK, "EVENT#")
	assert.Equal(t, "{}", stored.Data)

	api.txErr = txCanceled("ConditionalCheckFailed", "None")
	assert.ErrorIs(t, store.AppendEvent(context.Background(), evt), signup.ErrNotFound)
}

func TestStore_ListPendingWelcomePaginatesAndSorts(t *testing.T) {
	newer := marshalRecord(t, testRecord("id-2", "b@example.com", testNow.Add(-time.Hour)))
	older := marshalRecord(t, testRecord("id-1", "a@example.com", testNow.Add(-2*time.Hour)))
	api := &fakeAPI{pages: []*dynamodb.ScanOutput{
		{Items: []map[string]types.AttributeValue{newer}, LastEvaluatedKey: key("SIGNUP#id-2", profileSK)},
		{Items: []map[string]types.AttributeValue{older}},
	}}
	store := NewWithClient(api, "waitlist")

	got, err := store.ListPendingWelcome(context.Background(), testNow, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "id-1", got[0].ID)
	assert.Equal(t, "id-2", got[1].ID)
	require.Len(t, api.scanIn, 2)
	assert.NotNil(t, api.scanIn[1].ExclusiveStartKey)
}

func TestStore_Stats(t *testing.T) {
	a := testRecord("id-1", "a@example.com", testNow)
	a.WelcomeEmailSent = true
	b := testRecord("id-2", "b@example.com", testNow)
	b.Status = domain.StatusUnsubscribed
	api := &fakeAPI{pages: []*dynamodb.ScanOutput{
		{Items: []map[string]types.AttributeValue{marshalRecord(t, a), marshalRecord(t, b)}},
	}}

	st, err := NewWithClient(api, "waitlist").Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.ByStatus[domain.StatusActive])
	assert.Equal(t, 1, st.ByStatus[domain.StatusUnsubscribed])
	assert.Equal(t, 1, st.WelcomeSent)
	assert.Equal(t, 1, st.WelcomePending)
}
