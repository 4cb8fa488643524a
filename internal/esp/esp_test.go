package esp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/creator-waitlist/internal/config"
	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
)

func testMessage() *domain.EmailMessage {
	return &domain.EmailMessage{
		From:     "hello@example.com",
		FromName: "Creator Assistant",
		To:       "ada@example.com",
		Subject:  "Welcome",
		HTML:     "<p>hi</p>",
		Text:     "hi",
		Tags:     map[string]string{"template": "welcome"},
	}
}

func TestSparkPostSender_Success(t *testing.T) {
	var got sparkPostTransmission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transmissions", r.URL.Path)
		assert.Equal(t, "sp-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results":{"total_accepted_recipients":1,"id":"tx-123"}}`))
	}))
	defer srv.Close()

	s := NewSparkPostSender("sp-key", srv.URL+"/api/v1/", srv.Client())
	id, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)

	assert.Equal(t, "tx-123", id)
	require.Len(t, got.Recipients, 1)
	assert.Equal(t, "ada@example.com", got.Recipients[0].Address.Email)
	assert.Equal(t, "<p>hi</p>", got.Content.HTML)
	assert.Equal(t, "hi", got.Content.Text)
	assert.True(t, got.Options.Transactional)
}

func TestSparkPostSender_ProviderError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"message":"invalid recipient","code":"5002"}]}`))
	}))
	defer srv.Close()

	s := NewSparkPostSender("sp-key", srv.URL, srv.Client())
	_, err := s.Send(context.Background(), testMessage())
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.Equal(t, "5002", perr.Code)
	assert.Equal(t, 1, calls, "provider errors must not be retried")
}

func TestSparkPostSender_ServerErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSparkPostSender("sp-key", srv.URL, srv.Client())
	_, err := s.Send(context.Background(), testMessage())

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusServiceUnavailable, perr.StatusCode)
}

func TestSparkPostSender_NotConfigured(t *testing.T) {
	s := NewSparkPostSender("", "http://unused", nil)
	_, err := s.Send(context.Background(), testMessage())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-abc")}, nil
}

func TestSESSender_BuildsSimpleMessage(t *testing.T) {
	fake := &fakeSES{}
	s := NewSESSenderWithClient(fake, "waitlist")

	msg := testMessage()
	msg.ReplyTo = "support@example.com"
	id, err := s.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, "ses-abc", id)
	assert.Equal(t, "Creator Assistant <hello@example.com>", aws.ToString(fake.input.FromEmailAddress))
	assert.Equal(t, []string{"ada@example.com"}, fake.input.Destination.ToAddresses)
	assert.Equal(t, "<p>hi</p>", aws.ToString(fake.input.Content.Simple.Body.Html.Data))
	assert.Equal(t, "hi", aws.ToString(fake.input.Content.Simple.Body.Text.Data))
	assert.Equal(t, []string{"support@example.com"}, fake.input.ReplyToAddresses)
	assert.Equal(t, "waitlist", aws.ToString(fake.input.ConfigurationSetName))
	require.Len(t, fake.input.EmailTags, 1)
}

func TestSESSender_SurfacesError(t *testing.T) {
	fake := &fakeSES{err: errors.New("MessageRejected: Email address is not verified")}
	s := NewSESSenderWithClient(fake, "")

	_, err := s.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(logger.New(&buf, logger.INFO, true))

	id, err := s.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Contains(t, id, "log-")
	assert.Contains(t, buf.String(), "ad***@example.com")
	assert.NotContains(t, buf.String(), "ada@example.com")
}

func TestNew_SelectsProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Email.Provider = "log"
	p, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "log", p.Name())

	cfg.Email.Provider = "sparkpost"
	_, err = New(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNotConfigured)

	cfg.SparkPost.APIKey = "k"
	cfg.SparkPost.BaseURL = "https://api.sparkpost.com/api/v1"
	p, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "sparkpost", p.Name())

	cfg.Email.Provider = "pigeon"
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
