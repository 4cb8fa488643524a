package esp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/creator-waitlist/internal/domain"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SparkPostSender sends email through the SparkPost transmissions API.
type SparkPostSender struct {
	apiKey  string
	baseURL string
	client  HTTPDoer
}

// NewSparkPostSender creates a SparkPost sender. A nil client uses
// http.DefaultClient; callers bound each call with the request context.
func NewSparkPostSender(apiKey, baseURL string, client HTTPDoer) *SparkPostSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &SparkPostSender{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name identifies the provider in logs.
func (s *SparkPostSender) Name() string { return "sparkpost" }

type sparkPostTransmission struct {
	Recipients []sparkPostRecipient `json:"recipients"`
	Content    sparkPostContent     `json:"content"`
	Metadata   map[string]string    `json:"metadata,omitempty"`
	Options    sparkPostOptions     `json:"options"`
}

type sparkPostRecipient struct {
	Address struct {
		Email string `json:"email"`
	} `json:"address"`
}

type sparkPostContent struct {
	From struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
	} `json:"from"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

type sparkPostOptions struct {
	Transactional bool `json:"transactional"`
	OpenTracking  bool `json:"open_tracking"`
	ClickTracking bool `json:"click_tracking"`
}

type sparkPostResponse struct {
	Results struct {
		TotalAcceptedRecipients int    `json:"total_accepted_recipients"`
		ID                      string `json:"id"`
	} `json:"results"`
	Errors []struct {
		Message     string `json:"message"`
		Description string `json:"description"`
		Code        string `json:"code"`
	} `json:"errors"`
}

// Send delivers a single message through SparkPost.
func (s *SparkPostSender) Send(ctx context.Context, msg *domain.EmailMessage) (string, error) {
	if s.apiKey == "" {
		return "", ErrNotConfigured
	}

	var tx sparkPostTransmission
	var rcpt sparkPostRecipient
	rcpt.Address.Email = msg.To
	tx.Recipients = []sparkPostRecipient{rcpt}
	tx.Content.From.Email = msg.From
	tx.Content.From.Name = msg.FromName
	tx.Content.ReplyTo = msg.ReplyTo
	tx.Content.Subject = msg.Subject
	tx.Content.HTML = msg.HTML
	tx.Content.Text = msg.Text
	tx.Metadata = msg.Tags
	tx.Options = sparkPostOptions{Transactional: true, OpenTracking: true, ClickTracking: false}

	body, err := json.Marshal(tx)
	if err != nil {
		return "", fmt.Errorf("marshal transmission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/transmissions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", s.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sparkpost request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read sparkpost response: %w", err)
	}

	var spResp sparkPostResponse
	decodeErr := json.Unmarshal(raw, &spResp)

	if resp.StatusCode != http.StatusOK || len(spResp.Errors) > 0 {
		perr := &ProviderError{Provider: "sparkpost", StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if len(spResp.Errors) > 0 {
			perr.Message = spResp.Errors[0].Message
			perr.Code = spResp.Errors[0].Code
			if d := spResp.Errors[0].Description; d != "" {
				perr.Message += ": " + d
			}
		}
		return "", perr
	}
	if decodeErr != nil {
		return "", fmt.Errorf("decode sparkpost response: %w", decodeErr)
	}
	return spResp.Results.ID, nil
}
