package notification

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/mailing"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
)

// waitlistIDPattern matches ids that are safe to carry as provider message
// tags (SES allows letters, digits and _-.@ up to 256 characters).
var waitlistIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,256}$`)

// Provider dispatches a rendered message to an external email service.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *domain.EmailMessage) (string, error)
}

// EventRecorder appends notification events. Optional.
type EventRecorder interface {
	AppendEvent(ctx context.Context, evt *domain.NotificationEvent) error
}

// Options holds the sender identity and dispatch timeout for outbound mail.
type Options struct {
	FromAddress string
	FromName    string
	ReplyTo     string
	Timeout     time.Duration
}

// SendResult describes a successful dispatch.
type SendResult struct {
	MessageID      string              `json:"email_id"`
	Template       domain.TemplateName `json:"template"`
	UnsubscribeURL string              `json:"-"`
}

// Service renders templates and dispatches them. Safe for concurrent use.
type Service struct {
	renderer *mailing.Renderer
	provider Provider
	events   EventRecorder
	opts     Options
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates a notification service. events may be nil.
func NewService(renderer *mailing.Renderer, provider Provider, events EventRecorder, opts Options) *Service {
	return &Service{
		renderer: renderer,
		provider: provider,
		events:   events,
		opts:     opts,
		log:      logger.Component("notification").With("provider", provider.Name()),
		now:      time.Now,
	}
}

// Send renders templateName for the recipient and dispatches it once.
func (s *Service) Send(ctx context.Context, recipient string, templateName domain.TemplateName, data domain.TemplateData) (*SendResult, error) {
	if !s.renderer.Has(templateName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTemplate, templateName)
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return nil, fmt.Errorf("%w: email", ErrMissingField)
	}
	data.WaitlistID = strings.TrimSpace(data.WaitlistID)
	if data.WaitlistID == "" {
		return nil, fmt.Errorf("%w: waitlist_id", ErrMissingField)
	}
	if !waitlistIDPattern.MatchString(data.WaitlistID) {
		return nil, fmt.Errorf("%w: waitlist_id", ErrInvalidField)
	}

	rendered, err := s.renderer.Render(templateName, data)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", templateName, err)
	}

	msg := &domain.EmailMessage{
		From:     s.opts.FromAddress,
		FromName: s.opts.FromName,
		ReplyTo:  s.opts.ReplyTo,
		To:       recipient,
		Subject:  rendered.Subject,
		HTML:     rendered.HTML,
		Text:     rendered.Text,
		Tags: map[string]string{
			"template":    string(templateName),
			"waitlist_id": data.WaitlistID,
		},
	}

	sendCtx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	messageID, err := s.provider.Send(sendCtx, msg)
	if err != nil {
		s.log.Error("dispatch failed", "template", templateName, "waitlist_id", data.WaitlistID, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrProvider, err)
	}

	s.log.Info("dispatched", "template", templateName, "waitlist_id", data.WaitlistID, "email_id", messageID)
	s.recordSent(ctx, templateName, data.WaitlistID, messageID)

	return &SendResult{
		MessageID:      messageID,
		Template:       templateName,
		UnsubscribeURL: rendered.UnsubscribeURL,
	}, nil
}

// SendWelcome sends the welcome template for a freshly created record.
func (s *Service) SendWelcome(ctx context.Context, waitlistID, email, name string) (string, error) {
	res, err := s.Send(ctx, email, domain.TemplateWelcome, domain.TemplateData{WaitlistID: waitlistID, Name: name})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

func (s *Service) recordSent(ctx context.Context, templateName domain.TemplateName, waitlistID, messageID string) {
	if s.events == nil {
		return
	}
	evt := &domain.NotificationEvent{
		ID:         uuid.NewString(),
		WaitlistID: waitlistID,
		Kind:       domain.EventSent,
		Template:   templateName,
		Data: map[string]any{
			"email_id": messageID,
			"provider": s.provider.Name(),
		},
		CreatedAt: s.now().UTC(),
	}
	if err := s.events.AppendEvent(ctx, evt); err != nil {
		s.log.Warn("record sent event failed", "waitlist_id", waitlistID, "err", err)
	}
}
