package signup

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
)

// User-facing confirmation messages.
const (
	MessageJoined            = "Successfully joined the waitlist! Check your email for confirmation."
	MessageAlreadySubscribed = "You're already on the waitlist!"
	MessageUnsubscribed      = "You have been unsubscribed from waitlist emails."
)

const (
	maxEmailLength = 254
	maxTextLength  = 255
	maxCodeLength  = 64
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether a normalized address looks like local@domain.tld.
func ValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// Input is a candidate signup as received from a client.
type Input struct {
	Email           string
	Name            string
	ChannelName     string
	ChannelURL      string
	SubscriberCount *int
	SubscriberRange string
	ContentNiche    string
	SignupSource    string
	UTMSource       string
	UTMMedium       string
	UTMCampaign     string
	ReferralCode    string
	IPAddress       string
	UserAgent       string
}

// Result is the outcome of Submit.
type Result struct {
	WaitlistID        string
	AlreadySubscribed bool
	WelcomeEmailSent  bool
	Message           string
}

// Options tunes the service.
type Options struct {
	// StoreTimeout bounds each repository call; zero disables the bound.
	StoreTimeout time.Duration
}

// Service implements signup business logic. Safe for concurrent use if the
// repository is.
type Service struct {
	repo    Repository
	welcome WelcomeSender
	events  EventRecorder
	opts    Options
	log     *logger.Logger
	now     func() time.Time
}

// NewService creates a signup service. welcome may be nil to disable welcome
// emails; events defaults to the repository.
func NewService(repo Repository, welcome WelcomeSender, events EventRecorder, opts Options) *Service {
	if events == nil {
		events = repo
	}
	return &Service{
		repo:    repo,
		welcome: welcome,
		events:  events,
		opts:    opts,
		log:     logger.Component("signup"),
		now:     time.Now,
	}
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// Submit validates, stores and welcomes a new waitlist signup.
func (s *Service) Submit(ctx context.Context, in Input) (*Result, error) {
	rec, err := s.buildRecord(in)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.repo.Create(storeCtx, rec)
	cancel()
	if errors.Is(err, ErrDuplicate) {
		s.log.Info("duplicate signup", "email", rec.Email, "signup_source", rec.SignupSource)
		return &Result{AlreadySubscribed: true, Message: MessageAlreadySubscribed}, nil
	}
	if err != nil {
		s.log.Error("create signup failed", "step", "insert", "email", rec.Email, "err", err)
		return nil, fmt.Errorf("create signup: %w", err)
	}
	s.log.Info("signup created", "waitlist_id", rec.ID, "signup_source", rec.SignupSource)

	res := &Result{WaitlistID: rec.ID, Message: MessageJoined}
	res.WelcomeEmailSent = s.sendWelcome(ctx, rec.ID, rec.Email, rec.Name)
	return res, nil
}

// sendWelcome is best-effort: failures are logged and leave the flag false
// for the backfill sweep.
func (s *Service) sendWelcome(ctx context.Context, id, email, name string) bool {
	if s.welcome == nil {
		return false
	}
	messageID, err := s.welcome.SendWelcome(ctx, id, email, name)
	if err != nil {
		s.log.Warn("welcome email failed", "step", "welcome_dispatch", "waitlist_id", id, "err", err)
		return false
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.repo.MarkWelcomeSent(storeCtx, id, s.now().UTC()); err != nil {
		s.log.Error("mark welcome sent failed", "step", "mark_welcome_sent", "waitlist_id", id, "email_id", messageID, "err", err)
		return false
	}
	return true
}

func (s *Service) buildRecord(in Input) (*domain.SignupRecord, error) {
	email := NormalizeEmail(in.Email)
	if !ValidEmail(email) {
		return nil, ErrInvalidEmail
	}

	subscriberRange := domain.SubscriberRange(strings.TrimSpace(in.SubscriberRange))
	if subscriberRange != "" && !subscriberRange.Valid() {
		return nil, fmt.Errorf("%w: subscriber_range %q", ErrInvalidField, subscriberRange)
	}
	if in.SubscriberCount != nil && *in.SubscriberCount < 0 {
		return nil, fmt.Errorf("%w: subscriber_count must not be negative", ErrInvalidField)
	}

	source := strings.TrimSpace(in.SignupSource)
	if source == "" {
		source = domain.DefaultSignupSource
	}

	now := s.now().UTC()
	rec := &domain.SignupRecord{
		ID:              uuid.NewString(),
		Email:           email,
		Name:            strings.TrimSpace(in.Name),
		ChannelName:     strings.TrimSpace(in.ChannelName),
		ChannelURL:      strings.TrimSpace(in.ChannelURL),
		SubscriberCount: in.SubscriberCount,
		SubscriberRange: subscriberRange,
		ContentNiche:    strings.TrimSpace(in.ContentNiche),
		SignupSource:    source,
		UTMSource:       strings.TrimSpace(in.UTMSource),
		UTMMedium:       strings.TrimSpace(in.UTMMedium),
		UTMCampaign:     strings.TrimSpace(in.UTMCampaign),
		ReferralCode:    strings.TrimSpace(in.ReferralCode),
		IPAddress:       truncate(strings.TrimSpace(in.IPAddress), maxCodeLength),
		UserAgent:       in.UserAgent,
		Status:          domain.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := checkLengths(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// checkLengths rejects optional fields longer than their storage columns.
func checkLengths(rec *domain.SignupRecord) error {
	fields := []struct {
		name  string
		value string
		limit int
	}{
		{"name", rec.Name, maxTextLength},
		{"youtube_channel_name", rec.ChannelName, maxTextLength},
		{"content_niche", rec.ContentNiche, maxTextLength},
		{"signup_source", rec.SignupSource, maxCodeLength},
		{"utm_source", rec.UTMSource, maxTextLength},
		{"utm_medium", rec.UTMMedium, maxTextLength},
		{"utm_campaign", rec.UTMCampaign, maxTextLength},
		{"referral_code", rec.ReferralCode, maxCodeLength},
	}
	for _, f := range fields {
		if utf8.RuneCountInString(f.value) > f.limit {
			return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidField, f.name, f.limit)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, id string) (*domain.SignupRecord, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.repo.Get(storeCtx, strings.TrimSpace(id))
}

// Unsubscribe marks a record unsubscribed. Unsubscribing an already
// unsubscribed record succeeds without changes.
func (s *Service) Unsubscribe(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidField)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	changed, err := s.repo.MarkUnsubscribed(storeCtx, id, s.now().UTC())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	s.log.Info("unsubscribed", "waitlist_id", id)
	s.appendEvent(storeCtx, &domain.NotificationEvent{WaitlistID: id, Kind: domain.EventUnsubscribed})
	return nil
}

// SetStatus moves a record to a new lifecycle status.
func (s *Service) SetStatus(ctx context.Context, id string, status domain.SignupStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidField, status)
	}
	if status == domain.StatusUnsubscribed {
		return s.Unsubscribe(ctx, id)
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status == status {
		return nil
	}
	if !rec.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, status)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.repo.UpdateStatus(storeCtx, rec.ID, status, s.now().UTC())
}

// RecordEvent ingests an engagement signal for a record.
func (s *Service) RecordEvent(ctx context.Context, evt domain.NotificationEvent) error {
	evt.WaitlistID = strings.TrimSpace(evt.WaitlistID)
	if evt.WaitlistID == "" {
		return fmt.Errorf("%w: waitlist_id is required", ErrInvalidField)
	}
	if !evt.Kind.Valid() {
		return fmt.Errorf("%w: event %q", ErrInvalidField, evt.Kind)
	}
	if evt.Kind == domain.EventUnsubscribed {
		return s.Unsubscribe(ctx, evt.WaitlistID)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	if evt.Kind == domain.EventOpened || evt.Kind == domain.EventClicked {
		if err := s.repo.RecordEngagement(storeCtx, evt.WaitlistID, evt.Kind, s.now().UTC()); err != nil {
			return err
		}
	} else if _, err := s.repo.Get(storeCtx, evt.WaitlistID); err != nil {
		return err
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now().UTC()
	}
	if err := s.events.AppendEvent(storeCtx, &evt); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Stats returns aggregate waitlist counts.
func (s *Service) Stats(ctx context.Context) (*domain.SignupStats, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.repo.Stats(storeCtx)
}

// BackfillResult summarizes one welcome backfill pass.
type BackfillResult struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

// ResendPendingWelcomes retries the welcome email for active records older
// than minAge whose welcome flag is still false.
func (s *Service) ResendPendingWelcomes(ctx context.Context, minAge time.Duration, limit int) (*BackfillResult, error) {
	if s.welcome == nil {
		return &BackfillResult{}, nil
	}

	storeCtx, cancel := s.storeCtx(ctx)
	pending, err := s.repo.ListPendingWelcome(storeCtx, s.now().UTC().Add(-minAge), limit)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("list pending welcomes: %w", err)
	}

	res := &BackfillResult{Scanned: len(pending)}
	for _, rec := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if s.sendWelcome(ctx, rec.ID, rec.Email, rec.Name) {
			res.Sent++
		} else {
			res.Failed++
		}
	}
	return res, nil
}

func (s *Service) appendEvent(ctx context.Context, evt *domain.NotificationEvent) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.now().UTC()
	}
	if err := s.events.AppendEvent(ctx, evt); err != nil {
		s.log.Warn("append event failed", "waitlist_id", evt.WaitlistID, "event_type", evt.Kind, "err", err)
	}
}
