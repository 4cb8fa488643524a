package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/mailing"
	"github.com/ignite/creator-waitlist/internal/pkg/httputil"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
	"github.com/ignite/creator-waitlist/internal/service/notification"
	"github.com/ignite/creator-waitlist/internal/service/signup"
)

// SignupService is the subset of signup.Service used by the handlers.
type SignupService interface {
	Submit(ctx context.Context, in signup.Input) (*signup.Result, error)
	Unsubscribe(ctx context.Context, id string) error
	SetStatus(ctx context.Context, id string, status domain.SignupStatus) error
	RecordEvent(ctx context.Context, evt domain.NotificationEvent) error
	Stats(ctx context.Context) (*domain.SignupStats, error)
}

// Notifier sends one templated email.
type Notifier interface {
	Send(ctx context.Context, recipient string, templateName domain.TemplateName, data domain.TemplateData) (*notification.SendResult, error)
}

// Deps wires the HTTP layer to the services.
type Deps struct {
	Signups  SignupService
	Notifier Notifier
	Links    *mailing.UnsubscribeLinks
	Pages    *mailing.Pages
	Health   *HealthChecker
}

// WaitlistHandlers serves the /api/waitlist routes.
type WaitlistHandlers struct {
	signups  SignupService
	notifier Notifier
	links    *mailing.UnsubscribeLinks
	pages    *mailing.Pages
	log      *logger.Logger
}

// NewWaitlistHandlers creates the waitlist handlers.
func NewWaitlistHandlers(deps Deps) *WaitlistHandlers {
	return &WaitlistHandlers{
		signups:  deps.Signups,
		notifier: deps.Notifier,
		links:    deps.Links,
		pages:    deps.Pages,
		log:      logger.Component("waitlist-api"),
	}
}

// ============================================================================
// SIGNUP
// ============================================================================

type signupRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	ChannelName     string `json:"youtube_channel_name"`
	ChannelURL      string `json:"youtube_channel_url"`
	SubscriberCount *int   `json:"subscriber_count"`
	SubscriberRange string `json:"subscriber_range"`
	ContentNiche    string `json:"content_niche"`
	SignupSource    string `json:"signup_source"`
	UTMSource       string `json:"utm_source"`
	UTMMedium       string `json:"utm_medium"`
	UTMCampaign     string `json:"utm_campaign"`
	ReferralCode    string `json:"referral_code"`
}

type signupResponse struct {
	Success           bool   `json:"success"`
	WaitlistID        string `json:"waitlist_id,omitempty"`
	AlreadySubscribed bool   `json:"already_subscribed,omitempty"`
	Message           string `json:"message"`
}

// HandleSignup adds an email to the waitlist.
//
//	POST /api/waitlist
func (h *WaitlistHandlers) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	res, err := h.signups.Submit(r.Context(), signup.Input{
		Email:           req.Email,
		Name:            req.Name,
		ChannelName:     req.ChannelName,
		ChannelURL:      req.ChannelURL,
		SubscriberCount: req.SubscriberCount,
		SubscriberRange: req.SubscriberRange,
		ContentNiche:    req.ContentNiche,
		SignupSource:    req.SignupSource,
		UTMSource:       req.UTMSource,
		UTMMedium:       req.UTMMedium,
		UTMCampaign:     req.UTMCampaign,
		ReferralCode:    req.ReferralCode,
		IPAddress:       httputil.ClientIP(r),
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		if errors.Is(err, signup.ErrInvalidEmail) {
			httputil.BadRequest(w, "invalid_email", signup.ErrInvalidEmail.Error())
			return
		}
		if signup.IsClientError(err) {
			httputil.BadRequest(w, "invalid_field", err.Error())
			return
		}
		httputil.InternalError(w, err, "step", "signup")
		return
	}

	httputil.OK(w, signupResponse{
		Success:           true,
		WaitlistID:        res.WaitlistID,
		AlreadySubscribed: res.AlreadySubscribed,
		Message:           res.Message,
	})
}

// ============================================================================
// NOTIFY
// ============================================================================

type notifyRequest struct {
	Email      string `json:"email"`
	Template   string `json:"template"`
	WaitlistID string `json:"waitlist_id"`
	Name       string `json:"name"`
}

// HandleNotify sends one of the fixed templates to a waitlist member.
//
//	POST /api/waitlist/notify
func (h *WaitlistHandlers) HandleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Template) == "" {
		httputil.BadRequest(w, "missing_field", "template is required")
		return
	}
	tpl, ok := domain.ParseTemplateName(strings.TrimSpace(req.Template))
	if !ok {
		httputil.BadRequest(w, "invalid_template", "invalid template")
		return
	}

	res, err := h.notifier.Send(r.Context(), req.Email, tpl, domain.TemplateData{
		WaitlistID: req.WaitlistID,
		Name:       req.Name,
	})
	switch {
	case errors.Is(err, notification.ErrInvalidTemplate):
		httputil.BadRequest(w, "invalid_template", "invalid template")
		return
	case errors.Is(err, notification.ErrMissingField):
		httputil.BadRequest(w, "missing_field", err.Error())
		return
	case errors.Is(err, notification.ErrInvalidField):
		httputil.BadRequest(w, "invalid_field", err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err, "step", "notify", "template", tpl, "waitlist_id", req.WaitlistID)
		return
	}

	if tpl == domain.TemplateEarlyAccess {
		if err := h.signups.SetStatus(r.Context(), req.WaitlistID, domain.StatusInvited); err != nil {
			h.log.Warn("mark invited failed", "waitlist_id", req.WaitlistID, "err", err)
		}
	}

	httputil.OK(w, map[string]interface{}{
		"success":  true,
		"email_id": res.MessageID,
	})
}

// ============================================================================
// UNSUBSCRIBE
// ============================================================================

// HandleUnsubscribe flips a record to unsubscribed. GET requests come from
// email links and get an HTML page; POST requests get JSON.
//
//	GET|POST /api/waitlist/unsubscribe?id=...&sig=...
func (h *WaitlistHandlers) HandleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		h.unsubscribeReply(w, r, http.StatusBadRequest, "missing_field", "Missing waitlist id.")
		return
	}
	if h.links != nil && h.links.Signed() && !h.links.Verify(id, r.URL.Query().Get("sig")) {
		h.unsubscribeReply(w, r, http.StatusBadRequest, "invalid_signature", "This unsubscribe link is invalid.")
		return
	}

	err := h.signups.Unsubscribe(r.Context(), id)
	switch {
	case errors.Is(err, signup.ErrNotFound):
		h.unsubscribeReply(w, r, http.StatusNotFound, "not_found", "We couldn't find that waitlist entry.")
		return
	case signup.IsClientError(err):
		h.unsubscribeReply(w, r, http.StatusBadRequest, "invalid_field", err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err, "step", "unsubscribe", "waitlist_id", id)
		return
	}

	h.unsubscribeReply(w, r, http.StatusOK, "", signup.MessageUnsubscribed)
}

func (h *WaitlistHandlers) unsubscribeReply(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	if r.Method != http.MethodGet || h.pages == nil {
		if status == http.StatusOK {
			httputil.OK(w, map[string]interface{}{"success": true, "message": message})
			return
		}
		httputil.Error(w, status, code, message)
		return
	}

	title := "You're unsubscribed"
	if status != http.StatusOK {
		title = "Something went wrong"
	}
	page, err := h.pages.Unsubscribe(title, message)
	if err != nil {
		httputil.InternalError(w, err, "step", "unsubscribe_page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(page))
}

// ============================================================================
// EVENTS & STATS
// ============================================================================

type eventRequest struct {
	WaitlistID string         `json:"waitlist_id"`
	Event      string         `json:"event"`
	Template   string         `json:"template"`
	Data       map[string]any `json:"data"`
}

// HandleEvent records a delivery or engagement signal.
//
//	POST /api/waitlist/events
func (h *WaitlistHandlers) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	evt := domain.NotificationEvent{
		WaitlistID: req.WaitlistID,
		Kind:       domain.EventKind(strings.ToLower(strings.TrimSpace(req.Event))),
		Data:       req.Data,
	}
	if req.Template != "" {
		tpl, ok := domain.ParseTemplateName(req.Template)
		if !ok {
			httputil.BadRequest(w, "invalid_template", "invalid template")
			return
		}
		evt.Template = tpl
	}

	err := h.signups.RecordEvent(r.Context(), evt)
	switch {
	case errors.Is(err, signup.ErrNotFound):
		httputil.NotFound(w, "waitlist entry not found")
		return
	case signup.IsClientError(err):
		httputil.BadRequest(w, "invalid_field", err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err, "step", "record_event", "waitlist_id", evt.WaitlistID)
		return
	}

	httputil.OK(w, map[string]interface{}{"success": true})
}

// HandleStats returns aggregate waitlist counts.
//
//	GET /api/waitlist/stats
func (h *WaitlistHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.signups.Stats(r.Context())
	if err != nil {
		httputil.InternalError(w, err, "step", "stats")
		return
	}
	httputil.OK(w, stats)
}
