package domain

import "time"

// TemplateName identifies one of the fixed outbound email templates.
type TemplateName string

const (
	TemplateWelcome        TemplateName = "welcome"
	TemplateProgressUpdate TemplateName = "progress_update"
	TemplateEarlyAccess    TemplateName = "early_access"
)

// templateAliases maps wire names accepted from clients onto canonical names.
var templateAliases = map[string]TemplateName{
	"update": TemplateProgressUpdate,
}

// ParseTemplateName resolves a client-supplied template name, including
// aliases. The second return is false for unknown names.
func ParseTemplateName(s string) (TemplateName, bool) {
	if t, ok := templateAliases[s]; ok {
		return t, true
	}
	t := TemplateName(s)
	switch t {
	case TemplateWelcome, TemplateProgressUpdate, TemplateEarlyAccess:
		return t, true
	}
	return "", false
}

// EventKind enumerates notification lifecycle events.
type EventKind string

const (
	EventSent         EventKind = "sent"
	EventDelivered    EventKind = "delivered"
	EventOpened       EventKind = "opened"
	EventClicked      EventKind = "clicked"
	EventBounced      EventKind = "bounced"
	EventUnsubscribed EventKind = "unsubscribed"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventSent, EventDelivered, EventOpened, EventClicked, EventBounced, EventUnsubscribed:
		return true
	}
	return false
}

// NotificationEvent is an append-only log entry for one dispatch attempt or
// engagement signal against a signup record. Never mutated after creation.
type NotificationEvent struct {
	ID         string         `json:"id" db:"id"`
	WaitlistID string         `json:"waitlist_id" db:"waitlist_id"`
	Kind       EventKind      `json:"event_type" db:"event_type"`
	Template   TemplateName   `json:"template,omitempty" db:"template"`
	Data       map[string]any `json:"data,omitempty" db:"event_data"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}

// TemplateData carries the values interpolated into an outbound template.
type TemplateData struct {
	WaitlistID string `json:"waitlist_id"`
	Name       string `json:"name,omitempty"`
}

// EmailMessage is a fully rendered message ready for dispatch.
type EmailMessage struct {
	From     string
	FromName string
	ReplyTo  string
	To       string
	Subject  string
	HTML     string
	Text     string
	Tags     map[string]string
}
