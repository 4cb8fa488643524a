package signup

import (
	"context"
	"time"

	"github.com/ignite/creator-waitlist/internal/domain"
)

// Repository defines the data access contract for waitlist signups.
// Implementations must enforce email uniqueness natively and report a
// violated constraint as ErrDuplicate.
type Repository interface {
	// Create inserts a new record. Returns ErrDuplicate if the email exists.
	Create(ctx context.Context, rec *domain.SignupRecord) error

	// Get returns a record by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.SignupRecord, error)

	// MarkWelcomeSent sets the welcome flag and timestamp and bumps emails_sent.
	MarkWelcomeSent(ctx context.Context, id string, at time.Time) error

	// MarkUnsubscribed flips status to unsubscribed. changed is false when
	// the record was already unsubscribed. Returns ErrNotFound for unknown ids.
	MarkUnsubscribed(ctx context.Context, id string, at time.Time) (changed bool, err error)

	// UpdateStatus sets a new lifecycle status. Returns ErrNotFound for unknown ids.
	UpdateStatus(ctx context.Context, id string, status domain.SignupStatus, at time.Time) error

	// RecordEngagement bumps open/click counters and last_engaged_at.
	RecordEngagement(ctx context.Context, id string, kind domain.EventKind, at time.Time) error

	// AppendEvent stores an immutable notification event.
	AppendEvent(ctx context.Context, evt *domain.NotificationEvent) error

	// ListPendingWelcome returns active records without a welcome email
	// created before the cutoff, oldest first.
	ListPendingWelcome(ctx context.Context, createdBefore time.Time, limit int) ([]domain.SignupRecord, error)

	// Stats aggregates counts by status and welcome state.
	Stats(ctx context.Context) (*domain.SignupStats, error)
}

// WelcomeSender dispatches the welcome email for a new record and returns
// the provider message ID.
type WelcomeSender interface {
	SendWelcome(ctx context.Context, waitlistID, email, name string) (string, error)
}

// EventRecorder appends notification events (and may fan them out).
type EventRecorder interface {
	AppendEvent(ctx context.Context, evt *domain.NotificationEvent) error
}
