package esp

import (
	"context"

	"github.com/google/uuid"

	"github.com/ignite/creator-waitlist/internal/domain"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
)

// LogSender records messages in the log instead of sending them. Used for
// local development and as the default provider.
type LogSender struct {
	log *logger.Logger
}

// NewLogSender creates a logging provider.
func NewLogSender(l *logger.Logger) *LogSender {
	if l == nil {
		l = logger.Component("esp.log")
	}
	return &LogSender{log: l}
}

// Name identifies the provider in logs.
func (s *LogSender) Name() string { return "log" }

// Send logs the message envelope and returns a synthetic message ID.
func (s *LogSender) Send(_ context.Context, msg *domain.EmailMessage) (string, error) {
	id := "log-" + uuid.NewString()
	s.log.Info("email not sent (log provider)",
		"email_id", id,
		"to", msg.To,
		"subject", msg.Subject,
		"html_bytes", len(msg.HTML),
		"text_bytes", len(msg.Text),
	)
	return id, nil
}
