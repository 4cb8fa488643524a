package esp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ignite/creator-waitlist/internal/config"
	"github.com/ignite/creator-waitlist/internal/domain"
)

// Provider delivers one rendered message and returns the provider's
// message ID. Implementations must be safe for concurrent use.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *domain.EmailMessage) (string, error)
}

var (
	_ Provider = (*SESSender)(nil)
	_ Provider = (*SparkPostSender)(nil)
	_ Provider = (*LogSender)(nil)
)

// New builds the provider selected by cfg.Email.Provider.
func New(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch cfg.Email.Provider {
	case "ses":
		return NewSESSender(ctx, cfg.SES)
	case "sparkpost":
		if cfg.SparkPost.APIKey == "" {
			return nil, fmt.Errorf("sparkpost: %w (SPARKPOST_API_KEY is empty)", ErrNotConfigured)
		}
		client := &http.Client{Timeout: cfg.Email.Timeout()}
		return NewSparkPostSender(cfg.SparkPost.APIKey, cfg.SparkPost.BaseURL, client), nil
	case "log", "":
		return NewLogSender(nil), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}
