package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  public_base_url: "https://waitlist.example.com"
  allowed_origins: ["https://example.com"]

database:
  driver: postgres
  url: "postgres://localhost/waitlist"
  timeout_seconds: 3

email:
  provider: ses
  from_address: "team@example.com"
  signing_key: "s3cret"

backfill:
  enabled: true
  interval_minutes: 5
  batch_size: 25

log:
  level: debug
  redact_pii: false
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "https://waitlist.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 3*time.Second, cfg.Database.Timeout())

	assert.Equal(t, "ses", cfg.Email.Provider)
	assert.Equal(t, "team@example.com", cfg.Email.FromAddress)
	assert.Equal(t, "s3cret", cfg.Email.SigningKey)

	assert.True(t, cfg.Backfill.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Backfill.Interval())
	assert.Equal(t, 25, cfg.Backfill.BatchSize)
	assert.Equal(t, 30*time.Minute, cfg.Backfill.MinAge())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.Redact())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicBaseURL)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 5*time.Second, cfg.Database.Timeout())
	assert.Equal(t, "log", cfg.Email.Provider)
	assert.Equal(t, 10*time.Second, cfg.Email.Timeout())
	assert.Equal(t, "https://api.sparkpost.com/api/v1", cfg.SparkPost.BaseURL)
	assert.False(t, cfg.Backfill.Enabled)
	assert.True(t, cfg.Log.Redact())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("{}"), 0644))

	t.Setenv("DATABASE_URL", "postgres://user@db/waitlist")
	t.Setenv("EMAIL_PROVIDER", "sparkpost")
	t.Setenv("SPARKPOST_API_KEY", "sp-key")
	t.Setenv("EMAIL_SIGNING_KEY", "env-key")
	t.Setenv("PUBLIC_BASE_URL", "https://creators.example.com")
	t.Setenv("PORT", "7070")
	t.Setenv("ADMIN_TOKEN", "ops-token")
	t.Setenv("SES_EVENTS_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/ses-events")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://user@db/waitlist", cfg.Database.URL)
	assert.Equal(t, "sparkpost", cfg.Email.Provider)
	assert.Equal(t, "sp-key", cfg.SparkPost.APIKey)
	assert.Equal(t, "env-key", cfg.Email.SigningKey)
	assert.Equal(t, "https://creators.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "ops-token", cfg.Server.AdminToken)
	assert.Equal(t, "https://sqs.us-east-1.amazonaws.com/123/ses-events", cfg.Events.SESEventsQueueURL)
}
