package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the waitlist service
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Email     EmailConfig     `yaml:"email"`
	SES       SESConfig       `yaml:"ses"`
	SparkPost SparkPostConfig `yaml:"sparkpost"`
	Redis     RedisConfig     `yaml:"redis"`
	Events    EventsConfig    `yaml:"events"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int      `yaml:"port"`
	Host            string   `yaml:"host"`
	PublicBaseURL   string   `yaml:"public_base_url"` // used to build unsubscribe links
	AllowedOrigins  []string `yaml:"allowed_origins"`
	AdminToken      string   `yaml:"admin_token"` // bearer token for notify/events/stats; empty leaves them open
	ShutdownSeconds int      `yaml:"shutdown_seconds"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// DatabaseConfig selects and configures the signup store.
type DatabaseConfig struct {
	Driver         string `yaml:"driver"` // "postgres", "sqlite" or "dynamodb"
	URL            string `yaml:"url"`
	SQLitePath     string `yaml:"sqlite_path"`
	DynamoDBTable  string `yaml:"dynamodb_table"`
	AWSRegion      string `yaml:"aws_region"`
	AWSProfile     string `yaml:"aws_profile"` // empty uses the default credential chain
	MaxOpenConns   int    `yaml:"max_open_conns"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	AutoMigrate    bool   `yaml:"auto_migrate"`
}

// Timeout returns the per-call database timeout
func (c DatabaseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EmailConfig holds outbound email settings shared by all providers
type EmailConfig struct {
	Provider       string `yaml:"provider"` // "ses", "sparkpost" or "log"
	FromAddress    string `yaml:"from_address"`
	FromName       string `yaml:"from_name"`
	ReplyTo        string `yaml:"reply_to"`
	SigningKey     string `yaml:"signing_key"` // HMAC key for unsubscribe links; empty disables signing
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the provider call timeout
func (c EmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES v2 credentials
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// SparkPostConfig holds SparkPost API configuration
type SparkPostConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// RedisConfig holds the optional Redis connection used for locking.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// EventsConfig holds notification event fan-out and ingestion settings.
type EventsConfig struct {
	SQSQueueURL       string `yaml:"sqs_queue_url"`        // outbound fan-out; empty disables
	SESEventsQueueURL string `yaml:"ses_events_queue_url"` // inbound SES engagement events; empty disables
	AWSRegion         string `yaml:"aws_region"`
}

// BackfillConfig controls the unsent-welcome sweep.
type BackfillConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
	MinAgeMinutes   int  `yaml:"min_age_minutes"`
	BatchSize       int  `yaml:"batch_size"`
}

// Interval returns the sweep interval as a duration
func (c BackfillConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// MinAge returns how old an unsent record must be before it is retried
func (c BackfillConfig) MinAge() time.Duration {
	return time.Duration(c.MinAgeMinutes) * time.Minute
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on (default true).
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Load reads and parses the configuration file. A missing file yields
// defaults so the service can be configured purely from the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = "http://localhost:" + strconv.Itoa(cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if cfg.Server.ShutdownSeconds == 0 {
		cfg.Server.ShutdownSeconds = 10
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "waitlist.db"
	}
	if cfg.Database.AWSRegion == "" {
		cfg.Database.AWSRegion = "us-east-1"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.TimeoutSeconds == 0 {
		cfg.Database.TimeoutSeconds = 5
	}
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "log"
	}
	if cfg.Email.FromAddress == "" {
		cfg.Email.FromAddress = "hello@example.com"
	}
	if cfg.Email.FromName == "" {
		cfg.Email.FromName = "Creator Assistant"
	}
	if cfg.Email.TimeoutSeconds == 0 {
		cfg.Email.TimeoutSeconds = 10
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SparkPost.BaseURL == "" {
		cfg.SparkPost.BaseURL = "https://api.sparkpost.com/api/v1"
	}
	if cfg.Events.AWSRegion == "" {
		cfg.Events.AWSRegion = cfg.Database.AWSRegion
	}
	if cfg.Backfill.IntervalMinutes == 0 {
		cfg.Backfill.IntervalMinutes = 15
	}
	if cfg.Backfill.MinAgeMinutes == 0 {
		cfg.Backfill.MinAgeMinutes = 30
	}
	if cfg.Backfill.BatchSize == 0 {
		cfg.Backfill.BatchSize = 100
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars when deployed.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}

	// DATABASE_URL implies postgres unless a driver is forced
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		cfg.Database.Driver = "postgres"
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.Database.DynamoDBTable = v
	}

	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Email.Provider = v
	}
	if v := os.Getenv("EMAIL_FROM_ADDRESS"); v != "" {
		cfg.Email.FromAddress = v
	}
	if v := os.Getenv("EMAIL_SIGNING_KEY"); v != "" {
		cfg.Email.SigningKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("SPARKPOST_API_KEY"); v != "" {
		cfg.SparkPost.APIKey = v
	}
	if v := os.Getenv("SPARKPOST_BASE_URL"); v != "" {
		cfg.SparkPost.BaseURL = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SQS_EVENTS_QUEUE_URL"); v != "" {
		cfg.Events.SQSQueueURL = v
	}
	if v := os.Getenv("SES_EVENTS_QUEUE_URL"); v != "" {
		cfg.Events.SESEventsQueueURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
