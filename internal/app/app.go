// Package app wires configuration into the running set of stores, services
// and background workers shared by the server and worker binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/creator-waitlist/internal/api"
	"github.com/ignite/creator-waitlist/internal/config"
	"github.com/ignite/creator-waitlist/internal/esp"
	"github.com/ignite/creator-waitlist/internal/events"
	"github.com/ignite/creator-waitlist/internal/mailing"
	"github.com/ignite/creator-waitlist/internal/migrations"
	"github.com/ignite/creator-waitlist/internal/pkg/distlock"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
	"github.com/ignite/creator-waitlist/internal/repository/dynamo"
	"github.com/ignite/creator-waitlist/internal/repository/postgres"
	"github.com/ignite/creator-waitlist/internal/repository/sqlite"
	"github.com/ignite/creator-waitlist/internal/service/notification"
	"github.com/ignite/creator-waitlist/internal/service/signup"
	"github.com/ignite/creator-waitlist/internal/worker"
)

// Store is what every signup storage backend provides.
type Store interface {
	signup.Repository
	Ping(ctx context.Context) error
}

// App holds the wired dependencies.
type App struct {
	Config   *config.Config
	Store    Store
	DB       *sql.DB // set only for the postgres driver
	Redis    *redis.Client
	SQS      *sqs.Client
	Links    *mailing.UnsubscribeLinks
	Pages    *mailing.Pages
	Notifier *notification.Service
	Signups  *signup.Service

	closers []func() error
	log     *logger.Logger
}

// New builds the application from cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.Redact())

	a := &App{Config: cfg, log: logger.Component("app")}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var publisher *events.Publisher
	if cfg.Events.SQSQueueURL != "" || cfg.Events.SESEventsQueueURL != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Events.AWSRegion))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("aws config: %w", err)
		}
		a.SQS = sqs.NewFromConfig(awsCfg)
	}
	if cfg.Events.SQSQueueURL != "" {
		publisher = events.NewPublisher(a.SQS, cfg.Events.SQSQueueURL)
		a.log.Info("event fan-out enabled", "queue", cfg.Events.SQSQueueURL)
	}
	recorder := events.NewRecorder(a.Store, publisher)

	provider, err := esp.New(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("email provider: %w", err)
	}

	a.Links = mailing.NewUnsubscribeLinks(cfg.Server.PublicBaseURL, cfg.Email.SigningKey)
	renderer, err := mailing.NewRenderer(a.Links, cfg.Server.PublicBaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("templates: %w", err)
	}
	if a.Pages, err = mailing.NewPages(); err != nil {
		a.Close()
		return nil, fmt.Errorf("pages: %w", err)
	}

	a.Notifier = notification.NewService(renderer, provider, recorder, notification.Options{
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		ReplyTo:     cfg.Email.ReplyTo,
		Timeout:     cfg.Email.Timeout(),
	})
	a.Signups = signup.NewService(a.Store, a.Notifier, recorder, signup.Options{
		StoreTimeout: cfg.Database.Timeout(),
	})

	a.log.Info("initialized",
		"store", cfg.Database.Driver,
		"email_provider", provider.Name(),
		"templates", renderer.Templates(),
		"signed_links", a.Links.Signed(),
		"redis", a.Redis != nil,
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config.Database
	switch cfg.Driver {
	case "postgres":
		if cfg.URL == "" {
			return errors.New("postgres: DATABASE_URL is empty")
		}
		db, err := sql.Open("postgres", cfg.URL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
		db.SetConnMaxLifetime(5 * time.Minute)
		a.closers = append(a.closers, db.Close)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := migrations.Up(ctx, db, migrations.Postgres); err != nil {
				return err
			}
		}
		a.DB = db
		a.Store = postgres.NewSignupRepo(db)
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.Store = store
	case "dynamodb":
		store, err := dynamo.New(ctx, cfg.DynamoDBTable, cfg.AWSRegion, cfg.AWSProfile)
		if err != nil {
			return err
		}
		a.Store = store
	default:
		return fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	return nil
}

func (a *App) openRedis(ctx context.Context) error {
	if a.Config.Redis.URL == "" {
		return nil
	}
	opts, err := redis.ParseURL(a.Config.Redis.URL)
	if err != nil {
		opts = &redis.Options{Addr: a.Config.Redis.URL}
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		// Locking falls back to the database or the local process.
		a.log.Warn("redis unavailable, continuing without it", "err", err)
		return nil
	}
	a.Redis = client
	return nil
}

// APIDeps returns the dependencies for the HTTP layer.
func (a *App) APIDeps() api.Deps {
	return api.Deps{
		Signups:  a.Signups,
		Notifier: a.Notifier,
		Links:    a.Links,
		Pages:    a.Pages,
		Health:   api.NewHealthChecker(a.Store, a.Config.Database.Driver, a.Redis),
	}
}

// WelcomeBackfill returns the unsent-welcome sweep configured from Backfill.
func (a *App) WelcomeBackfill() *worker.WelcomeBackfill {
	newLock := func(key string, ttl time.Duration) distlock.DistLock {
		return distlock.NewLock(a.Redis, a.DB, key, ttl)
	}
	return worker.NewWelcomeBackfill(a.Signups, newLock, worker.BackfillOptions{
		Interval:  a.Config.Backfill.Interval(),
		MinAge:    a.Config.Backfill.MinAge(),
		BatchSize: a.Config.Backfill.BatchSize,
	})
}

// SESConsumer returns the SES engagement consumer, or nil when no queue is
// configured.
func (a *App) SESConsumer() *events.Consumer {
	if a.SQS == nil || a.Config.Events.SESEventsQueueURL == "" {
		return nil
	}
	return events.NewConsumer(a.SQS, a.Config.Events.SESEventsQueueURL, a.Signups, isPermanent)
}

// isPermanent reports errors that will not succeed on redelivery.
func isPermanent(err error) bool {
	return errors.Is(err, signup.ErrNotFound) || signup.IsClientError(err)
}

// Close releases every opened resource in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "err", err)
		}
	}
	a.closers = nil
}
