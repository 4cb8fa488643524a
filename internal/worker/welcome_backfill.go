package worker

import (
	"context"
	"time"

	"github.com/ignite/creator-waitlist/internal/pkg/distlock"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
	"github.com/ignite/creator-waitlist/internal/service/signup"
)

// =============================================================================
// WELCOME BACKFILL WORKER
// =============================================================================
// The signup request sends the welcome email once and never retries. Records
// whose send failed keep welcome_email_sent = false; this worker sweeps them
// after a grace period and sends again. A lock keeps replicas from sweeping
// the same batch.

const (
	// DefaultBackfillInterval is how often the sweep runs.
	DefaultBackfillInterval = 15 * time.Minute
	// DefaultBackfillLockTTL bounds how long a crashed holder blocks other
	// replicas. A running sweep keeps renewing it.
	DefaultBackfillLockTTL = 2 * time.Minute

	backfillLockKey = "welcome-backfill"
)

// PendingWelcomeSender is the slice of the signup service the worker drives.
type PendingWelcomeSender interface {
	ResendPendingWelcomes(ctx context.Context, minAge time.Duration, limit int) (*signup.BackfillResult, error)
}

// LockFactory returns a fresh lock instance for one sweep.
type LockFactory func(key string, ttl time.Duration) distlock.DistLock

// BackfillOptions tunes the sweep.
type BackfillOptions struct {
	Interval  time.Duration
	MinAge    time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// WelcomeBackfill periodically resends welcome emails that never went out.
type WelcomeBackfill struct {
	svc     PendingWelcomeSender
	newLock LockFactory
	opts    BackfillOptions
	log     *logger.Logger
}

// NewWelcomeBackfill creates a backfill worker.
func NewWelcomeBackfill(svc PendingWelcomeSender, newLock LockFactory, opts BackfillOptions) *WelcomeBackfill {
	if opts.Interval <= 0 {
		opts.Interval = DefaultBackfillInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultBackfillLockTTL
	}
	return &WelcomeBackfill{
		svc:     svc,
		newLock: newLock,
		opts:    opts,
		log:     logger.Component("welcome-backfill"),
	}
}

// Start runs a sweep immediately and then on every interval. It blocks
// until ctx is cancelled.
func (w *WelcomeBackfill) Start(ctx context.Context) {
	w.log.Info("starting", "interval", w.opts.Interval.String(), "min_age", w.opts.MinAge.String(),
		"batch_size", w.opts.BatchSize, "lock_ttl", w.opts.LockTTL.String())
	w.runLogged(ctx)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("stopping")
			return
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

func (w *WelcomeBackfill) runLogged(ctx context.Context) {
	if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
		w.log.Error("sweep failed", "err", err)
	}
}

// RunOnce performs a single sweep. It returns a nil result when another
// replica holds the lock.
func (w *WelcomeBackfill) RunOnce(ctx context.Context) (*signup.BackfillResult, error) {
	lock := w.newLock(backfillLockKey, w.opts.LockTTL)

	var res *signup.BackfillResult
	start := time.Now()
	ran, err := distlock.WithLock(ctx, lock, func(ctx context.Context) error {
		stop := distlock.KeepAlive(ctx, lock, w.opts.LockTTL, func(err error) {
			w.log.Warn("lost sweep lock", "err", err)
		})
		defer stop()

		var err error
		res, err = w.svc.ResendPendingWelcomes(ctx, w.opts.MinAge, w.opts.BatchSize)
		return err
	})
	if err != nil {
		return res, err
	}
	if !ran {
		w.log.Debug("sweep skipped, lock held elsewhere")
		return nil, nil
	}
	if res.Scanned > 0 {
		w.log.Info("sweep complete",
			"scanned", res.Scanned, "sent", res.Sent, "failed", res.Failed,
			"duration", time.Since(start).Round(time.Millisecond).String())
	}
	return res, nil
}
