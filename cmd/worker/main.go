package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ignite/creator-waitlist/internal/app"
	"github.com/ignite/creator-waitlist/internal/config"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single backfill sweep and exit")
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	log := logger.Component("worker")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error("failed to initialize", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	backfill := a.WelcomeBackfill()
	if *once {
		res, err := backfill.RunOnce(ctx)
		if err != nil {
			log.Error("backfill failed", "err", err)
			os.Exit(1)
		}
		if res == nil {
			log.Info("backfill skipped, another worker holds the lock")
			return
		}
		log.Info("backfill complete", "scanned", res.Scanned, "sent", res.Sent, "failed", res.Failed)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		backfill.Start(ctx)
	}()
	log.Info("welcome backfill started", "interval", cfg.Backfill.Interval().String())

	if consumer := a.SESConsumer(); consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
		log.Info("ses event consumer started", "queue", cfg.Events.SESEventsQueueURL)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	cancel()
	wg.Wait()
	log.Info("worker stopped")
}
