package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/creator-waitlist/internal/api"
	"github.com/ignite/creator-waitlist/internal/app"
	"github.com/ignite/creator-waitlist/internal/config"
	"github.com/ignite/creator-waitlist/internal/pkg/logger"
)

func main() {
	log := logger.Component("server")

	cfg, err := config.LoadFromEnv(configPath())
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

	// Background loops are opt-in; cmd/worker runs them standalone.
	if cfg.Backfill.Enabled {
		go a.WelcomeBackfill().Start(ctx)
		log.Info("welcome backfill started", "interval", cfg.Backfill.Interval().String())
	}
	if consumer := a.SESConsumer(); consumer != nil {
		go consumer.Run(ctx)
		log.Info("ses event consumer started", "queue", cfg.Events.SESEventsQueueURL)
	}

	server := api.NewServer(cfg.Server, a.APIDeps())

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port))
	}()

	select {
	case <-done:
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("server error", "err", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", "err", err)
	}
	log.Info("server stopped")
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.yaml"
}
