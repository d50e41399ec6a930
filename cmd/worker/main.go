package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seniorshield/fraud-engine/configs"
	"github.com/seniorshield/fraud-engine/internal/fraud"
	"github.com/seniorshield/fraud-engine/internal/queue"
	"github.com/seniorshield/fraud-engine/internal/repositories"
	"github.com/seniorshield/fraud-engine/internal/situations"
)

func main() {
	_ = godotenv.Load()

	cfg := configs.Load()
	setupLogging(cfg.Environment)

	log.Info().
		Str("environment", cfg.Environment).
		Int("concurrency", cfg.Worker.Concurrency).
		Msg("Starting fraud scoring worker")

	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	streamClient, err := queue.NewStreamClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Stream")
	}
	defer streamClient.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Cache")
	}
	defer cacheClient.Close()

	store := repositories.NewFraudStore(db)
	engine := fraud.NewEngine()
	service := fraud.NewService(engine, store, cacheClient)
	service.SetScoreHistory(repositories.NewScoreHistoryRepository(db))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Train from the stored population before consuming events.
	if err := service.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize fraud service")
	}

	workerPool := fraud.NewWorkerPool(
		cfg.Worker.Concurrency,
		service,
		streamClient,
		cfg.Worker,
	)

	reminderService := situations.NewReminderService(
		repositories.NewSituationRepository(db),
		repositories.NewAlertRepository(db),
		cfg.Reminder.Interval,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- workerPool.Start(ctx)
	}()
	go func() {
		if err := reminderService.Run(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Reminder service error")
		}
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Worker pool error")
		}
	}

	if err := workerPool.Stop(); err != nil {
		log.Error().Err(err).Msg("Failed to stop worker pool")
	}

	log.Info().Msg("Worker shutdown complete")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
