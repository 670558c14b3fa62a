package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bazaarhq/bazaar/internal/auction/outbox"
	"github.com/bazaarhq/bazaar/internal/dbconfig"
)

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	cfg := dbconfig.NewConfigFromEnv()
	db, err := cfg.OpenSQL()
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")

	jsCfg := outbox.DefaultJetStreamConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		jsCfg.URL = url
	}
	publisher, err := outbox.NewJetStreamPublisher(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	wkCfg := outbox.DefaultWorkerConfig()
	if iv := os.Getenv("OUTBOX_POLL_INTERVAL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			wkCfg.PollInterval = d
		}
	}

	repo := outbox.NewRepository(db)
	worker := outbox.NewWorker(db, repo, publisher, wkCfg)

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start outbox worker")
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	if err := worker.Stop(); err != nil {
		log.Error().Err(err).Msg("stop outbox worker")
	}
	log.Info().Msg("graceful shutdown complete")
}
