package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dkarpov/warescan/internal/batch"
	"github.com/dkarpov/warescan/internal/config"
	"github.com/dkarpov/warescan/internal/database"
	"github.com/dkarpov/warescan/internal/decode"
	"github.com/dkarpov/warescan/internal/pochtoy"
	"github.com/dkarpov/warescan/internal/repository"
	"github.com/dkarpov/warescan/internal/s3storage"
	"github.com/dkarpov/warescan/internal/telegram"
	"github.com/dkarpov/warescan/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := cfg.RequireTelegram(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}
	repo := repository.NewBatchRepository(pool)

	store, err := s3storage.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure bucket")
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatal().Err(err).Msg("init telegram bot")
	}

	orch := batch.New(
		repo,
		store,
		telegram.NewFileSource(bot),
		decode.FromConfig(cfg, log),
		pochtoy.New(cfg.PochtoyAPIURL, cfg.PochtoyAPIToken, log),
		telegram.NewNotifier(bot),
		log,
	)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		// Concurrency 1 keeps batch notifications FIFO per chat.
		Concurrency: cfg.WorkerConcurrency,
	})
	processor := worker.NewProcessor(orch, log)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
