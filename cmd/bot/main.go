package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dkarpov/warescan/internal/buffer"
	"github.com/dkarpov/warescan/internal/config"
	"github.com/dkarpov/warescan/internal/queue"
	"github.com/dkarpov/warescan/internal/telegram"
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

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatal().Err(err).Msg("init telegram bot")
	}
	log.Info().Str("username", bot.Self.UserName).Msg("telegram bot authorized")

	tasks := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer tasks.Close()

	notifier := telegram.NewNotifier(bot)

	flush := func(chatID int64, items []buffer.Item) {
		payload := queue.ProcessPayload{ChatID: chatID, Items: items}
		if err := queue.EnqueueProcess(ctx, tasks, payload); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("enqueue batch failed")
		}
	}
	started := func(chatID int64) {
		if err := notifier.Send(chatID, "🔍 Processing..."); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("processing notification failed")
		}
	}
	buffers := buffer.NewManager(cfg.BufferTimeout, cfg.BufferMax, flush, started, log)

	ingestor := telegram.NewIngestor(bot, buffers, tasks, notifier, log)
	if err := ingestor.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("ingestor stopped")
		os.Exit(1)
	}
}
