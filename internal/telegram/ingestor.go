package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dkarpov/warescan/internal/buffer"
	"github.com/dkarpov/warescan/internal/queue"
)

// pollTimeout bounds the getUpdates long poll. It is kept short so the
// buffer expiry sweep runs at least once per cycle even on a quiet bot.
const pollTimeout = 2 // seconds

// errorPause is how long the loop sleeps after a transport failure before
// resuming from the last acknowledged offset.
const errorPause = 5 * time.Second

// pacing between polling cycles.
const cyclePause = 100 * time.Millisecond

// Ingestor is the single long-poll loop feeding the chat buffer manager and
// translating inline-button callbacks into queue tasks.
type Ingestor struct {
	bot     *tgbotapi.BotAPI
	buffers *buffer.Manager
	tasks   *asynq.Client
	notify  *Notifier
	log     zerolog.Logger
}

// NewIngestor constructs the update loop.
func NewIngestor(bot *tgbotapi.BotAPI, buffers *buffer.Manager, tasks *asynq.Client, notify *Notifier, log zerolog.Logger) *Ingestor {
	return &Ingestor{bot: bot, buffers: buffers, tasks: tasks, notify: notify, log: log}
}

// Run polls for updates until the context is cancelled. Transport errors are
// logged and followed by a short pause; the loop never aborts on them. The
// acknowledgment offset is process-local, so at-least-once redelivery after
// a restart is expected and tolerated.
func (i *Ingestor) Run(ctx context.Context) error {
	i.log.Info().Msg("bot started, listening for updates")

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req := tgbotapi.NewUpdate(offset)
		req.Timeout = pollTimeout
		req.AllowedUpdates = []string{"message", "callback_query"}

		updates, err := i.bot.GetUpdates(req)
		if err != nil {
			i.log.Error().Err(err).Msg("getUpdates failed")
			if !sleep(ctx, errorPause) {
				return ctx.Err()
			}
			continue
		}

		for _, update := range updates {
			offset = update.UpdateID + 1
			i.handleUpdate(ctx, update)
		}

		i.buffers.SweepExpired(time.Now())

		if !sleep(ctx, cyclePause) {
			return ctx.Err()
		}
	}
}

func (i *Ingestor) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		i.handleMessage(update.Message)
	case update.CallbackQuery != nil:
		i.handleCallback(ctx, update.CallbackQuery)
	}
}

func (i *Ingestor) handleMessage(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Text {
	case "/start":
		i.send(chatID, "Send photos, I'll extract barcodes/QR. /ping - check.")
		return
	case "/ping":
		i.send(chatID, "pong")
		return
	}

	if len(msg.Photo) == 0 {
		return
	}
	// The last PhotoSize is the largest rendition.
	largest := msg.Photo[len(msg.Photo)-1]
	i.buffers.Add(chatID, buffer.Item{FileID: largest.FileID, MessageID: msg.MessageID})
}

func (i *Ingestor) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := i.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		i.log.Error().Err(err).Msg("answer callback failed")
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(cb.Data, CallbackDelete):
		correlationID := strings.TrimPrefix(cb.Data, CallbackDelete)
		payload := queue.ActionPayload{ChatID: chatID, CorrelationID: correlationID}
		if err := queue.EnqueueDelete(ctx, i.tasks, payload); err != nil {
			i.log.Error().Err(err).Str("correlation_id", correlationID).Msg("enqueue delete failed")
		}
	case strings.HasPrefix(cb.Data, CallbackRetry):
		correlationID := strings.TrimPrefix(cb.Data, CallbackRetry)
		payload := queue.ActionPayload{ChatID: chatID, CorrelationID: correlationID}
		if err := queue.EnqueueRetry(ctx, i.tasks, payload); err != nil {
			i.log.Error().Err(err).Str("correlation_id", correlationID).Msg("enqueue retry failed")
		}
	}
}

func (i *Ingestor) send(chatID int64, text string) {
	if err := i.notify.Send(chatID, text); err != nil {
		i.log.Error().Err(err).Int64("chat_id", chatID).Msg("send failed")
	}
}

// sleep waits for d or context cancellation, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
