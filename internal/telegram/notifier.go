// Package telegram holds the chat-platform transport: the long-poll update
// ingestor, outbound notifications and file retrieval.
package telegram

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes carried by the inline action buttons.
const (
	CallbackDelete = "del:"
	CallbackRetry  = "retry:"
)

// Notifier sends outbound chat messages. Batch notifications use HTML parse
// mode and attach the retry/delete inline keyboard.
type Notifier struct {
	bot *tgbotapi.BotAPI
}

// NewNotifier constructs a Notifier over an authorized bot.
func NewNotifier(bot *tgbotapi.BotAPI) *Notifier {
	return &Notifier{bot: bot}
}

// Send delivers a plain text message.
func (n *Notifier) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendActions delivers an HTML message with the batch action buttons. The
// delete button is always attached; retry only when the batch was processed
// far enough for a re-run to make sense.
func (n *Notifier) SendActions(chatID int64, html, correlationID string, withRetry bool) error {
	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML

	var buttons []tgbotapi.InlineKeyboardButton
	if withRetry {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData("🔄 Retry", CallbackRetry+correlationID))
	}
	buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData("Delete all", CallbackDelete+correlationID))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...))

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}
