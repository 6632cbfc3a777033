package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// TelegramSender is the subset of *tgbotapi.BotAPI used here.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts admin alerts to a fixed chat.
type TelegramNotifier struct {
	bot    TelegramSender
	chatID int64
}

// NewTelegramBot authenticates against the Bot API.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return bot, nil
}

// NewTelegramNotifier wraps a bot bound to chatID.
func NewTelegramNotifier(bot TelegramSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

// Channel implements Notifier.
func (t *TelegramNotifier) Channel() string { return "telegram" }

// Send implements Notifier. Recipients are ignored; alerts always go to the admin chat.
func (t *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	if t.chatID == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	out := tgbotapi.NewMessage(t.chatID, text)
	out.DisableWebPagePreview = true
	if _, err := t.bot.Send(out); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
