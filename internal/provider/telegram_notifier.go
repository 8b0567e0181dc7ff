package provider

import (
	"context"
	"fmt"
	"strconv"

	"escrow_engine/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier delivers notifications as Telegram messages.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier creates a notifier from a bot token.
func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot}, nil
}

func (t *TelegramNotifier) Name() string { return "telegram" }

func (t *TelegramNotifier) send(n Notification) domain.ProviderResult {
	chatID := n.ChatID
	if chatID == 0 {
		chatID = n.UserID
	}

	text := n.Body
	if n.Subject != "" {
		text = "*" + n.Subject + "*\n" + n.Body
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	sent, err := t.bot.Send(msg)
	if err != nil {
		// Telegram API errors are usually transient (rate limits, timeouts)
		return domain.Fail(t.Name(), "telegram_send_failed", err.Error(), true)
	}

	res := domain.OK(t.Name(), "message delivered", nil)
	res.ExternalReference = strconv.Itoa(sent.MessageID)
	return res
}

func (t *TelegramNotifier) SendNotification(_ context.Context, n Notification) domain.ProviderResult {
	return t.send(n)
}

func (t *TelegramNotifier) SendBulkNotification(ctx context.Context, ns []Notification) domain.ProviderResult {
	delivered := 0
	for _, n := range ns {
		if ctx.Err() != nil {
			break
		}
		if res := t.send(n); res.Success {
			delivered++
		}
	}
	return domain.OK(t.Name(), "bulk delivery finished", map[string]interface{}{
		"requested": len(ns),
		"delivered": delivered,
	})
}

func (t *TelegramNotifier) CheckDeliveryStatus(_ context.Context, externalRef string) domain.ProviderResult {
	// Telegram does not expose per-message delivery lookups; a successful
	// send is the delivery confirmation.
	return domain.OK(t.Name(), "delivered", map[string]interface{}{"message_id": externalRef})
}
