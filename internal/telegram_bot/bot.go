// Package telegram_bot sends moderator alerts to a Telegram chat.
package telegram_bot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"chat-escrow/internal/moderation"
)

// Config configures the alert bot. APIEndpoint overrides the Telegram API
// URL template and is meant for tests.
type Config struct {
	BotToken    string
	ChatID      int64
	APIEndpoint string
}

// Notifier posts flagged-message alerts. Alerts carry ids and the verdict
// only, never message content.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

// NewNotifier creates a new Telegram notifier
func NewNotifier(cfg Config, logger *zap.Logger) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, endpoint, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))
	return &Notifier{api: botAPI, chatID: cfg.ChatID, logger: logger}, nil
}

// NotifyFlagged implements moderation.Notifier.
func (n *Notifier) NotifyFlagged(ctx context.Context, alert moderation.FlagAlert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, FormatAlert(alert))
	msg.DisableWebPagePreview = true

	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send Telegram alert: %w", err)
	}
	n.logger.Info("Moderator alert sent", zap.String("message_id", alert.MessageID))
	return nil
}

// FormatAlert renders the alert text.
func FormatAlert(alert moderation.FlagAlert) string {
	var b strings.Builder
	b.WriteString("🚩 Message flagged by moderation\n\n")
	fmt.Fprintf(&b, "Message ID: %s\n", alert.MessageID)
	if alert.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", alert.Category)
	}
	if alert.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", alert.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}
