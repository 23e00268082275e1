package notify

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"market-tracker/internal/config"
)

// TelegramNotifier sends notifications through a Telegram bot. The bot is
// created on first use so an unreachable Telegram does not block startup.
type TelegramNotifier struct {
	token    string
	chatID   int64
	endpoint string
	enabled  bool

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier creates a new TelegramNotifier.
func NewTelegramNotifier(cfg config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{
		token:    cfg.BotToken,
		chatID:   cfg.ChatID,
		endpoint: tgbotapi.APIEndpoint,
		enabled:  cfg.Enabled && cfg.BotToken != "" && cfg.ChatID != 0,
	}
}

// Name returns the name of the notifier.
func (t *TelegramNotifier) Name() string { return "telegram" }

// IsEnabled returns whether the notifier is enabled.
func (t *TelegramNotifier) IsEnabled() bool { return t.enabled }

func (t *TelegramNotifier) client() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.token, t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting telegram bot: %w", err)
	}
	t.bot = bot
	return bot, nil
}

// Send sends the notification as a plain text message.
func (t *TelegramNotifier) Send(ctx context.Context, n Notification) error {
	if !t.enabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := t.client()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, n.Title+"\n"+n.Message)
	if _, err := bot.Send(msg); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}
