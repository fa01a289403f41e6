package alerts

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/sitepulse/tokenvault/internal/logging"
)

// Notifier receives operator notifications about credential failures.
// Implementations must never block the credential path.
type Notifier interface {
	Notify(alert *Alert)
}

// NoopNotifier discards all alerts.
type NoopNotifier struct{}

// Notify implements Notifier.
func (NoopNotifier) Notify(*Alert) {}

// Sender delivers one rendered message. The production sender is Telegram;
// tests swap it out.
type Sender func(text string) error

// TelegramNotifier sends alerts to an operator chat, deduplicated per
// user+type and rate capped globally. Sends happen on the caller's
// goroutine deliberately kept cheap: one HTTP POST, errors logged and
// dropped.
type TelegramNotifier struct {
	send     Sender
	dedup    *DedupStore
	throttle *Throttler
	logger   *logging.Logger
}

// NotifierOption configures a TelegramNotifier.
type NotifierOption func(*TelegramNotifier)

// WithSender replaces the Telegram delivery with a custom Sender.
func WithSender(send Sender) NotifierOption {
	return func(n *TelegramNotifier) {
		n.send = send
	}
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(logger *logging.Logger) NotifierOption {
	return func(n *TelegramNotifier) {
		n.logger = logger
	}
}

// NewTelegramNotifier creates a notifier for the given bot and chat.
func NewTelegramNotifier(botToken string, chatID int64, throttle *Throttler, dedup *DedupStore, opts ...NotifierOption) *TelegramNotifier {
	n := &TelegramNotifier{
		send:     telegramSender(botToken, chatID),
		dedup:    dedup,
		throttle: throttle,
		logger:   logging.NewLogger(),
	}
	if n.dedup == nil {
		n.dedup = NewDedupStore(0)
	}
	if n.throttle == nil {
		n.throttle = NewThrottler(0, 0)
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify implements Notifier.
func (n *TelegramNotifier) Notify(alert *Alert) {
	key := alert.AlertKey()
	if n.dedup.IsDuplicate(key) {
		return
	}
	if !n.throttle.Allow() {
		n.logger.Warn("alert dropped by rate cap",
			"alert_type", string(alert.Type),
			"user_id", alert.UserID,
		)
		return
	}

	if err := n.send(alert.Message()); err != nil {
		n.logger.Error("failed to send alert",
			"alert_type", string(alert.Type),
			"user_id", alert.UserID,
			"error", err.Error(),
		)
		return
	}
	n.dedup.Record(key)
}

// telegramSender builds the production Sender. A bad token yields a sender
// that silently drops, matching the "alerts must never break the app" rule.
func telegramSender(botToken string, chatID int64) Sender {
	botToken = strings.TrimSpace(botToken)
	if botToken == "" || chatID == 0 {
		return func(string) error { return nil }
	}
	return func(text string) error {
		bot, err := tgbotapi.NewBotAPI(botToken)
		if err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = "Markdown"
		_, err = bot.Send(msg)
		return err
	}
}

var _ Notifier = (*TelegramNotifier)(nil)
var _ Notifier = NoopNotifier{}
