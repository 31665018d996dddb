package services

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"smartbee/config"
	"smartbee/models"
)

// TelegramNotifier pushes high and critical alerts to a Telegram chat as an
// out-of-band channel next to the websocket fan-out. Notifications are
// throttled per node so a flapping sensor does not flood the chat.
type TelegramNotifier struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	throttle time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	lastAlert map[string]time.Time
}

// NewTelegramNotifier authenticates the bot and verifies connectivity.
func NewTelegramNotifier(cfg *config.Config, logger *zap.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	return &TelegramNotifier{
		bot:       bot,
		chatID:    chatID,
		throttle:  cfg.AlertThrottle,
		logger:    logger,
		lastAlert: make(map[string]time.Time),
	}, nil
}

// NotifyAlert sends a formatted message for high and critical alerts. Lower
// severities are only delivered through the real-time feed.
func (n *TelegramNotifier) NotifyAlert(a *models.AlertEvent) error {
	if a.Severity != models.SeverityHigh && a.Severity != models.SeverityCritical {
		return nil
	}
	if n.shouldThrottle(a.NodeID) {
		n.logger.Debug("Throttling alert notification", zap.String("node_id", a.NodeID))
		return nil
	}

	msg := tgbotapi.NewMessage(n.chatID, n.formatAlert(a))
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}

	n.mu.Lock()
	n.lastAlert[a.NodeID] = time.Now()
	n.mu.Unlock()

	return nil
}

// SendStartupMessage announces that the service is up.
func (n *TelegramNotifier) SendStartupMessage() error {
	msg := tgbotapi.NewMessage(n.chatID, "🐝 <b>SmartBee</b> telemetry service started")
	msg.ParseMode = "HTML"
	_, err := n.bot.Send(msg)
	return err
}

func (n *TelegramNotifier) shouldThrottle(nodeID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	last, ok := n.lastAlert[nodeID]
	return ok && time.Since(last) < n.throttle
}

func (n *TelegramNotifier) formatAlert(a *models.AlertEvent) string {
	icon := "⚠️"
	if a.Severity == models.SeverityCritical {
		icon = "🚨"
	}
	return fmt.Sprintf(
		"%s <b>%s</b>\n\nNodo: <code>%s</code>\n%s\nValor: <code>%.1f</code>\nSeveridad: %s\nHora: %s",
		icon,
		a.Kind,
		a.NodeID,
		a.Message,
		a.Value,
		a.Severity,
		a.TriggeredAt.Format("2006-01-02 15:04:05"),
	)
}
