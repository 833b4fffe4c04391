package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v3"
)

type Sender interface {
	Send(ctx context.Context, chatID int64, text string) error
	ProviderID() string
}

type BotConfig struct {
	Token string
	// APIURL overrides the Bot API endpoint (tests, local proxies).
	APIURL string
	// PerSecond and Burst throttle outgoing messages across all chats.
	PerSecond float64
	Burst     int
}

// BotSender delivers HTML messages through the Telegram Bot API.
type BotSender struct {
	bot     *tele.Bot
	limiter *rate.Limiter
}

func NewBotSender(cfg BotConfig) (*BotSender, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram bot token not configured")
	}
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 25
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     strings.TrimSpace(cfg.APIURL),
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &BotSender{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), cfg.Burst),
	}, nil
}

func (s *BotSender) ProviderID() string {
	return "telegram"
}

func (s *BotSender) Send(ctx context.Context, chatID int64, text string) error {
	if chatID == 0 {
		return errors.New("telegram chat id not set")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := s.bot.Send(tele.ChatID(chatID), text, &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// NoopSender is used when no bot token is configured. Messages are only logged.
type NoopSender struct {
	logger *slog.Logger
}

func NewNoopSender(logger *slog.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) ProviderID() string {
	return "telegram-noop"
}

func (s *NoopSender) Send(ctx context.Context, chatID int64, text string) error {
	s.logger.DebugContext(ctx, "telegram disabled; message dropped", "chat_id", chatID, "bytes", len(text))
	return nil
}

// New returns a BotSender, or a NoopSender when the token is empty.
func New(cfg BotConfig, logger *slog.Logger) (Sender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		logger.Warn("TELEGRAM_BOT_TOKEN not set; notifications are logged only")
		return NewNoopSender(logger), nil
	}
	return NewBotSender(cfg)
}
