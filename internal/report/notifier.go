package report

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"token-screener/internal/logging"
	"token-screener/internal/observability"
)

// Notifier delivers a rendered digest.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// LogNotifier writes digests to the log. Used when no chat is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logging.OrNop(logger).Named("notifier")}
}

// Notify logs the digest.
func (n *LogNotifier) Notify(_ context.Context, text string) error {
	n.logger.Info("digest (telegram not configured)", zap.String("text", text))
	return nil
}

// TelegramBot is the subset of the bot API used for sending.
type TelegramBot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BotFactory creates bots; tests substitute a fake.
type BotFactory func(token, apiEndpoint string, client *http.Client) (TelegramBot, error)

var defaultBotFactory BotFactory = func(token, apiEndpoint string, client *http.Client) (TelegramBot, error) {
	return tgbotapi.NewBotAPIWithClient(token, apiEndpoint, client)
}

// TelegramOptions configures a TelegramNotifier.
type TelegramOptions struct {
	Token       string
	ChatID      int64
	APIEndpoint string        // Default: tgbotapi.APIEndpoint
	Timeout     time.Duration // HTTP client timeout. Default: 20s
	Factory     BotFactory
}

// TelegramNotifier sends digests to one chat using Markdown parse mode.
// The bot is created on first use.
type TelegramNotifier struct {
	opts TelegramOptions

	mu  sync.Mutex
	bot TelegramBot
}

// NewTelegramNotifier creates a TelegramNotifier.
func NewTelegramNotifier(opts TelegramOptions) (*TelegramNotifier, error) {
	if opts.Token == "" || opts.ChatID == 0 {
		return nil, errors.New("telegram token and chat id are required")
	}
	if opts.APIEndpoint == "" {
		opts.APIEndpoint = tgbotapi.APIEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Factory == nil {
		opts.Factory = defaultBotFactory
	}
	return &TelegramNotifier{opts: opts}, nil
}

// telegram rejects messages over 4096 characters
const maxMessageLen = 4000

// Notify sends text, split on line boundaries when too long.
func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	done := make(chan error, 1)
	go func() { done <- n.send(text) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	}
}

func (n *TelegramNotifier) send(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.bot == nil {
		bot, err := n.opts.Factory(n.opts.Token, n.opts.APIEndpoint, &http.Client{Timeout: n.opts.Timeout})
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		n.bot = bot
	}

	for _, chunk := range splitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(n.opts.ChatID, chunk)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := n.bot.Send(msg); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for len(text) > maxLen {
		idx := strings.LastIndex(text[:maxLen], "\n")
		if idx <= 0 {
			idx = maxLen
			for idx > 0 && !utf8.RuneStart(text[idx]) {
				idx--
			}
			if idx == 0 {
				idx = maxLen
			}
		}
		chunks = append(chunks, text[:idx])
		text = strings.TrimLeft(text[idx:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// Dispatch delivers text under its own timeout. Failures are logged and
// counted, never returned; the result reports whether delivery succeeded.
func Dispatch(ctx context.Context, n Notifier, text string, timeout time.Duration, logger *zap.Logger) bool {
	if n == nil {
		return false
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := n.Notify(ctx, text); err != nil {
		observability.RecordNotification("failed")
		logging.OrNop(logger).Warn("notification failed", zap.Error(err))
		return false
	}
	observability.RecordNotification("sent")
	return true
}
