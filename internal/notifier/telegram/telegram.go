// Package telegram delivers events to a Telegram chat through the Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/newthinker/botdash/internal/core"
	"github.com/newthinker/botdash/internal/notifier"
)

// Telegram implements the Notifier interface for Telegram Bot API
type Telegram struct {
	botToken string
	chatID   int64
	endpoint string
	client   *http.Client

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// New creates a new Telegram notifier for the public Bot API
func New(botToken string, chatID int64) (*Telegram, error) {
	return NewWithEndpoint(botToken, chatID, tgbotapi.APIEndpoint, nil)
}

// NewWithEndpoint creates a notifier against a custom API endpoint. The
// endpoint is a format string taking the token and the method name.
func NewWithEndpoint(botToken string, chatID int64, endpoint string, client *http.Client) (*Telegram, error) {
	if botToken == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("telegram: bot_token is required"))
	}
	if chatID == 0 {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("telegram: chat_id is required"))
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		endpoint: endpoint,
		client:   client,
	}, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

// api connects on first use; the Bot API client checks the token with getMe.
func (t *Telegram) api() (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.botToken, t.endpoint, t.client)
	if err != nil {
		return nil, err
	}
	t.bot = bot
	return bot, nil
}

// Send delivers ev. The Bot API client takes no context, so the request
// runs in the background and Send returns early when ctx is done.
func (t *Telegram) Send(ctx context.Context, ev notifier.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- t.send(ev) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("telegram: %w", ctx.Err()))
	}
}

func (t *Telegram) send(ev notifier.Event) error {
	bot, err := t.api()
	if err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("telegram: connect: %w", err))
	}

	msg := tgbotapi.NewMessage(t.chatID, format(ev))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	if _, err := bot.Send(msg); err != nil {
		return core.WrapError(core.ErrNotifierFailed, fmt.Errorf("telegram: send: %w", err))
	}
	return nil
}

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}

func format(ev notifier.Event) string {
	var sb strings.Builder

	if ev.Kind == notifier.KindSignal && ev.Signal != nil {
		s := ev.Signal
		emoji := "📉"
		if s.Type.IsLong() {
			emoji = "📈"
		}
		sb.WriteString(fmt.Sprintf("%s *%s signal*\n", emoji, esc(string(s.Type))))
		sb.WriteString(esc(fmt.Sprintf("Entry: $%.2f\n", s.Entry)))
		sb.WriteString(esc(fmt.Sprintf("Stop loss: $%.2f\n", s.StopLoss)))
		sb.WriteString(esc(fmt.Sprintf("Take profit: $%.2f\n", s.TakeProfit)))
		sb.WriteString(esc(fmt.Sprintf("ATR: %.2f\n", s.ATR)))
		sb.WriteString(esc("Time: " + s.Timestamp.Raw))
		return sb.String()
	}

	emoji := "ℹ️"
	switch ev.Level {
	case "danger":
		emoji = "🚨"
	case "success":
		emoji = "✅"
	}
	sb.WriteString(fmt.Sprintf("%s %s", emoji, esc(ev.Message)))
	return sb.String()
}
