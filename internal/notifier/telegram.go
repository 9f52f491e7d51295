package notifier

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/john/leakwatch/internal/alert"
)

// BotSender is the part of the Bot API client we use
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram forwards alerts to analyst chats through a bot
type Telegram struct {
	bot     BotSender
	chatIDs []int64
}

// DefaultTimeout bounds every Bot API request.
const DefaultTimeout = 10 * time.Second

// NewTelegram connects a bot by token.
func NewTelegram(token string, chatIDs []int64) (*Telegram, error) {
	return newTelegram(token, tgbotapi.APIEndpoint, DefaultTimeout, chatIDs)
}

func newTelegram(token, endpoint string, timeout time.Duration, chatIDs []int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return NewTelegramWithBot(bot, chatIDs), nil
}

// NewTelegramWithBot wraps an existing sender.
func NewTelegramWithBot(bot BotSender, chatIDs []int64) *Telegram {
	return &Telegram{bot: bot, chatIDs: chatIDs}
}

func (t *Telegram) Name() string { return "telegram" }

// Notify sends the alert to every configured chat, stopping at the first failure.
func (t *Telegram) Notify(ctx context.Context, r alert.Record) error {
	text := formatMessage(r)

	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("send to chat %d: %w", chatID, err)
		}
	}

	return nil
}

func formatMessage(r alert.Record) string {
	var b strings.Builder

	switch r.Kind {
	case alert.KindThreatMatch:
		b.WriteString("🚨 <b>Threat detected</b>\n\n")
	case alert.KindFileDetected:
		b.WriteString("📂 <b>Suspicious file</b>\n\n")
	}

	fmt.Fprintf(&b, "<b>Source:</b> %s\n", html.EscapeString(r.Source))
	fmt.Fprintf(&b, "<b>Actor:</b> @%s\n", html.EscapeString(r.Actor))

	switch r.Kind {
	case alert.KindThreatMatch:
		fmt.Fprintf(&b, "<b>Tags:</b> %s\n", html.EscapeString(strings.Join(r.Tags, ", ")))
		if r.Preview != "" {
			fmt.Fprintf(&b, "\n%s\n", html.EscapeString(r.Preview))
		}
	case alert.KindFileDetected:
		fmt.Fprintf(&b, "<b>File:</b> %s\n", html.EscapeString(r.FileName))
	}

	fmt.Fprintf(&b, "\n<i>%s</i>", r.Timestamp.Format(alert.TimeLayout))
	return b.String()
}
