package notifier

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// telegramLimit is kept below the 4096 character API limit.
const telegramLimit = 4000

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Telegram sends to a chat (and optional forum topic) through the Bot API.
type Telegram struct {
	bot      *tele.Bot
	chat     tele.ChatID
	threadID int
}

// NewTelegram builds a send-only bot. It does not poll for updates and does
// not contact the API until the first send.
func NewTelegram(token string, chatID int64, threadID int) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: b, chat: tele.ChatID(chatID), threadID: threadID}, nil
}

func (t *Telegram) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Send(t.chat, clip(text, telegramLimit), &tele.SendOptions{
		ThreadID:              t.threadID,
		DisableWebPagePreview: true,
	})
	return err
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
