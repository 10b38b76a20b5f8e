package bot

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const pollTimeout = 30

// Telegram adapts the Bot API to Sender and an update stream.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *log.Logger
}

func NewTelegram(token string, logger *log.Logger) (*Telegram, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := tgbotapi.SetLogger(logger.WithPrefix("telegram").StandardLog()); err != nil {
		return nil, err
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	logger.Info("authorized on telegram", "account", api.Self.UserName)
	return &Telegram{api: api, logger: logger}, nil
}

func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// Updates long-polls for messages until ctx is done.
func (t *Telegram) Updates(ctx context.Context) <-chan Incoming {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	raw := t.api.GetUpdatesChan(u)

	out := make(chan Incoming)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				t.api.StopReceivingUpdates()
				return
			case upd, ok := <-raw:
				if !ok {
					return
				}
				in, ok := toIncoming(upd.Message)
				if !ok {
					continue
				}
				select {
				case out <- in:
				case <-ctx.Done():
					t.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

func toIncoming(m *tgbotapi.Message) (Incoming, bool) {
	if m == nil || m.Chat == nil {
		return Incoming{}, false
	}
	in := Incoming{ChatID: m.Chat.ID, Text: m.Text}
	if m.From != nil {
		in.User = m.From.UserName
		if in.User == "" {
			in.User = m.From.FirstName
		}
	}
	if m.IsCommand() {
		in.Command = m.Command()
		in.Text = m.CommandArguments()
	}
	return in, true
}
