package notify

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"wingman/pkg/logx"
)

const telegramSendTimeout = 30 * time.Second

// TelegramConfig configures the Telegram delivery channel.
type TelegramConfig struct {
	Token  string
	ChatID int64
}

// TelegramChannel sends the text body to a single chat via the Bot API.
type TelegramChannel struct {
	cfg TelegramConfig
	bot *tele.Bot
	log logx.Logger
}

// NewTelegram creates the channel. The bot handle is created eagerly so a
// bad token surfaces at startup rather than at first send.
func NewTelegram(cfg TelegramConfig, log logx.Logger) (*TelegramChannel, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(telegramSettings(cfg))
	if err != nil {
		return nil, err
	}
	return &TelegramChannel{cfg: cfg, bot: b, log: log}, nil
}

// telegramSettings bounds the underlying HTTP client so an abandoned send
// cannot block forever; telebot's default client has no timeout.
func telegramSettings(cfg TelegramConfig) tele.Settings {
	return tele.Settings{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: telegramSendTimeout},
		Poller: nil, // send-only; we never poll for updates
	}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, n Notification) bool {
	if c.bot == nil || c.cfg.ChatID == 0 {
		c.log.Warn("telegram channel not configured, skipping")
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	// Respect the caller's deadline; telebot itself has no ctx plumbing.
	done := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(tele.ChatID(c.cfg.ChatID), n.TextBody, &tele.SendOptions{
			DisableWebPagePreview: true,
		})
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(telegramSendTimeout):
		err = errors.New("telegram send timed out")
	}
	if err != nil {
		c.log.Error("failed to send telegram message", logx.Err(err))
		return false
	}
	c.log.Info("telegram message sent", logx.Int64("chat_id", c.cfg.ChatID))
	return true
}
