// Package telegram is the push side of the chat transport.
package telegram

import (
	stderrors "errors"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// BotConfig configuration of the bot.
type BotConfig struct {
	Token string
	Debug bool
}

// Bot telegram interaction client.
type Bot struct {
	api    *tgbotapi.BotAPI
	config BotConfig
}

// PermanentError marks a delivery failure that will never succeed for
// this recipient (blocked bot, deactivated account, dead chat). The
// push worker acks and forgets these.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a permanent delivery failure.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return stderrors.As(err, &pe)
}

// NewBot creates a new telegram bot.
func NewBot(c BotConfig) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}
	api.Debug = c.Debug

	return &Bot{api: api, config: c}, nil
}

// Send delivers one HTML-formatted message to a chat.
func (b *Bot) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := b.api.Send(msg)
	if err == nil {
		return nil
	}
	if isUnreachableChat(err) {
		return &PermanentError{Err: err}
	}
	return errors.Wrapf(err, "could not send message to chat %d", chatID)
}

func isUnreachableChat(err error) bool {
	var apiErrPtr *tgbotapi.Error
	if stderrors.As(err, &apiErrPtr) && apiErrPtr.Code == 403 {
		return true
	}
	var apiErr tgbotapi.Error
	if stderrors.As(err, &apiErr) && apiErr.Code == 403 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blocked by the user") ||
		strings.Contains(msg, "user is deactivated") ||
		strings.Contains(msg, "chat not found")
}
