package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Update is the flattened form of a Telegram update that the dispatcher
// consumes. Exactly one of Text/Command or CallbackData is meaningful:
// callback updates carry CallbackID and CallbackData, message updates
// carry Text and, for commands, Command.
type Update struct {
	UpdateID     int
	ChatID       int64
	UserID       int64
	Text         string
	Command      string
	CallbackID   string
	CallbackData string
}

// IsCommand reports whether the update is a bot command.
func (u Update) IsCommand() bool {
	return u.Command != ""
}

// IsCallback reports whether the update is a callback query.
func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}

// FlattenUpdate converts a raw Bot API update into the internal form.
// It returns false for payloads the bot does not handle: non-text
// messages, messages without a sender, and callbacks without an
// originating chat message.
func FlattenUpdate(raw tgbotapi.Update) (Update, bool) {
	if raw.CallbackQuery != nil {
		cq := raw.CallbackQuery
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return Update{}, false
		}
		return Update{
			UpdateID:     raw.UpdateID,
			ChatID:       cq.Message.Chat.ID,
			UserID:       cq.From.ID,
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}, true
	}

	if raw.Message != nil {
		msg := raw.Message
		if msg.From == nil || msg.Chat == nil || msg.Text == "" {
			return Update{}, false
		}
		upd := Update{
			UpdateID: raw.UpdateID,
			ChatID:   msg.Chat.ID,
			UserID:   msg.From.ID,
			Text:     msg.Text,
		}
		if msg.IsCommand() {
			upd.Command = msg.Command()
		}
		return upd, true
	}

	return Update{}, false
}
