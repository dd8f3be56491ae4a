package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (b *Bot) SendMessage(msg tgbotapi.MessageConfig) {
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Int64("chat_id", msg.ChatID),
			zap.Error(err))
	}
}

func (b *Bot) SendError(chatID int64, text string) {
	b.SendMessage(tgbotapi.NewMessage(chatID, "❌ "+text))
}

func (b *Bot) sendText(chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	b.SendMessage(msg)
}

func (b *Bot) answerCallback(ev Event) {
	if ev.CallbackID == "" {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(ev.CallbackID, "")); err != nil {
		b.logger.Warn("Failed to answer callback",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
	}
}

func (b *Bot) editKeyboard(chatID int64, messageID int, markup tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, markup)
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Warn("Failed to edit keyboard",
			zap.Int64("chat_id", chatID),
			zap.Int("message_id", messageID),
			zap.Error(err))
	}
}

// dropKeyboard removes the inline keyboard so an answered question cannot be
// pressed again.
func (b *Bot) dropKeyboard(chatID int64, messageID int) {
	b.editKeyboard(chatID, messageID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
}
