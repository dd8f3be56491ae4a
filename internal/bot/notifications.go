package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"flowbot/internal/storage"
)

// NotifyRegistration posts a short summary of a finished registration to the
// admin channel.
func (b *Bot) NotifyRegistration(reg storage.Registration) {
	if b.cfg.AdminChannelID == 0 {
		b.logger.Debug("Channel notifications disabled - no channel ID configured")
		return
	}

	msg := tgbotapi.NewMessage(b.cfg.AdminChannelID, FormatRegistrationNotification(reg))
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send registration notification to channel",
			zap.Int64("channel_id", b.cfg.AdminChannelID),
			zap.Int64("telegram_id", reg.TelegramID),
			zap.Error(err))
	}
}

func FormatRegistrationNotification(reg storage.Registration) string {
	games := "не указаны"
	if len(reg.Games) > 0 {
		games = strings.Join(reg.Games, ", ")
	}
	location := "не указана"
	if reg.Latitude != nil && reg.Longitude != nil {
		location = fmt.Sprintf("%.5f, %.5f", *reg.Latitude, *reg.Longitude)
	}
	username := "—"
	if reg.Username != "" {
		username = "@" + reg.Username
	}

	return fmt.Sprintf(
		"🆕 Новая регистрация\n\n"+
			"Имя: %s\n"+
			"Город: %s\n"+
			"Язык: %s\n"+
			"Игры: %s\n"+
			"Телефон: %s\n"+
			"Геолокация: %s\n"+
			"TG: %s",
		reg.FirstName,
		reg.City,
		reg.Language,
		games,
		FormatPhoneNumber(reg.Phone),
		location,
		username,
	)
}
