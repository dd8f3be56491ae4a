package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flowbot/internal/bot/media"
	"flowbot/internal/quiz"
	"flowbot/internal/storage"
)

// Sender is the part of *tgbotapi.BotAPI the handlers use.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Repository interface {
	UpsertContact(ctx context.Context, telegramID int64, username string) (int64, error)
	AccessLevel(ctx context.Context, telegramID int64) (quiz.AccessLevel, error)
	IsRegistered(ctx context.Context, telegramID int64) (bool, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	CreateRegistration(ctx context.Context, reg storage.Registration) (int64, error)

	ListForms(ctx context.Context, level quiz.AccessLevel) ([]storage.FormSummary, error)
	GetForm(ctx context.Context, formID int64) (*quiz.Form, error)
	HasResult(ctx context.Context, telegramID, formID int64) (bool, error)
	SaveResult(ctx context.Context, r storage.Result) error
}

type MediaDeliverer interface {
	Deliver(ctx context.Context, req media.Request) (media.Result, error)
}

var (
	_ Sender         = (*tgbotapi.BotAPI)(nil)
	_ Repository     = (*storage.PostgresStorage)(nil)
	_ MediaDeliverer = (*media.Cache)(nil)
)
