package bot

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"flowbot/internal/bot/media"
	"flowbot/internal/storage/redis"
)

// HandleEntry starts whatever the command, menu button or form button asks
// for.
func (b *Bot) HandleEntry(ctx context.Context, session *redis.Session, ev Event) {
	switch ev.Kind {
	case EventCommand:
		b.handleCommand(ctx, session, ev)
	case EventText:
		switch ev.Text {
		case BtnRegister:
			b.StartRegistration(ctx, ev)
		case BtnQuizzes:
			b.ListQuizzes(ctx, ev)
		case BtnHelp:
			b.HandleHelp(ctx, ev.ChatID)
		}
	case EventCallback:
		formID, err := ev.Token.Int64(1)
		if err != nil {
			b.logger.Warn("Invalid form id in callback",
				zap.Int64("chat_id", ev.ChatID),
				zap.String("data", ev.Data))
			b.SendError(ev.ChatID, "Тест не найден")
			return
		}
		b.dropKeyboard(ev.ChatID, ev.MessageID)
		b.StartQuiz(ctx, ev, formID)
	}
}

func (b *Bot) handleCommand(ctx context.Context, session *redis.Session, ev Event) {
	switch cmd := ev.Command; {
	case cmd == "start":
		b.HandleStart(ctx, session, ev)
	case cmd == "register":
		b.StartRegistration(ctx, ev)
	case cmd == "quizzes":
		b.ListQuizzes(ctx, ev)
	case cmd == "help":
		b.HandleHelp(ctx, ev.ChatID)
	case strings.HasPrefix(cmd, "quiz"):
		// Both /quiz12 and /quiz 12 are accepted.
		raw := strings.TrimPrefix(cmd, "quiz")
		if raw == "" {
			raw = strings.TrimSpace(ev.Args)
		}
		formID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || formID <= 0 {
			b.ListQuizzes(ctx, ev)
			return
		}
		b.StartQuiz(ctx, ev, formID)
	default:
		b.HandleUnknownCommand(ctx, ev.ChatID)
	}
}

func (b *Bot) HandleStart(ctx context.Context, session *redis.Session, ev Event) {
	if _, err := b.storage.UpsertContact(ctx, ev.UserID, ev.Username); err != nil {
		b.logger.Error("Failed to upsert contact",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
	}

	if session.Active() {
		if err := b.state.Clear(ctx, ev.UserID); err != nil {
			b.logger.Error("Failed to clear state on start",
				zap.Int64("chat_id", ev.ChatID),
				zap.Error(err))
		}
	}

	text := "Привет! 👋\n\n" +
		"Здесь можно зарегистрироваться на курсы и пройти тесты.\n" +
		"Выберите действие в меню ниже."

	req := media.Request{
		ChatID:   ev.ChatID,
		Kind:     media.KindText,
		Caption:  text,
		Keyboard: b.CreateMainMenuKeyboard(),
	}
	if b.cfg.WelcomeMedia != "" {
		req.Kind = media.KindFromPath(b.cfg.WelcomeMedia)
		req.Source = b.cfg.WelcomeMedia
	}

	if _, err := b.media.Deliver(ctx, req); err != nil {
		b.logger.Error("Failed to deliver welcome",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
		b.sendText(ev.ChatID, text, b.CreateMainMenuKeyboard())
	}
}

func (b *Bot) ShowMainMenu(chatID int64, text string) {
	b.sendText(chatID, text, b.CreateMainMenuKeyboard())
}

func (b *Bot) ListQuizzes(ctx context.Context, ev Event) {
	level, err := b.storage.AccessLevel(ctx, ev.UserID)
	if err != nil {
		b.logger.Error("Failed to get access level",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при загрузке тестов")
		return
	}

	forms, err := b.storage.ListForms(ctx, level)
	if err != nil {
		b.logger.Error("Failed to list forms",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при загрузке тестов")
		return
	}

	if len(forms) == 0 {
		b.ShowMainMenu(ev.ChatID, "Сейчас нет доступных тестов.")
		return
	}

	kb, err := b.CreateFormsKeyboard(forms)
	if err != nil {
		b.logger.Error("Failed to build forms keyboard",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при загрузке тестов")
		return
	}
	b.sendText(ev.ChatID, "🧩 Доступные тесты:", kb)
}

// HandleCancel ends any flow, whatever step it was in.
func (b *Bot) HandleCancel(ctx context.Context, session *redis.Session, ev Event) {
	if err := b.state.Clear(ctx, ev.UserID); err != nil {
		b.logger.Error("Failed to clear state on cancel",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Не удалось отменить действие. Попробуйте ещё раз.")
		return
	}

	if ev.Kind == EventCallback {
		b.dropKeyboard(ev.ChatID, ev.MessageID)
	}

	if !session.Active() {
		b.ShowMainMenu(ev.ChatID, "Нечего отменять.")
		return
	}

	b.logger.Info("Flow cancelled",
		zap.Int64("chat_id", ev.ChatID),
		zap.String("flow", session.Flow.String()),
		zap.String("step", session.Step))
	b.ShowMainMenu(ev.ChatID, "❌ Действие отменено.")
}

// HandleMismatch answers input of the wrong kind for the current step.
func (b *Bot) HandleMismatch(ctx context.Context, session *redis.Session, ev Event) {
	b.logger.Debug("Unexpected input for step",
		zap.Int64("chat_id", ev.ChatID),
		zap.String("step", session.Step),
		zap.String("kind", ev.Kind.String()))
	b.SendError(ev.ChatID, "Пожалуйста, используйте предложенные варианты ответа или нажмите /cancel")
}

func (b *Bot) HandleStaleCallback(ctx context.Context, session *redis.Session, ev Event) {
	b.logger.Debug("Callback without session",
		zap.Int64("chat_id", ev.ChatID),
		zap.String("data", ev.Data),
		zap.Error(ErrSessionMissing))
	b.dropKeyboard(ev.ChatID, ev.MessageID)
	b.SendError(ev.ChatID, "Сессия устарела. Нажмите /start, чтобы начать заново.")
}

func (b *Bot) HandleDefault(ctx context.Context, session *redis.Session, ev Event) {
	b.SendError(ev.ChatID, "Я не понимаю эту команду. Пожалуйста, используйте меню.")
}

func (b *Bot) HandleUnknownCommand(ctx context.Context, chatID int64) {
	b.SendError(chatID, "Неизвестная команда. Пожалуйста, используйте /start для начала работы.")
}

func (b *Bot) HandleHelp(ctx context.Context, chatID int64) {
	helpText := `Доступные команды:
/start - Начать работу с ботом
/register - Регистрация на курсы
/quizzes - Список тестов
/cancel - Отменить текущее действие
/help - Показать эту справку

Тест можно открыть и напрямую: /quiz<номер>, например /quiz1`

	b.sendText(chatID, helpText, b.CreateMainMenuKeyboard())
}
