package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"flowbot/internal/callback"
	"flowbot/internal/storage"
	"flowbot/internal/storage/redis"
)

// wizardStep is one row of the registration step table.
type wizardStep struct {
	// accepts reports whether ev is the kind of input the step expects.
	accepts func(reg *redis.RegistrationState, ev Event) bool
	// set validates ev and stores it. It reports whether the wizard moves
	// on; a ValidationError keeps the user on the step.
	set func(ctx context.Context, reg *redis.RegistrationState, ev Event) (bool, error)
	// ask renders the step prompt.
	ask func(ctx context.Context, chatID int64, reg *redis.RegistrationState)
	// stay, if set, re-renders the step after input that did not advance it.
	stay func(ctx context.Context, ev Event, reg *redis.RegistrationState)
	next string
}

func (b *Bot) registerSteps() {
	b.steps = map[string]wizardStep{
		StepLanguage: {
			accepts: acceptsCallback(propLanguage),
			set:     b.setLanguage,
			ask:     b.askLanguage,
			next:    StepFirstName,
		},
		StepFirstName: {
			accepts: acceptsText,
			set:     b.setFirstName,
			ask:     b.askFirstName,
			next:    StepCity,
		},
		StepCity: {
			accepts: acceptsText,
			set:     b.setCity,
			ask:     b.askCity,
			next:    StepGames,
		},
		StepGames: {
			accepts: acceptsGames,
			set:     b.setGames,
			ask:     b.askGames,
			stay:    b.refreshGames,
			next:    StepPhone,
		},
		StepPhone: {
			accepts: acceptsPhone,
			set:     b.setPhone,
			ask:     b.askPhone,
			next:    StepLocation,
		},
		StepLocation: {
			accepts: acceptsLocation,
			set:     b.setLocation,
			ask:     b.askLocation,
			next:    stepFinalize,
		},
	}
}

func (b *Bot) registrationAccepts(s *redis.Session, ev Event) bool {
	if s.Flow != redis.FlowRegistration || s.Registration == nil {
		return false
	}
	step, ok := b.steps[s.Step]
	return ok && step.accepts(s.Registration, ev)
}

func acceptsCallback(property string) func(*redis.RegistrationState, Event) bool {
	return func(_ *redis.RegistrationState, ev Event) bool {
		return isCallbackFor(ev, callback.MarkerProperty, property)
	}
}

func acceptsText(_ *redis.RegistrationState, ev Event) bool {
	return isFreeText(ev)
}

func acceptsGames(reg *redis.RegistrationState, ev Event) bool {
	if reg.AwaitingCustomGame && isFreeText(ev) {
		return true
	}
	return isCallbackFor(ev, callback.MarkerProperty2, propGame)
}

func acceptsPhone(_ *redis.RegistrationState, ev Event) bool {
	return ev.Kind == EventContact || isFreeText(ev)
}

func acceptsLocation(_ *redis.RegistrationState, ev Event) bool {
	return ev.Kind == EventLocation || isCallbackFor(ev, callback.MarkerProperty, propLocation)
}

// StartRegistration opens the wizard unless the user is already registered.
func (b *Bot) StartRegistration(ctx context.Context, ev Event) {
	registered, err := b.storage.IsRegistered(ctx, ev.UserID)
	if err != nil {
		b.logger.Error("Failed to check registration",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при обработке запроса")
		return
	}
	if registered {
		b.ShowMainMenu(ev.ChatID, "✅ Вы уже зарегистрированы.")
		return
	}

	if _, err := b.storage.UpsertContact(ctx, ev.UserID, ev.Username); err != nil {
		b.logger.Error("Failed to upsert contact",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
	}

	session := &redis.Session{
		Flow:         redis.FlowRegistration,
		Step:         StepLanguage,
		Registration: &redis.RegistrationState{},
	}
	if err := b.state.Start(ctx, ev.UserID, session); err != nil {
		b.logger.Error("Failed to start registration",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при обработке запроса")
		return
	}

	b.logger.Info("Registration started", zap.Int64("chat_id", ev.ChatID))
	b.askLanguage(ctx, ev.ChatID, session.Registration)
}

// HandleRegistrationStep feeds ev to the current wizard step.
func (b *Bot) HandleRegistrationStep(ctx context.Context, session *redis.Session, ev Event) {
	step := b.steps[session.Step]

	var advanced bool
	updated, err := b.state.Update(ctx, ev.UserID, func(s *redis.Session) error {
		if s.Flow != redis.FlowRegistration || s.Step != session.Step || s.Registration == nil {
			return ErrSessionMissing
		}
		ok, err := step.set(ctx, s.Registration, ev)
		if err != nil {
			return err
		}
		advanced = ok
		if ok && step.next != stepFinalize {
			s.Step = step.next
		}
		return nil
	})

	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		b.SendError(ev.ChatID, verr.Message)
		return
	case err != nil:
		b.logger.Error("Failed to process registration step",
			zap.Int64("chat_id", ev.ChatID),
			zap.String("step", session.Step),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при сохранении данных")
		return
	}

	if !advanced {
		if step.stay != nil {
			step.stay(ctx, ev, updated.Registration)
		}
		return
	}

	if ev.Kind == EventCallback {
		b.dropKeyboard(ev.ChatID, ev.MessageID)
	}
	if step.next == stepFinalize {
		b.finishRegistration(ctx, ev, updated.Registration)
		return
	}
	b.steps[step.next].ask(ctx, ev.ChatID, updated.Registration)
}

func (b *Bot) setLanguage(_ context.Context, reg *redis.RegistrationState, ev Event) (bool, error) {
	l, ok := languageByCode(ev.Token.Value(1))
	if !ok {
		return false, invalid("Пожалуйста, выберите язык из списка")
	}
	reg.Language = l.Code
	return true, nil
}

func (b *Bot) setFirstName(_ context.Context, reg *redis.RegistrationState, ev Event) (bool, error) {
	name := strings.TrimSpace(ev.Text)
	if !IsValidName(name) {
		return false, invalid("Имя должно состоять из букв (от 2 до 64 символов). Попробуйте ещё раз")
	}
	reg.FirstName = name
	return true, nil
}

func (b *Bot) setCity(_ context.Context, reg *redis.RegistrationState, ev Event) (bool, error) {
	city := strings.TrimSpace(ev.Text)
	if !IsValidCity(city) {
		return false, invalid("Название города должно быть от 2 до 64 символов")
	}
	reg.City = city
	return true, nil
}

func (b *Bot) setGames(_ context.Context, reg *redis.RegistrationState, ev Event) (bool, error) {
	if ev.Kind == EventText {
		name := NormalizeGameName(ev.Text)
		if !IsValidGameName(name) {
			return false, invalid(fmt.Sprintf("Название игры должно быть не длиннее %d символов", maxGameLen))
		}
		if !containsString(reg.Games, name) {
			reg.Games = append(reg.Games, name)
		}
		reg.AwaitingCustomGame = false
		return false, nil
	}

	switch ev.Token.Value(1) {
	case gameToggle:
		idx, err := strconv.Atoi(ev.Token.Value(2))
		if err != nil || idx < 0 || idx >= len(b.cfg.Games) {
			return false, invalid("Такой игры нет в списке")
		}
		reg.Games = toggleString(reg.Games, b.cfg.Games[idx])
		reg.AwaitingCustomGame = false
		return false, nil
	case gameCustom:
		reg.AwaitingCustomGame = true
		return false, nil
	case gameDone:
		reg.AwaitingCustomGame = false
		return true, nil
	default:
		return false, invalid("Пожалуйста, используйте кнопки под сообщением")
	}
}

func (b *Bot) setPhone(ctx context.Context, reg *redis.RegistrationState, ev Event) (bool, error) {
	raw := ev.Text
	if ev.Kind == EventContact {
		if ev.ContactUserID != ev.UserID {
			return false, invalid("Отправьте свой номер кнопкой «Отправить номер» или введите его вручную")
		}
		raw = ev.Phone
	}

	phone := NormalizePhoneNumber(raw)
	if !IsValidPhoneNumber(phone) {
		return false, invalid("Пожалуйста, введите корректный номер телефона, например +998901234567")
	}

	exists, err := b.storage.PhoneExists(ctx, phone)
	if err != nil {
		return false, fmt.Errorf("check phone: %w", err)
	}
	if exists {
		return false, invalid("Этот номер уже зарегистрирован. Укажите другой номер")
	}

	reg.Phone = phone
	return true, nil
}

func (b *Bot) setLocation(_ context.Context, reg *redis.RegistrationState, ev Event) (bool, error) {
	if ev.Kind == EventLocation {
		lon, lat := ev.Longitude, ev.Latitude
		reg.Longitude = &lon
		reg.Latitude = &lat
		return true, nil
	}
	if ev.Token.Value(1) != valueSkip {
		return false, invalid("Пожалуйста, отправьте геолокацию или нажмите «Пропустить»")
	}
	reg.Longitude, reg.Latitude = nil, nil
	return true, nil
}

func (b *Bot) askLanguage(_ context.Context, chatID int64, _ *redis.RegistrationState) {
	b.sendText(chatID, "Выберите язык / Tilni tanlang / Choose language:", b.CreateLanguageKeyboard())
}

func (b *Bot) askFirstName(_ context.Context, chatID int64, _ *redis.RegistrationState) {
	b.sendText(chatID, "Как вас зовут?", b.CreateCancelKeyboard())
}

func (b *Bot) askCity(_ context.Context, chatID int64, _ *redis.RegistrationState) {
	b.sendText(chatID, "Из какого вы города?", b.CreateCancelKeyboard())
}

func (b *Bot) askGames(_ context.Context, chatID int64, reg *redis.RegistrationState) {
	b.sendText(chatID, gamesPrompt(reg), b.CreateGamesKeyboard(reg.Games))
}

func (b *Bot) refreshGames(ctx context.Context, ev Event, reg *redis.RegistrationState) {
	switch {
	case reg.AwaitingCustomGame:
		b.sendText(ev.ChatID, "✍️ Напишите название игры:", b.CreateCancelKeyboard())
	case ev.Kind == EventCallback:
		b.editKeyboard(ev.ChatID, ev.MessageID, b.CreateGamesKeyboard(reg.Games))
	default:
		b.askGames(ctx, ev.ChatID, reg)
	}
}

func (b *Bot) askPhone(_ context.Context, chatID int64, _ *redis.RegistrationState) {
	b.sendText(chatID, "📱 Отправьте номер телефона кнопкой ниже или введите его вручную.",
		b.CreateContactRequestKeyboard())
}

func (b *Bot) askLocation(_ context.Context, chatID int64, _ *redis.RegistrationState) {
	b.sendText(chatID, "📍 Поделитесь геолокацией, чтобы мы подобрали ближайший филиал.",
		b.CreateLocationRequestKeyboard())
	b.sendText(chatID, "Или пропустите этот шаг:", b.CreateSkipLocationKeyboard())
}

func gamesPrompt(reg *redis.RegistrationState) string {
	text := "🎮 В какие игры вы играете? Отметьте подходящие и нажмите «Готово»."
	if len(reg.Games) > 0 {
		text += "\n\nВыбрано: " + strings.Join(reg.Games, ", ")
	}
	return text
}

func (b *Bot) finishRegistration(ctx context.Context, ev Event, reg *redis.RegistrationState) {
	record := storage.Registration{
		TelegramID: ev.UserID,
		Username:   ev.Username,
		FirstName:  reg.FirstName,
		City:       reg.City,
		Language:   reg.Language,
		Phone:      reg.Phone,
		Games:      reg.Games,
		Longitude:  reg.Longitude,
		Latitude:   reg.Latitude,
	}

	_, err := b.storage.CreateRegistration(ctx, record)
	switch {
	case errors.Is(err, storage.ErrPhoneTaken):
		// Someone registered the number after the phone step.
		if _, err := b.state.Update(ctx, ev.UserID, func(s *redis.Session) error {
			if s.Registration == nil {
				return ErrSessionMissing
			}
			s.Step = StepPhone
			s.Registration.Phone = ""
			return nil
		}); err != nil {
			b.logger.Error("Failed to return to phone step",
				zap.Int64("chat_id", ev.ChatID),
				zap.Error(err))
		}
		b.SendError(ev.ChatID, "Этот номер уже зарегистрирован. Укажите другой номер")
		b.askPhone(ctx, ev.ChatID, reg)
		return
	case errors.Is(err, storage.ErrAlreadyRegistered):
		b.clearState(ctx, ev.ChatID, ev.UserID)
		b.ShowMainMenu(ev.ChatID, "✅ Вы уже зарегистрированы.")
		return
	case err != nil:
		b.logger.Error("Failed to create registration",
			zap.Int64("chat_id", ev.ChatID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Не удалось завершить регистрацию. Отправьте геолокацию или нажмите «Пропустить» ещё раз.")
		b.sendText(ev.ChatID, "Повторить:", b.CreateSkipLocationKeyboard())
		return
	}

	b.clearState(ctx, ev.ChatID, ev.UserID)

	b.logger.Info("Registration completed",
		zap.Int64("chat_id", ev.ChatID),
		zap.String("city", record.City),
		zap.String("language", record.Language))

	b.ShowMainMenu(ev.ChatID, fmt.Sprintf(
		"🎉 Спасибо, %s! Регистрация завершена.\n\nТеперь вам доступны тесты и курсы.",
		record.FirstName))
	b.NotifyRegistration(record)
}

func (b *Bot) clearState(ctx context.Context, chatID, userID int64) {
	if err := b.state.Clear(ctx, userID); err != nil {
		b.logger.Error("Failed to clear state",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// toggleString returns a copy of list with s added or removed.
func toggleString(list []string, s string) []string {
	out := make([]string, 0, len(list)+1)
	found := false
	for _, v := range list {
		if v == s {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, s)
	}
	return out
}
