package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"flowbot/internal/bot/media"
	"flowbot/internal/callback"
	"flowbot/internal/quiz"
	"flowbot/internal/storage"
	"flowbot/internal/storage/redis"
)

func quizAccepts(s *redis.Session, ev Event) bool {
	if s.Flow != redis.FlowQuiz || s.Quiz == nil {
		return false
	}
	switch s.Step {
	case StepQuizAnswer:
		return isCallbackFor(ev, callback.MarkerProperty3, propQuiz)
	case StepQuizFreeText:
		return isFreeText(ev)
	case StepQuizFile:
		return isFreeText(ev) || ev.Kind == EventFile
	}
	return false
}

func stepForQuestion(q *quiz.Question) string {
	if !q.FreeText() {
		return StepQuizAnswer
	}
	return freeTextStep(q)
}

func freeTextStep(q *quiz.Question) string {
	if q.AcceptsFile {
		return StepQuizFile
	}
	return StepQuizFreeText
}

// StartQuiz opens form formID for the user. Refusals leave the session
// untouched.
func (b *Bot) StartQuiz(ctx context.Context, ev Event, formID int64) {
	form, err := b.prepareQuiz(ctx, ev.UserID, formID)
	if err != nil {
		b.reportQuizRefusal(ev, formID, err)
		return
	}

	first, _ := form.First()
	session := &redis.Session{
		Flow: redis.FlowQuiz,
		Step: stepForQuestion(first),
		Quiz: &redis.QuizState{
			FormID:     form.ID,
			QuestionID: first.ID,
			Answers:    map[string]string{},
		},
	}
	if err := b.state.Start(ctx, ev.UserID, session); err != nil {
		b.logger.Error("Failed to start quiz",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int64("form_id", formID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при обработке запроса")
		return
	}

	b.logger.Info("Quiz started",
		zap.Int64("chat_id", ev.ChatID),
		zap.Int64("form_id", form.ID))
	b.sendText(ev.ChatID, "🧩 "+form.Name, b.CreateCancelKeyboard())
	b.askQuestion(ctx, ev.ChatID, form, first, nil)
}

// prepareQuiz loads the form and runs every check that must pass before a
// session exists.
func (b *Bot) prepareQuiz(ctx context.Context, userID, formID int64) (*quiz.Form, error) {
	form, err := b.storage.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	level, err := b.storage.AccessLevel(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("access level: %w", err)
	}
	if form.AccessLevel > level {
		if level == quiz.AccessContact {
			return nil, ErrNotRegistered
		}
		return nil, ErrAccessDenied
	}

	if form.OneOff {
		done, err := b.storage.HasResult(ctx, userID, formID)
		if err != nil {
			return nil, fmt.Errorf("check result: %w", err)
		}
		if done {
			return nil, ErrAlreadyCompleted
		}
	}

	if err := form.Validate(); err != nil {
		return nil, fmt.Errorf("form %d: %w", formID, err)
	}
	return form, nil
}

func (b *Bot) reportQuizRefusal(ev Event, formID int64, err error) {
	switch {
	case errors.Is(err, storage.ErrFormNotFound):
		b.SendError(ev.ChatID, "Тест не найден или ещё не опубликован")
	case errors.Is(err, ErrNotRegistered):
		b.SendError(ev.ChatID, "Этот тест доступен только зарегистрированным пользователям. Пройдите регистрацию: /register")
	case errors.Is(err, ErrAccessDenied):
		b.SendError(ev.ChatID, "Этот тест доступен только ученикам курсов")
	case errors.Is(err, ErrAlreadyCompleted):
		b.SendError(ev.ChatID, "Вы уже проходили этот тест")
	case errors.Is(err, quiz.ErrCyclicForm), errors.Is(err, quiz.ErrEmptyForm), errors.Is(err, quiz.ErrForeignJump):
		b.logger.Error("Refusing broken form",
			zap.Int64("form_id", formID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Тест временно недоступен")
	default:
		b.logger.Error("Failed to prepare quiz",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int64("form_id", formID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при загрузке теста")
	}
}

// HandleQuizEvent processes an answer to the current question.
func (b *Bot) HandleQuizEvent(ctx context.Context, session *redis.Session, ev Event) {
	qs := session.Quiz

	form, err := b.storage.GetForm(ctx, qs.FormID)
	if err != nil {
		if errors.Is(err, storage.ErrFormNotFound) {
			b.clearState(ctx, ev.ChatID, ev.UserID)
			b.ShowMainMenu(ev.ChatID, "❌ Тест больше недоступен.")
			return
		}
		b.logger.Error("Failed to load form",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int64("form_id", qs.FormID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при загрузке теста")
		return
	}

	q, ok := form.Question(qs.QuestionID)
	if !ok {
		b.clearState(ctx, ev.ChatID, ev.UserID)
		b.ShowMainMenu(ev.ChatID, "❌ Тест изменился. Начните его заново.")
		return
	}

	if ev.Kind != EventCallback {
		b.acceptFreeText(ctx, ev, form, q, qs)
		return
	}

	// The token must point at the question the session is on.
	formID, errForm := ev.Token.Int64(1)
	questionID, errQuestion := ev.Token.Int64(2)
	if errForm != nil || errQuestion != nil || formID != qs.FormID || questionID != qs.QuestionID {
		b.rejectStale(ev)
		return
	}

	switch action := ev.Token.Value(3); action {
	case answerCustom:
		if !q.CustomAnswer {
			b.rejectStale(ev)
			return
		}
		if err := b.state.SetStep(ctx, ev.UserID, freeTextStep(q)); err != nil {
			b.logger.Error("Failed to switch to custom answer",
				zap.Int64("chat_id", ev.ChatID),
				zap.Error(err))
			b.SendError(ev.ChatID, "Ошибка при обработке запроса")
			return
		}
		b.dropKeyboard(ev.ChatID, ev.MessageID)
		b.sendText(ev.ChatID, "✍️ Напишите свой ответ сообщением:", b.CreateCancelKeyboard())

	case answerDone:
		if !q.MultiAnswer {
			b.rejectStale(ev)
			return
		}
		if len(qs.Selected) == 0 {
			b.SendError(ev.ChatID, "Выберите хотя бы один вариант")
			return
		}
		b.advance(ctx, ev, form, q, qs,
			quiz.MultiJump(q, qs.Selected),
			quiz.ScoreMulti(q, qs.Selected),
			answerTexts(q, qs.Selected))

	default:
		answerID, err := strconv.ParseInt(action, 10, 64)
		if err != nil {
			b.rejectStale(ev)
			return
		}
		a, ok := q.Answer(answerID)
		if !ok {
			b.rejectStale(ev)
			return
		}
		if q.MultiAnswer {
			b.toggleAnswer(ctx, ev, form, q, a)
			return
		}
		b.advance(ctx, ev, form, q, qs, a.JumpTo, quiz.ScoreSingle(a), a.Text)
	}
}

func (b *Bot) toggleAnswer(ctx context.Context, ev Event, form *quiz.Form, q *quiz.Question, a *quiz.Answer) {
	updated, err := b.state.Update(ctx, ev.UserID, func(s *redis.Session) error {
		if s.Flow != redis.FlowQuiz || s.Quiz == nil || s.Quiz.QuestionID != q.ID {
			return ErrSessionMissing
		}
		s.Quiz.Selected = quiz.Toggle(s.Quiz.Selected, a.ID)
		return nil
	})
	if err != nil {
		b.logger.Error("Failed to toggle answer",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int64("answer_id", a.ID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при обработке запроса")
		return
	}

	kb, err := b.CreateQuestionKeyboard(form.ID, q, updated.Quiz.Selected)
	if err != nil {
		b.logger.Error("Failed to build question keyboard",
			zap.Int64("question_id", q.ID),
			zap.Error(err))
		return
	}
	b.editKeyboard(ev.ChatID, ev.MessageID, kb)
}

// acceptFreeText stores the message verbatim. Free text is never scored.
func (b *Bot) acceptFreeText(ctx context.Context, ev Event, form *quiz.Form, q *quiz.Question, qs *redis.QuizState) {
	answer := strings.TrimSpace(ev.Text)
	if ev.Kind == EventFile {
		answer = ev.FileID
	}
	if answer == "" {
		b.SendError(ev.ChatID, "Ответ не может быть пустым")
		return
	}
	b.advance(ctx, ev, form, q, qs, nil, 0, answer)
}

// advance records the answer to q and moves to the next question, or
// finishes the form when there is none.
func (b *Bot) advance(ctx context.Context, ev Event, form *quiz.Form, q *quiz.Question, qs *redis.QuizState, jump *int64, delta int, answer string) {
	if ev.Kind == EventCallback {
		b.dropKeyboard(ev.ChatID, ev.MessageID)
	}

	scored := 0
	if q.Scored() {
		scored = 1
	}

	next, ok := form.Next(q, jump)
	if !ok {
		answers := make(map[string]string, len(qs.Answers)+1)
		for k, v := range qs.Answers {
			answers[k] = v
		}
		answers[q.Text] = answer
		if !b.finishQuiz(ctx, ev, form, qs.Score+delta, qs.Scored+scored, answers) {
			// The session still points at q; let the user answer it again.
			b.askQuestion(ctx, ev.ChatID, form, q, qs.Selected)
		}
		return
	}

	if _, err := b.state.Update(ctx, ev.UserID, func(s *redis.Session) error {
		if s.Flow != redis.FlowQuiz || s.Quiz == nil || s.Quiz.QuestionID != q.ID {
			return ErrSessionMissing
		}
		if s.Quiz.Answers == nil {
			s.Quiz.Answers = make(map[string]string)
		}
		s.Quiz.Score += delta
		s.Quiz.Scored += scored
		s.Quiz.Answers[q.Text] = answer
		s.Quiz.Selected = nil
		s.Quiz.QuestionID = next.ID
		s.Step = stepForQuestion(next)
		return nil
	}); err != nil {
		b.logger.Error("Failed to advance quiz",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int64("question_id", q.ID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Ошибка при сохранении ответа")
		return
	}

	b.askQuestion(ctx, ev.ChatID, form, next, nil)
}

// finishQuiz persists the result and ends the flow. It reports false when
// the result could not be saved; the session is then left untouched.
func (b *Bot) finishQuiz(ctx context.Context, ev Event, form *quiz.Form, score, maxScore int, answers map[string]string) bool {
	err := b.storage.SaveResult(ctx, storage.Result{
		TelegramID: ev.UserID,
		FormID:     form.ID,
		Score:      score,
		Answers:    answers,
	})
	if err != nil {
		b.logger.Error("Failed to save result",
			zap.Int64("chat_id", ev.ChatID),
			zap.Int64("form_id", form.ID),
			zap.Error(err))
		b.SendError(ev.ChatID, "Не удалось сохранить результат. Попробуйте ответить ещё раз.")
		return false
	}
	b.clearState(ctx, ev.ChatID, ev.UserID)

	b.logger.Info("Quiz completed",
		zap.Int64("chat_id", ev.ChatID),
		zap.Int64("form_id", form.ID),
		zap.Int("score", score))
	b.ShowMainMenu(ev.ChatID, completionText(form, score, maxScore))
	return true
}

func completionText(form *quiz.Form, score, maxScore int) string {
	if form.Mode == quiz.ModeQuestionnaire {
		if form.FinishText != "" {
			return form.FinishText
		}
		return "✅ Спасибо! Ваши ответы сохранены."
	}

	text := fmt.Sprintf("🏁 Тест «%s» завершён!\nВаш результат: %d из %d",
		form.Name, score, maxScore)
	if form.FinishText != "" {
		text += "\n\n" + form.FinishText
	}
	return text
}

// askQuestion sends q, with its image when it has one. A failed image
// delivery falls back to plain text so the user is not stuck.
func (b *Bot) askQuestion(ctx context.Context, chatID int64, form *quiz.Form, q *quiz.Question, selected []int64) {
	req := media.Request{
		ChatID:  chatID,
		Kind:    media.KindText,
		Caption: q.Text,
	}

	if q.FreeText() {
		hint := "✍️ Напишите ответ сообщением."
		if q.AcceptsFile {
			hint = "✍️ Напишите ответ сообщением или отправьте файл."
		}
		req.Caption += "\n\n" + hint
	} else {
		kb, err := b.CreateQuestionKeyboard(form.ID, q, selected)
		if err != nil {
			b.logger.Error("Failed to build question keyboard",
				zap.Int64("form_id", form.ID),
				zap.Int64("question_id", q.ID),
				zap.Error(err))
			b.SendError(chatID, "Ошибка при загрузке вопроса")
			return
		}
		req.Keyboard = kb
	}

	if q.Image != "" {
		req.Kind = media.KindFromPath(q.Image)
		req.Source = q.Image
	}

	_, err := b.media.Deliver(ctx, req)
	if err == nil {
		return
	}
	b.logger.Error("Failed to deliver question",
		zap.Int64("chat_id", chatID),
		zap.Int64("question_id", q.ID),
		zap.Error(err))

	if req.Kind == media.KindText {
		b.SendError(chatID, "Не удалось отправить вопрос. Нажмите /cancel и попробуйте позже.")
		return
	}
	b.SendError(chatID, "Не удалось отправить изображение к вопросу")
	req.Kind, req.Source = media.KindText, ""
	if _, err := b.media.Deliver(ctx, req); err != nil {
		b.logger.Error("Failed to deliver question text",
			zap.Int64("chat_id", chatID),
			zap.Int64("question_id", q.ID),
			zap.Error(err))
	}
}

func (b *Bot) rejectStale(ev Event) {
	b.logger.Debug("Stale quiz callback",
		zap.Int64("chat_id", ev.ChatID),
		zap.String("data", ev.Data))
	b.SendError(ev.ChatID, "Этот вопрос уже неактуален. Ответьте на текущий вопрос или нажмите /cancel")
}

func answerTexts(q *quiz.Question, selected []int64) string {
	texts := make([]string, 0, len(selected))
	for _, id := range selected {
		if a, ok := q.Answer(id); ok {
			texts = append(texts, a.Text)
		}
	}
	return strings.Join(texts, ", ")
}
