package bot

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbot/internal/bot/media"
	"flowbot/internal/callback"
	"flowbot/internal/storage/redis"
)

func decoded(t *testing.T, ev Event) Event {
	t.Helper()
	if ev.Kind == EventCallback {
		token, err := callback.Decode(ev.Data)
		require.NoError(t, err)
		ev.Token = token
	}
	return ev
}

func TestResolve(t *testing.T) {
	env := newTestEnv(t)

	idle := &redis.Session{}
	city := atStep(StepCity)
	answering := &redis.Session{Flow: redis.FlowQuiz, Step: StepQuizAnswer, Quiz: &redis.QuizState{FormID: 1, QuestionID: 11}}
	freeText := &redis.Session{Flow: redis.FlowQuiz, Step: StepQuizFreeText, Quiz: &redis.QuizState{FormID: 5, QuestionID: 51}}

	langButton := callbackEvent(user, callback.MustEncode(callback.MarkerProperty, propLanguage, "ru"))
	formButton := callbackEvent(user, callback.MustEncode(callback.MarkerProperty, propForm, "1"))
	quizButton := callbackEvent(user, answerToken(1, 11, 111))

	tests := []struct {
		name    string
		session *redis.Session
		ev      Event
		route   string
	}{
		{name: "idle text", session: idle, ev: textEvent(user, "привет"), route: "fallback"},
		{name: "idle command", session: idle, ev: commandEvent(user, "start"), route: "entry"},
		{name: "idle menu button", session: idle, ev: textEvent(user, BtnHelp), route: "entry"},
		{name: "idle form button", session: idle, ev: formButton, route: "entry"},
		{name: "idle quiz button", session: idle, ev: quizButton, route: "stale_callback"},
		{name: "idle cancel", session: idle, ev: commandEvent(user, "cancel"), route: "cancel"},
		{name: "registration text", session: city, ev: textEvent(user, "Самарканд"), route: "registration"},
		{name: "registration wrong button", session: city, ev: langButton, route: "mismatch"},
		{name: "registration command", session: city, ev: commandEvent(user, "quizzes"), route: "entry"},
		{name: "registration cancel button", session: city, ev: textEvent(user, BtnCancel), route: "cancel"},
		{name: "quiz button", session: answering, ev: quizButton, route: "quiz"},
		{name: "quiz text", session: answering, ev: textEvent(user, "ответ"), route: "mismatch"},
		{name: "quiz menu button", session: answering, ev: textEvent(user, BtnQuizzes), route: "entry"},
		{name: "quiz form button", session: answering, ev: formButton, route: "entry"},
		{name: "free text", session: freeText, ev: textEvent(user, "ответ"), route: "quiz"},
		{name: "free text file", session: freeText, ev: Event{Kind: EventFile, UserID: user, FileID: "f"}, route: "mismatch"},
		{name: "quiz cancel callback", session: answering, ev: callbackEvent(user, cancelToken), route: "cancel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.route, env.bot.resolve(tt.session, decoded(t, tt.ev)).name)
		})
	}
}

func TestHandleEvent_BadCallbackData(t *testing.T) {
	for _, data := range []string{"a|b|c|d|e|f", "nope|x", "prop|lang", ""} {
		t.Run(data, func(t *testing.T) {
			env := newTestEnv(t)
			env.start(t, user, atStep(StepLanguage))

			env.handle(callbackEvent(user, data))

			assert.Equal(t, StepLanguage, env.session(t, user).Step)
			env.lastTextContains(t, "Кнопка больше не работает")
		})
	}
}

func TestHandleEvent_RecoversPanic(t *testing.T) {
	env := newTestEnv(t)
	env.repo.panicOnList = true

	assert.NotPanics(t, func() {
		env.handle(commandEvent(user, "quizzes"))
	})
	env.lastTextContains(t, "Системная ошибка")
}

func TestHandleEvent_Fallbacks(t *testing.T) {
	tests := []struct {
		name    string
		ev      Event
		message string
	}{
		{name: "unknown command", ev: commandEvent(user, "foo"), message: "Неизвестная команда"},
		{name: "free text", ev: textEvent(user, "привет"), message: "Я не понимаю"},
		{name: "cancel without flow", ev: commandEvent(user, "cancel"), message: "Нечего отменять"},
		{name: "help", ev: commandEvent(user, "help"), message: "/register"},
		{name: "missing form", ev: commandEvent(user, "quiz42"), message: "Тест не найден"},
		{name: "empty quiz list", ev: commandEvent(user, "quiz"), message: "нет доступных тестов"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.handle(tt.ev)
			env.lastTextContains(t, tt.message)
			assert.False(t, env.session(t, user).Active())
		})
	}
}

func TestHandleStart_ClearsFlowAndWelcomes(t *testing.T) {
	env := newTestEnv(t)
	env.bot.cfg.WelcomeMedia = "welcome.jpg"
	env.start(t, user, atStep(StepCity))

	ev := commandEvent(user, "start")
	ev.Username = "anna"
	env.handle(ev)

	assert.False(t, env.session(t, user).Active())
	assert.Equal(t, "anna", env.repo.contacts[user])

	require.NotEmpty(t, env.media.reqs)
	req := env.media.reqs[len(env.media.reqs)-1]
	assert.Equal(t, media.KindPhoto, req.Kind)
	assert.Equal(t, "welcome.jpg", req.Source)
	assert.Contains(t, req.Caption, "Привет")
}

func TestHandleEvent_AnswersCallbacks(t *testing.T) {
	env := newTestEnv(t)

	env.handle(callbackEvent(user, cancelToken))

	require.NotEmpty(t, env.sender.requests)
	answer, ok := env.sender.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb", answer.CallbackQueryID)
}
