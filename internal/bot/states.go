package bot

// Registration steps, in wizard order.
const (
	StepLanguage  = "language"
	StepFirstName = "first_name"
	StepCity      = "city"
	StepGames     = "games"
	StepPhone     = "phone"
	StepLocation  = "location"

	// stepFinalize is the pseudo step after location; it is never stored.
	stepFinalize = "finalize"
)

// Quiz steps.
const (
	StepQuizAnswer   = "quiz_answer"
	StepQuizFreeText = "quiz_free_text"
	StepQuizFile     = "quiz_file"
)

// Reply keyboard buttons.
const (
	BtnRegister     = "📝 Регистрация"
	BtnQuizzes      = "🧩 Тесты"
	BtnHelp         = "ℹ️ Помощь"
	BtnCancel       = "❌ Отмена"
	BtnSendPhone    = "📱 Отправить номер"
	BtnSendLocation = "📍 Отправить геолокацию"
)

// Callback properties.
const (
	propLanguage = "lang"
	propLocation = "loc"
	propForm     = "form"
	propGame     = "game"
	propQuiz     = "quiz"

	valueCancel = "cancel"
	valueSkip   = "skip"

	gameToggle = "toggle"
	gameCustom = "custom"
	gameDone   = "done"

	answerDone   = "done"
	answerCustom = "custom"

	// placeholder fills a field the action does not need.
	placeholder = "-"
)

type language struct {
	Code  string
	Title string
}

var languages = []language{
	{Code: "ru", Title: "🇷🇺 Русский"},
	{Code: "uz", Title: "🇺🇿 O‘zbekcha"},
	{Code: "en", Title: "🇬🇧 English"},
}

func languageByCode(code string) (language, bool) {
	for _, l := range languages {
		if l.Code == code {
			return l, true
		}
	}
	return language{}, false
}
