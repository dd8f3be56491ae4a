package bot

import (
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"flowbot/internal/callback"
	"flowbot/internal/quiz"
	"flowbot/internal/storage"
)

var cancelToken = callback.MustEncode(callback.MarkerValue, valueCancel)

func (b *Bot) CreateMainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnRegister),
			tgbotapi.NewKeyboardButton(BtnQuizzes),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnHelp),
		),
	)
}

func (b *Bot) CreateCancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnCancel),
		),
	)
}

func (b *Bot) CreateContactRequestKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonContact(BtnSendPhone),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnCancel),
		),
	)
}

func (b *Bot) CreateLocationRequestKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButtonLocation(BtnSendLocation),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(BtnCancel),
		),
	)
}

func (b *Bot) CreateSkipLocationKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏭ Пропустить",
				callback.MustEncode(callback.MarkerProperty, propLocation, valueSkip)),
		),
	)
}

func (b *Bot) CreateLanguageKeyboard() tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(languages)+1)
	for _, l := range languages {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(l.Title,
				callback.MustEncode(callback.MarkerProperty, propLanguage, l.Code)),
		))
	}
	rows = append(rows, cancelRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// CreateGamesKeyboard marks the configured games the user picked. Custom
// entries are listed in the message text instead.
func (b *Bot) CreateGamesKeyboard(selected []string) tgbotapi.InlineKeyboardMarkup {
	picked := make(map[string]bool, len(selected))
	for _, g := range selected {
		picked[g] = true
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(b.cfg.Games)+2)
	for i, game := range b.cfg.Games {
		title := game
		if picked[game] {
			title = "✅ " + game
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(title,
				callback.MustEncode(callback.MarkerProperty2, propGame, gameToggle, strconv.Itoa(i))),
		))
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Другая игра",
				callback.MustEncode(callback.MarkerProperty2, propGame, gameCustom, placeholder)),
			tgbotapi.NewInlineKeyboardButtonData("➡️ Готово",
				callback.MustEncode(callback.MarkerProperty2, propGame, gameDone, placeholder)),
		),
		cancelRow(),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) CreateFormsKeyboard(forms []storage.FormSummary) (tgbotapi.InlineKeyboardMarkup, error) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(forms))
	for _, f := range forms {
		data, err := callback.Encode(callback.MarkerProperty, propForm, strconv.FormatInt(f.ID, 10))
		if err != nil {
			return tgbotapi.InlineKeyboardMarkup{}, fmt.Errorf("encode form %d: %w", f.ID, err)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(f.Name, data),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), nil
}

// CreateQuestionKeyboard renders the answers of q. Multi-answer questions
// show the current selection and a proceed button.
func (b *Bot) CreateQuestionKeyboard(formID int64, q *quiz.Question, selected []int64) (tgbotapi.InlineKeyboardMarkup, error) {
	encode := func(action string) (string, error) {
		return callback.Encode(callback.MarkerProperty3, propQuiz,
			strconv.FormatInt(formID, 10), strconv.FormatInt(q.ID, 10), action)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	var oneRow []tgbotapi.InlineKeyboardButton
	for _, a := range q.Answers {
		data, err := encode(strconv.FormatInt(a.ID, 10))
		if err != nil {
			return tgbotapi.InlineKeyboardMarkup{}, fmt.Errorf("encode answer %d: %w", a.ID, err)
		}
		title := a.Text
		if q.MultiAnswer && quiz.Contains(selected, a.ID) {
			title = "✅ " + title
		}
		button := tgbotapi.NewInlineKeyboardButtonData(title, data)
		if q.OneRowButtons {
			oneRow = append(oneRow, button)
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button))
	}
	if len(oneRow) > 0 {
		rows = append(rows, oneRow)
	}

	if q.CustomAnswer {
		data, err := encode(answerCustom)
		if err != nil {
			return tgbotapi.InlineKeyboardMarkup{}, err
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Свой ответ", data),
		))
	}
	if q.MultiAnswer {
		data, err := encode(answerDone)
		if err != nil {
			return tgbotapi.InlineKeyboardMarkup{}, err
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➡️ Далее", data),
		))
	}
	rows = append(rows, cancelRow())
	return tgbotapi.NewInlineKeyboardMarkup(rows...), nil
}

func cancelRow() []tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(BtnCancel, cancelToken),
	)
}
