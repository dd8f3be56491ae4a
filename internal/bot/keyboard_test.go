package bot

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowbot/internal/callback"
	"flowbot/internal/quiz"
)

func TestCreateQuestionKeyboard_Layout(t *testing.T) {
	env := newTestEnv(t)
	q := &quiz.Question{
		ID:            11,
		OneRowButtons: true,
		CustomAnswer:  true,
		MultiAnswer:   true,
		Answers: []quiz.Answer{
			{ID: 1, Text: "A"},
			{ID: 2, Text: "B"},
		},
	}

	kb, err := env.bot.CreateQuestionKeyboard(3, q, []int64{2})
	require.NoError(t, err)

	rows := kb.InlineKeyboard
	require.Len(t, rows, 4)
	require.Len(t, rows[0], 2)
	assert.Equal(t, "A", rows[0][0].Text)
	assert.Equal(t, "✅ B", rows[0][1].Text)
	assert.Equal(t, "prop3|quiz|3|11|1", *rows[0][0].CallbackData)
	assert.Equal(t, "prop3|quiz|3|11|custom", *rows[1][0].CallbackData)
	assert.Equal(t, "prop3|quiz|3|11|done", *rows[2][0].CallbackData)
	assert.Equal(t, cancelToken, *rows[3][0].CallbackData)
}

func TestCreateQuestionKeyboard_TokenTooLong(t *testing.T) {
	env := newTestEnv(t)
	q := &quiz.Question{
		ID:      math.MaxInt64,
		Answers: []quiz.Answer{{ID: math.MaxInt64, Text: "A"}},
	}

	_, err := env.bot.CreateQuestionKeyboard(math.MaxInt64, q, nil)
	assert.ErrorIs(t, err, callback.ErrTokenTooLong)
}

func TestCreateGamesKeyboard(t *testing.T) {
	env := newTestEnv(t)

	kb := env.bot.CreateGamesKeyboard([]string{"CS2", "Valorant"})

	rows := kb.InlineKeyboard
	require.Len(t, rows, len(env.bot.cfg.Games)+2)
	assert.Equal(t, "Dota 2", rows[0][0].Text)
	assert.Equal(t, "✅ CS2", rows[1][0].Text)
	assert.Equal(t, "prop2|game|toggle|1", *rows[1][0].CallbackData)
	assert.Equal(t, "prop2|game|custom|-", *rows[3][0].CallbackData)
	assert.Equal(t, "prop2|game|done|-", *rows[3][1].CallbackData)
}
