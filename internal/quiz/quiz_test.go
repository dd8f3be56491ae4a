package quiz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jump(id int64) *int64 { return &id }

// sampleForm: 1 -> 2 (multi) -> 3 -> 4, where answer 11 of question 1 jumps to 3.
func sampleForm() *Form {
	return &Form{
		ID:   7,
		Mode: ModeQuiz,
		Questions: []Question{
			{ID: 3, FormID: 7, Position: 3, Text: "q3", Answers: []Answer{
				{ID: 30, QuestionID: 3, Text: "a", IsCorrect: true},
			}},
			{ID: 1, FormID: 7, Position: 1, Text: "q1", Answers: []Answer{
				{ID: 10, QuestionID: 1, Text: "yes", IsCorrect: true},
				{ID: 11, QuestionID: 1, Text: "no", JumpTo: jump(3)},
			}},
			{ID: 2, FormID: 7, Position: 2, Text: "q2", MultiAnswer: true, Answers: []Answer{
				{ID: 20, QuestionID: 2, Text: "A", IsCorrect: true},
				{ID: 21, QuestionID: 2, Text: "B"},
				{ID: 22, QuestionID: 2, Text: "C", IsCorrect: true},
			}},
			{ID: 4, FormID: 7, Position: 4, Text: "free"},
		},
	}
}

func TestFirstAndSort(t *testing.T) {
	f := sampleForm()
	first, ok := f.First()
	require.True(t, ok)
	assert.Equal(t, int64(1), first.ID)

	f.Sort()
	ids := make([]int64, 0, len(f.Questions))
	for _, q := range f.Questions {
		ids = append(ids, q.ID)
	}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids)
}

func TestNext(t *testing.T) {
	f := sampleForm()
	q1, _ := f.Question(1)

	next, ok := f.Next(q1, nil)
	require.True(t, ok)
	assert.Equal(t, int64(2), next.ID)

	no, _ := q1.Answer(11)
	next, ok = f.Next(q1, no.JumpTo)
	require.True(t, ok)
	assert.Equal(t, int64(3), next.ID)

	q4, _ := f.Question(4)
	_, ok = f.Next(q4, nil)
	assert.False(t, ok)
}

func TestNext_PositionTieBreak(t *testing.T) {
	f := &Form{Questions: []Question{
		{ID: 1, Position: 1},
		{ID: 9, Position: 2},
		{ID: 5, Position: 2},
	}}
	q1, _ := f.Question(1)
	next, ok := f.Next(q1, nil)
	require.True(t, ok)
	assert.Equal(t, int64(5), next.ID)
}

func TestNext_JumpOutsideFormFallsBack(t *testing.T) {
	f := sampleForm()
	q1, _ := f.Question(1)
	next, ok := f.Next(q1, jump(999))
	require.True(t, ok)
	assert.Equal(t, int64(2), next.ID)
}

func TestScoreSingle(t *testing.T) {
	f := sampleForm()
	q1, _ := f.Question(1)
	yes, _ := q1.Answer(10)
	no, _ := q1.Answer(11)
	assert.Equal(t, 1, ScoreSingle(yes))
	assert.Equal(t, 0, ScoreSingle(no))
}

func TestScoreMulti(t *testing.T) {
	f := sampleForm()
	q2, _ := f.Question(2)

	assert.Equal(t, 0, ScoreMulti(q2, []int64{20, 21}))
	assert.Equal(t, 1, ScoreMulti(q2, []int64{20, 22}))
	assert.Equal(t, 1, ScoreMulti(q2, []int64{22}))
	assert.Equal(t, 0, ScoreMulti(q2, nil))
	assert.Equal(t, 0, ScoreMulti(q2, []int64{30}))
}

func TestToggle(t *testing.T) {
	sel := Toggle(nil, 20)
	sel = Toggle(sel, 21)
	assert.Equal(t, []int64{20, 21}, sel)
	assert.True(t, Contains(sel, 21))

	sel = Toggle(sel, 20)
	assert.Equal(t, []int64{21}, sel)

	sel = Toggle(sel, 21)
	assert.Empty(t, sel)
}

func TestToggle_DoesNotAlias(t *testing.T) {
	base := make([]int64, 2, 8)
	base[0], base[1] = 1, 2
	a := Toggle(base, 3)
	b := Toggle(base, 4)
	assert.Equal(t, []int64{1, 2, 3}, a)
	assert.Equal(t, []int64{1, 2, 4}, b)
}

func TestMultiJump(t *testing.T) {
	q := &Question{ID: 2, Answers: []Answer{
		{ID: 1},
		{ID: 2, JumpTo: jump(8)},
		{ID: 3, JumpTo: jump(9)},
	}}
	assert.Nil(t, MultiJump(q, []int64{1}))
	assert.Equal(t, int64(9), *MultiJump(q, []int64{3, 2}))
}

func TestQuestionScored(t *testing.T) {
	f := sampleForm()
	for id, want := range map[int64]bool{1: true, 2: true, 3: true, 4: false} {
		q, ok := f.Question(id)
		require.True(t, ok)
		assert.Equal(t, want, q.Scored(), "question %d", id)
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, sampleForm().Validate())

	assert.ErrorIs(t, (&Form{}).Validate(), ErrEmptyForm)

	cyclic := sampleForm()
	q3, _ := cyclic.Question(3)
	q3.Answers[0].JumpTo = jump(1)
	assert.ErrorIs(t, cyclic.Validate(), ErrCyclicForm)

	foreign := sampleForm()
	q1, _ := foreign.Question(1)
	q1.Answers[0].JumpTo = jump(100)
	assert.ErrorIs(t, foreign.Validate(), ErrForeignJump)
}

func TestValidate_SelfJump(t *testing.T) {
	f := &Form{Questions: []Question{
		{ID: 1, Position: 1, Answers: []Answer{{ID: 1, JumpTo: jump(1)}}},
	}}
	assert.ErrorIs(t, f.Validate(), ErrCyclicForm)
}
