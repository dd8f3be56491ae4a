package quiz

// ScoreSingle is the score delta of picking one answer.
func ScoreSingle(a *Answer) int {
	if a.IsCorrect {
		return 1
	}
	return 0
}

// ScoreMulti awards one point only when every selected answer is correct.
// There is no partial credit, and an empty selection scores nothing.
func ScoreMulti(q *Question, selected []int64) int {
	if len(selected) == 0 {
		return 0
	}
	for _, id := range selected {
		a, ok := q.Answer(id)
		if !ok || !a.IsCorrect {
			return 0
		}
	}
	return 1
}

// Toggle adds id to the selection or removes it when already present.
// Order of the remaining entries is kept.
func Toggle(selected []int64, id int64) []int64 {
	for i, v := range selected {
		if v == id {
			out := make([]int64, 0, len(selected)-1)
			out = append(out, selected[:i]...)
			return append(out, selected[i+1:]...)
		}
	}
	out := make([]int64, len(selected), len(selected)+1)
	copy(out, selected)
	return append(out, id)
}

func Contains(selected []int64, id int64) bool {
	for _, v := range selected {
		if v == id {
			return true
		}
	}
	return false
}

// MultiJump is the jump of the first selected answer that declares one.
func MultiJump(q *Question, selected []int64) *int64 {
	for _, id := range selected {
		if a, ok := q.Answer(id); ok && a.JumpTo != nil {
			return a.JumpTo
		}
	}
	return nil
}
