// Package quiz holds the question graph of a form and the rules for walking
// it: which question comes next, how answers are scored and when a form is
// safe to run.
package quiz

import (
	"errors"
	"sort"
)

type Mode string

const (
	ModeQuiz          Mode = "quiz"
	ModeQuestionnaire Mode = "questionnaire"
)

// AccessLevel gates who may start a form.
type AccessLevel int

const (
	AccessContact AccessLevel = iota
	AccessLead
	AccessClient
)

func (l AccessLevel) String() string {
	switch l {
	case AccessContact:
		return "contact"
	case AccessLead:
		return "lead"
	case AccessClient:
		return "client"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyForm   = errors.New("form has no questions")
	ErrCyclicForm  = errors.New("form question graph has a cycle")
	ErrForeignJump = errors.New("answer jumps outside its form")
)

type Form struct {
	ID          int64
	Name        string
	Mode        Mode
	OneOff      bool
	AccessLevel AccessLevel
	FinishText  string
	Questions   []Question
}

type Question struct {
	ID            int64
	FormID        int64
	Position      int
	Text          string
	Image         string
	MultiAnswer   bool
	CustomAnswer  bool
	AcceptsFile   bool
	OneRowButtons bool
	Answers       []Answer
}

type Answer struct {
	ID         int64
	QuestionID int64
	Text       string
	IsCorrect  bool
	JumpTo     *int64
}

// FreeText reports whether the question is answered by a message rather
// than a button.
func (q *Question) FreeText() bool {
	return len(q.Answers) == 0
}

// Scored reports whether answering q can award a point.
func (q *Question) Scored() bool {
	for _, a := range q.Answers {
		if a.IsCorrect {
			return true
		}
	}
	return false
}

func (q *Question) Answer(id int64) (*Answer, bool) {
	for i := range q.Answers {
		if q.Answers[i].ID == id {
			return &q.Answers[i], true
		}
	}
	return nil, false
}

// Sort orders questions by (position, id).
func (f *Form) Sort() {
	sort.SliceStable(f.Questions, func(i, j int) bool {
		return less(&f.Questions[i], &f.Questions[j])
	})
}

func less(a, b *Question) bool {
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return a.ID < b.ID
}

func (f *Form) Question(id int64) (*Question, bool) {
	for i := range f.Questions {
		if f.Questions[i].ID == id {
			return &f.Questions[i], true
		}
	}
	return nil, false
}

// First is the entry question.
func (f *Form) First() (*Question, bool) {
	var first *Question
	for i := range f.Questions {
		q := &f.Questions[i]
		if first == nil || less(q, first) {
			first = q
		}
	}
	return first, first != nil
}

// Next resolves the question after current. A jump target inside the form
// wins; otherwise the lowest (position, id) with a position greater than
// current's. ok is false at the end of the form.
func (f *Form) Next(current *Question, jumpTo *int64) (*Question, bool) {
	if jumpTo != nil {
		if q, ok := f.Question(*jumpTo); ok {
			return q, true
		}
	}

	var next *Question
	for i := range f.Questions {
		q := &f.Questions[i]
		if q.Position <= current.Position {
			continue
		}
		if next == nil || less(q, next) {
			next = q
		}
	}
	return next, next != nil
}
