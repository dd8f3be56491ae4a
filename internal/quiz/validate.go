package quiz

import "fmt"

// Validate checks that every path from the entry question terminates. It is
// meant to run when a form is loaded for a new session so that traversal
// itself never has to guard against loops.
func (f *Form) Validate() error {
	first, ok := f.First()
	if !ok {
		return ErrEmptyForm
	}

	for i := range f.Questions {
		for _, a := range f.Questions[i].Answers {
			if a.JumpTo == nil {
				continue
			}
			if _, ok := f.Question(*a.JumpTo); !ok {
				return fmt.Errorf("answer %d -> question %d: %w", a.ID, *a.JumpTo, ErrForeignJump)
			}
		}
	}

	const (
		unseen = iota
		active
		done
	)
	color := make(map[int64]int, len(f.Questions))

	var visit func(q *Question) error
	visit = func(q *Question) error {
		switch color[q.ID] {
		case active:
			return fmt.Errorf("question %d: %w", q.ID, ErrCyclicForm)
		case done:
			return nil
		}
		color[q.ID] = active
		for _, next := range f.successors(q) {
			if err := visit(next); err != nil {
				return err
			}
		}
		color[q.ID] = done
		return nil
	}

	return visit(first)
}

// successors lists every question reachable in one step from q: each jump
// target, plus the positional next whenever some path can fall through to it.
func (f *Form) successors(q *Question) []*Question {
	var out []*Question
	fallsThrough := len(q.Answers) == 0 || q.CustomAnswer || q.MultiAnswer
	for _, a := range q.Answers {
		if a.JumpTo == nil {
			fallsThrough = true
			continue
		}
		if next, ok := f.Question(*a.JumpTo); ok {
			out = append(out, next)
		}
	}
	if fallsThrough {
		if next, ok := f.Next(q, nil); ok {
			out = append(out, next)
		}
	}
	return out
}
