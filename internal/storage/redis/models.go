package redis

import "time"

// Flow is the conversation a user is currently in.
type Flow string

const (
	FlowNone         Flow = ""
	FlowRegistration Flow = "registration"
	FlowQuiz         Flow = "quiz"
)

func (f Flow) String() string {
	if f == FlowNone {
		return "none"
	}
	return string(f)
}

// Session is the per-user envelope stored under state:<user_id>. Exactly one
// of the flow payloads is set while a flow is active.
type Session struct {
	Flow         Flow               `json:"flow,omitempty"`
	Step         string             `json:"step,omitempty"`
	Registration *RegistrationState `json:"registration,omitempty"`
	Quiz         *QuizState         `json:"quiz,omitempty"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Active reports whether the user is inside a flow.
func (s *Session) Active() bool {
	return s.Flow != FlowNone
}

// Reset drops any flow payload.
func (s *Session) Reset() {
	*s = Session{}
}

type RegistrationState struct {
	Language  string   `json:"language,omitempty"`
	FirstName string   `json:"first_name,omitempty"`
	City      string   `json:"city,omitempty"`
	Games     []string `json:"games,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	// AwaitingCustomGame is set after the custom sentinel button.
	AwaitingCustomGame bool `json:"awaiting_custom_game,omitempty"`
}

type QuizState struct {
	FormID     int64 `json:"form_id"`
	QuestionID int64 `json:"question_id"`
	Score      int   `json:"score"`
	// Scored counts the answered questions that could award a point.
	Scored   int     `json:"scored"`
	Selected []int64 `json:"selected,omitempty"`
	// Answers is keyed by question text.
	Answers map[string]string `json:"answers,omitempty"`
}
