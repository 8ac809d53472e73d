package models

// QuestionStatus is the lifecycle position of a question in a room.
type QuestionStatus string

const (
	QuestionNotSent   QuestionStatus = "not_sent"
	QuestionSent      QuestionStatus = "sent"
	QuestionAnswered  QuestionStatus = "answered"
	QuestionEvaluated QuestionStatus = "evaluated"
)

var questionOrder = []QuestionStatus{QuestionNotSent, QuestionSent, QuestionAnswered, QuestionEvaluated}

// Rank returns the position of s in the lifecycle, or -1 if unknown.
func (s QuestionStatus) Rank() int {
	for i, v := range questionOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// Next returns the only status s may move to. ok is false for the
// terminal status and for unknown values.
func (s QuestionStatus) Next() (QuestionStatus, bool) {
	i := s.Rank()
	if i < 0 || i == len(questionOrder)-1 {
		return "", false
	}
	return questionOrder[i+1], true
}

// QuestionTimelineEntry tracks one question through the lifecycle.
type QuestionTimelineEntry struct {
	ID                 string         `json:"id" bson:"id"`
	Question           string         `json:"question" bson:"question"`
	QuestionType       string         `json:"questionType,omitempty" bson:"questionType,omitempty"`
	Difficulty         string         `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
	Status             QuestionStatus `json:"status" bson:"status"`
	Timestamp          int64          `json:"timestamp" bson:"timestamp"`
	SentTimestamp      *int64         `json:"sentTimestamp,omitempty" bson:"sentTimestamp,omitempty"`
	AnsweredTimestamp  *int64         `json:"answeredTimestamp,omitempty" bson:"answeredTimestamp,omitempty"`
	EvaluatedTimestamp *int64         `json:"evaluatedTimestamp,omitempty" bson:"evaluatedTimestamp,omitempty"`
	Code               *string        `json:"code,omitempty" bson:"code,omitempty"`
	Analysis           *Feedback      `json:"analysis,omitempty" bson:"analysis,omitempty"`
}

// TimelineTransition moves an entry from From to To at time At. Only the
// timestamp field for To is written, plus Code (answered) or Analysis
// (evaluated).
type TimelineTransition struct {
	From     QuestionStatus
	To       QuestionStatus
	At       int64
	Code     *string
	Analysis *Feedback
}

// Apply writes the transition onto e. Callers check From first.
func (t TimelineTransition) Apply(e *QuestionTimelineEntry) {
	e.Status = t.To
	at := t.At
	switch t.To {
	case QuestionSent:
		e.SentTimestamp = &at
	case QuestionAnswered:
		e.AnsweredTimestamp = &at
		if t.Code != nil {
			e.Code = t.Code
		}
	case QuestionEvaluated:
		e.EvaluatedTimestamp = &at
		if t.Analysis != nil {
			e.Analysis = t.Analysis
		}
	}
}

// Valid reports whether the transition is a single forward step.
func (t TimelineTransition) Valid() bool {
	next, ok := t.From.Next()
	return ok && next == t.To
}
