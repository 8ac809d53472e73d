package models

// HistoryEntry records one generated question. Only CandidateCode and
// AIFeedback change after creation.
type HistoryEntry struct {
	ID            string    `json:"id" bson:"id"`
	Question      string    `json:"question" bson:"question"`
	QuestionType  string    `json:"questionType,omitempty" bson:"questionType,omitempty"`
	Difficulty    string    `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
	Timestamp     int64     `json:"timestamp" bson:"timestamp"`
	CandidateCode *string   `json:"candidateCode,omitempty" bson:"candidateCode,omitempty"`
	AIFeedback    *Feedback `json:"aiFeedback,omitempty" bson:"aiFeedback,omitempty"`
}

// HistoryAttachment is the set of fields that may be attached to an
// existing history entry.
type HistoryAttachment struct {
	CandidateCode *string   `json:"candidateCode,omitempty"`
	AIFeedback    *Feedback `json:"aiFeedback,omitempty"`
}

func (a *HistoryAttachment) Validate() error {
	if a.CandidateCode == nil && a.AIFeedback == nil {
		return &ErrorResponse{Code: "empty_attachment", Message: "candidateCode or aiFeedback is required"}
	}
	if a.AIFeedback != nil {
		if err := a.AIFeedback.Validate(); err != nil {
			return err
		}
	}
	return nil
}

type SentQuestion struct {
	ID           string `json:"id" bson:"id"`
	Question     string `json:"question" bson:"question"`
	QuestionType string `json:"questionType,omitempty" bson:"questionType,omitempty"`
	Difficulty   string `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
	Timestamp    int64  `json:"timestamp" bson:"timestamp"`
	SentBy       Role   `json:"sentBy" bson:"sentBy"`
	IsAsked      bool   `json:"isAsked" bson:"isAsked"`
}
