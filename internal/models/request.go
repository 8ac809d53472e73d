package models

import "strings"

var ValidDifficulties = map[string]bool{
	"easy":   true,
	"medium": true,
	"hard":   true,
}

var ValidQuestionTypes = map[string]bool{
	"coding":        true,
	"behavioral":    true,
	"system_design": true,
	"technical":     true,
}

// GenerateQuestionRequest creates a new question for the room. When
// Question is empty the generator is asked for one.
type GenerateQuestionRequest struct {
	Question     string `json:"question,omitempty"`
	QuestionType string `json:"questionType"`
	Difficulty   string `json:"difficulty"`
	Topic        string `json:"topic,omitempty"`
	RequestID    string `json:"requestId,omitempty"`
}

func (r *GenerateQuestionRequest) Validate() error {
	r.QuestionType = strings.ToLower(strings.TrimSpace(r.QuestionType))
	r.Difficulty = strings.ToLower(strings.TrimSpace(r.Difficulty))
	if r.QuestionType == "" {
		r.QuestionType = "coding"
	}
	if !ValidQuestionTypes[r.QuestionType] {
		return &ErrorResponse{Code: "invalid_question_type", Message: "questionType must be one of coding, behavioral, system_design, technical"}
	}
	if r.Difficulty == "" {
		r.Difficulty = "medium"
	}
	if !ValidDifficulties[r.Difficulty] {
		return &ErrorResponse{Code: "invalid_difficulty", Message: "difficulty must be one of easy, medium, hard"}
	}
	return nil
}

type SendQuestionRequest struct {
	Question     string `json:"question"`
	QuestionType string `json:"questionType,omitempty"`
	Difficulty   string `json:"difficulty,omitempty"`
	SentBy       Role   `json:"sentBy"`
}

func (r *SendQuestionRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return &ErrorResponse{Code: "missing_question", Message: "question is required"}
	}
	if r.SentBy == "" {
		r.SentBy = RoleInterviewer
	}
	if !r.SentBy.Valid() {
		return &ErrorResponse{Code: "invalid_role", Message: "sentBy must be interviewer or candidate"}
	}
	return nil
}

// SubmissionRequest submits candidate code for the current question.
// Evaluate=false records the code without calling the generator.
type SubmissionRequest struct {
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Evaluate  *bool  `json:"evaluate,omitempty"`
}

func (r *SubmissionRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return &ErrorResponse{Code: "missing_code", Message: "code is required"}
	}
	return nil
}

// WantsEvaluation defaults to true.
func (r *SubmissionRequest) WantsEvaluation() bool {
	return r.Evaluate == nil || *r.Evaluate
}

type CreateHistoryRequest struct {
	Question     string `json:"question"`
	QuestionType string `json:"questionType,omitempty"`
	Difficulty   string `json:"difficulty,omitempty"`
	Timestamp    int64  `json:"timestamp,omitempty"`
}

func (r *CreateHistoryRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return &ErrorResponse{Code: "missing_question", Message: "question is required"}
	}
	return nil
}

type TokenRequest struct {
	Role       Role `json:"role"`
	TTLSeconds int  `json:"ttlSeconds,omitempty"`
}

func (r *TokenRequest) Validate() error {
	if !r.Role.Valid() {
		return &ErrorResponse{Code: "invalid_role", Message: "role must be interviewer or candidate"}
	}
	if r.TTLSeconds < 0 {
		return &ErrorResponse{Code: "invalid_ttl", Message: "ttlSeconds must not be negative"}
	}
	return nil
}

type ProfileRequest struct {
	Handle string `json:"handle"`
}

func (r *ProfileRequest) Validate() error {
	if strings.TrimSpace(r.Handle) == "" {
		return &ErrorResponse{Code: "missing_handle", Message: "handle is required"}
	}
	return nil
}
