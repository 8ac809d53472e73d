package models

// uniform error responses
type ErrorResponse struct {
	Code      string                  `json:"code"`
	Message   string                  `json:"message"`
	Retryable bool                    `json:"retryable,omitempty"`
	Details   []ValidationErrorDetail `json:"details,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return e.Code + ": " + e.Message
}

// single field validation error
type ValidationErrorDetail struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// FeedFrame is pushed to change-feed WebSocket subscribers.
type FeedFrame struct {
	Type string `json:"type"` // "snapshot" | "error"
	Data any    `json:"data,omitempty"`
}

type IDResponse struct {
	ID string `json:"id"`
}

type MembersResponse struct {
	RoomID  string `json:"roomId"`
	Members int    `json:"members"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

type ProfileResponse struct {
	Handle  string `json:"handle"`
	Content string `json:"content"`
}

// SubmissionResponse is returned by the evaluate endpoint.
type SubmissionResponse struct {
	EntryID  string    `json:"entryId"`
	Feedback *Feedback `json:"feedback,omitempty"`
}
