package models

// Role identifies which participant wrote a value.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleCandidate   Role = "candidate"
)

func (r Role) Valid() bool {
	return r == RoleInterviewer || r == RoleCandidate
}

type RoomStatus string

const (
	StatusInProgress RoomStatus = "in_progress"
	StatusCompleted  RoomStatus = "completed"
)

// JobContext describes the position the interview is for.
type JobContext struct {
	JobTitle         string `json:"jobTitle,omitempty" bson:"jobTitle,omitempty"`
	Company          string `json:"company,omitempty" bson:"company,omitempty"`
	JobDescription   string `json:"jobDescription,omitempty" bson:"jobDescription,omitempty"`
	ResumeText       string `json:"resumeText,omitempty" bson:"resumeText,omitempty"`
	CandidateProfile string `json:"candidateProfile,omitempty" bson:"candidateProfile,omitempty"`
}

// RoomDocument is the authoritative shared state of a room.
// Timestamp is epoch milliseconds and never decreases.
type RoomDocument struct {
	RoomID        string      `json:"roomId" bson:"roomId"`
	Question      string      `json:"question,omitempty" bson:"question,omitempty"`
	QuestionType  string      `json:"questionType,omitempty" bson:"questionType,omitempty"`
	Difficulty    string      `json:"difficulty,omitempty" bson:"difficulty,omitempty"`
	Code          string      `json:"code,omitempty" bson:"code,omitempty"`
	LastUpdatedBy Role        `json:"lastUpdatedBy,omitempty" bson:"lastUpdatedBy,omitempty"`
	Summary       string      `json:"summary,omitempty" bson:"summary,omitempty"`
	JobContext    *JobContext `json:"jobContext,omitempty" bson:"jobContext,omitempty"`
	Status        RoomStatus  `json:"status,omitempty" bson:"status,omitempty"`
	Timestamp     int64       `json:"timestamp" bson:"timestamp"`
}

// DocPatch is a merge-patch: nil fields leave the document untouched.
type DocPatch struct {
	Question      *string     `json:"question,omitempty"`
	QuestionType  *string     `json:"questionType,omitempty"`
	Difficulty    *string     `json:"difficulty,omitempty"`
	Code          *string     `json:"code,omitempty"`
	LastUpdatedBy *Role       `json:"lastUpdatedBy,omitempty"`
	Summary       *string     `json:"summary,omitempty"`
	JobContext    *JobContext `json:"jobContext,omitempty"`
	Status        *RoomStatus `json:"status,omitempty"`
	Timestamp     int64       `json:"timestamp,omitempty"`
}

func (p *DocPatch) Validate() error {
	if p.LastUpdatedBy != nil && !p.LastUpdatedBy.Valid() {
		return &ErrorResponse{Code: "invalid_role", Message: "lastUpdatedBy must be interviewer or candidate"}
	}
	if p.Status != nil && *p.Status != StatusInProgress && *p.Status != StatusCompleted {
		return &ErrorResponse{Code: "invalid_status", Message: "status must be in_progress or completed"}
	}
	if p.Timestamp < 0 {
		return &ErrorResponse{Code: "invalid_timestamp", Message: "timestamp must not be negative"}
	}
	if p.Empty() {
		return &ErrorResponse{Code: "empty_patch", Message: "patch does not set any field"}
	}
	return nil
}

// Empty reports whether the patch sets no document field.
func (p *DocPatch) Empty() bool {
	return p.Question == nil && p.QuestionType == nil && p.Difficulty == nil &&
		p.Code == nil && p.LastUpdatedBy == nil && p.Summary == nil &&
		p.JobContext == nil && p.Status == nil
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T { return &v }
