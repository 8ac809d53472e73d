package store

import "hiroai/roomsync/internal/models"

// Field names used as stamp keys.
const (
	fieldQuestion      = "question"
	fieldQuestionType  = "questionType"
	fieldDifficulty    = "difficulty"
	fieldCode          = "code"
	fieldLastUpdatedBy = "lastUpdatedBy"
	fieldSummary       = "summary"
	fieldJobContext    = "jobContext"
	fieldStatus        = "status"
)

// ApplyPatch merges p into rec. A field is written only when p.Timestamp
// is not older than the stamp of the last write to that field, so a
// delayed patch cannot clobber a newer value. The document timestamp
// becomes the max of both. changed reports whether any field was written.
func ApplyPatch(rec Record, roomID string, p models.DocPatch) (next Record, changed bool) {
	next = rec
	next.Doc.RoomID = roomID
	next.Stamps = make(FieldStamps, len(rec.Stamps)+2)
	for k, v := range rec.Stamps {
		next.Stamps[k] = v
	}

	ts := p.Timestamp
	take := func(field string) bool {
		if ts < next.Stamps[field] {
			return false
		}
		next.Stamps[field] = ts
		changed = true
		return true
	}

	if p.Question != nil && take(fieldQuestion) {
		next.Doc.Question = *p.Question
	}
	if p.QuestionType != nil && take(fieldQuestionType) {
		next.Doc.QuestionType = *p.QuestionType
	}
	if p.Difficulty != nil && take(fieldDifficulty) {
		next.Doc.Difficulty = *p.Difficulty
	}
	if p.Code != nil && take(fieldCode) {
		next.Doc.Code = *p.Code
	}
	if p.LastUpdatedBy != nil && take(fieldLastUpdatedBy) {
		next.Doc.LastUpdatedBy = *p.LastUpdatedBy
	}
	if p.Summary != nil && take(fieldSummary) {
		next.Doc.Summary = *p.Summary
	}
	if p.JobContext != nil && take(fieldJobContext) {
		jc := *p.JobContext
		next.Doc.JobContext = &jc
	}
	if p.Status != nil && take(fieldStatus) {
		next.Doc.Status = *p.Status
	}

	if changed && ts > next.Doc.Timestamp {
		next.Doc.Timestamp = ts
	}
	return next, changed
}
