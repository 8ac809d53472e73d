package store

import (
	"context"
	"errors"

	"hiroai/roomsync/internal/models"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrConflict          = errors.New("store: concurrent update")
	ErrInvalidTransition = errors.New("store: invalid timeline transition")
	ErrFeedClosed        = errors.New("store: change feed closed")
)

// FieldStamps records, per document field, the timestamp of the patch
// that last wrote it.
type FieldStamps map[string]int64

// Record is a room document as persisted: the document itself, its field
// stamps and an optimistic concurrency version (0 means not yet stored).
type Record struct {
	Doc     models.RoomDocument
	Stamps  FieldStamps
	Version int64
}

// Backend persists room documents and their sub-collections. List
// methods return entries newest first (timestamp, then insertion order).
type Backend interface {
	Load(ctx context.Context, roomID string) (Record, error)
	// Save stores rec as version rec.Version+1 if the stored version is
	// still rec.Version, otherwise it returns ErrConflict.
	Save(ctx context.Context, roomID string, rec Record) error
	DeleteRoom(ctx context.Context, roomID string) error
	// CompletedBefore lists rooms with status completed whose document
	// timestamp is older than before (epoch millis).
	CompletedBefore(ctx context.Context, before int64) ([]string, error)

	InsertHistory(ctx context.Context, roomID string, e models.HistoryEntry) error
	ListHistory(ctx context.Context, roomID string) ([]models.HistoryEntry, error)
	UpdateHistory(ctx context.Context, roomID, entryID string, a models.HistoryAttachment) error

	InsertSent(ctx context.Context, roomID string, q models.SentQuestion) error
	ListSent(ctx context.Context, roomID string) ([]models.SentQuestion, error)

	InsertTimeline(ctx context.Context, roomID string, e models.QuestionTimelineEntry) error
	ListTimeline(ctx context.Context, roomID string) ([]models.QuestionTimelineEntry, error)
	// TransitionTimeline applies t only if the entry is currently in
	// t.From; otherwise ErrConflict.
	TransitionTimeline(ctx context.Context, roomID, entryID string, t models.TimelineTransition) (models.QuestionTimelineEntry, error)

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
