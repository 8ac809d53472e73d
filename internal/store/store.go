package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/metrics"
	"hiroai/roomsync/internal/models"
)

const maxPatchRetries = 8

// Store is the shared document store: a Backend for persistence and a
// Notifier for the change feed.
type Store struct {
	backend  Backend
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func New(backend Backend, notifier Notifier, log *zap.Logger) *Store {
	if notifier == nil {
		notifier = NewLocalNotifier()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{backend: backend, notifier: notifier, log: log, now: time.Now}
}

func (s *Store) nowMillis() int64 { return s.now().UnixMilli() }

// Get returns the room document, or an empty document when the room has
// never been written.
func (s *Store) Get(ctx context.Context, roomID string) (models.RoomDocument, error) {
	rec, err := s.backend.Load(ctx, roomID)
	if errors.Is(err, ErrNotFound) {
		return models.RoomDocument{RoomID: roomID}, nil
	}
	if err != nil {
		return models.RoomDocument{}, err
	}
	return rec.Doc, nil
}

// Patch merge-patches the room document, creating it if needed, and
// returns the resulting document. A patch without a timestamp is stamped
// with server time.
func (s *Store) Patch(ctx context.Context, roomID string, p models.DocPatch) (models.RoomDocument, error) {
	if p.Timestamp == 0 {
		p.Timestamp = s.nowMillis()
	}
	for attempt := 0; attempt < maxPatchRetries; attempt++ {
		rec, err := s.backend.Load(ctx, roomID)
		if errors.Is(err, ErrNotFound) {
			rec = Record{}
		} else if err != nil {
			metrics.PatchApplied(false)
			return models.RoomDocument{}, fmt.Errorf("load room %s: %w", roomID, err)
		}

		next, changed := ApplyPatch(rec, roomID, p)
		if !changed {
			// every field already carries a newer write
			return rec.Doc, nil
		}
		err = s.backend.Save(ctx, roomID, next)
		if errors.Is(err, ErrConflict) {
			continue
		}
		if err != nil {
			metrics.PatchApplied(false)
			return models.RoomDocument{}, fmt.Errorf("save room %s: %w", roomID, err)
		}
		metrics.PatchApplied(true)
		s.notifier.Notify(ctx, roomID, TopicDocument)
		return next.Doc, nil
	}
	metrics.PatchApplied(false)
	return models.RoomDocument{}, fmt.Errorf("patch room %s: %w", roomID, ErrConflict)
}

// AppendHistory stores e with a new id and returns the id.
func (s *Store) AppendHistory(ctx context.Context, roomID string, e models.HistoryEntry) (string, error) {
	e.ID = uuid.NewString()
	if e.Timestamp == 0 {
		e.Timestamp = s.nowMillis()
	}
	if err := s.backend.InsertHistory(ctx, roomID, e); err != nil {
		return "", fmt.Errorf("append history: %w", err)
	}
	s.notifier.Notify(ctx, roomID, TopicHistory)
	return e.ID, nil
}

func (s *Store) ListHistory(ctx context.Context, roomID string) ([]models.HistoryEntry, error) {
	return s.backend.ListHistory(ctx, roomID)
}

// AttachToHistory sets candidateCode and/or aiFeedback on an existing
// entry, overwriting earlier attachments.
func (s *Store) AttachToHistory(ctx context.Context, roomID, entryID string, a models.HistoryAttachment) error {
	if err := s.backend.UpdateHistory(ctx, roomID, entryID, a); err != nil {
		return fmt.Errorf("attach to history %s: %w", entryID, err)
	}
	s.notifier.Notify(ctx, roomID, TopicHistory)
	return nil
}

func (s *Store) AppendSentQuestion(ctx context.Context, roomID string, q models.SentQuestion) (string, error) {
	q.ID = uuid.NewString()
	if q.Timestamp == 0 {
		q.Timestamp = s.nowMillis()
	}
	if err := s.backend.InsertSent(ctx, roomID, q); err != nil {
		return "", fmt.Errorf("append sent question: %w", err)
	}
	s.notifier.Notify(ctx, roomID, TopicSent)
	return q.ID, nil
}

func (s *Store) ListSentQuestions(ctx context.Context, roomID string) ([]models.SentQuestion, error) {
	return s.backend.ListSent(ctx, roomID)
}

func (s *Store) AppendTimeline(ctx context.Context, roomID string, e models.QuestionTimelineEntry) (string, error) {
	e.ID = uuid.NewString()
	if e.Timestamp == 0 {
		e.Timestamp = s.nowMillis()
	}
	if e.Status == "" {
		e.Status = models.QuestionNotSent
	}
	if err := s.backend.InsertTimeline(ctx, roomID, e); err != nil {
		return "", fmt.Errorf("append timeline: %w", err)
	}
	s.notifier.Notify(ctx, roomID, TopicTimeline)
	return e.ID, nil
}

func (s *Store) ListTimeline(ctx context.Context, roomID string) ([]models.QuestionTimelineEntry, error) {
	return s.backend.ListTimeline(ctx, roomID)
}

// TransitionTimeline moves one entry a single step forward. Anything
// other than from -> from.Next() is ErrInvalidTransition; losing a race
// is ErrConflict.
func (s *Store) TransitionTimeline(ctx context.Context, roomID, entryID string, t models.TimelineTransition) (models.QuestionTimelineEntry, error) {
	if !t.Valid() {
		return models.QuestionTimelineEntry{}, fmt.Errorf("%s -> %s: %w", t.From, t.To, ErrInvalidTransition)
	}
	if t.At == 0 {
		t.At = s.nowMillis()
	}
	e, err := s.backend.TransitionTimeline(ctx, roomID, entryID, t)
	if err != nil {
		return models.QuestionTimelineEntry{}, fmt.Errorf("transition %s: %w", entryID, err)
	}
	metrics.Transitioned(string(t.To))
	s.notifier.Notify(ctx, roomID, TopicTimeline)
	return e, nil
}

// DeleteRoom archives a room: the document and all sub-collections go.
func (s *Store) DeleteRoom(ctx context.Context, roomID string) error {
	if err := s.backend.DeleteRoom(ctx, roomID); err != nil {
		return fmt.Errorf("delete room %s: %w", roomID, err)
	}
	for _, topic := range []string{TopicDocument, TopicHistory, TopicSent, TopicTimeline} {
		s.notifier.Notify(ctx, roomID, topic)
	}
	return nil
}

func (s *Store) CompletedRooms(ctx context.Context, before time.Time) ([]string, error) {
	return s.backend.CompletedBefore(ctx, before.UnixMilli())
}

func (s *Store) Ping(ctx context.Context) error { return s.backend.Ping(ctx) }

// Subscribe streams the room document: the current value immediately
// (empty if the room is new), then a snapshot after every change.
// Snapshot timestamps never decrease, except for the empty document
// emitted once the room is deleted.
func (s *Store) Subscribe(ctx context.Context, roomID string) (*Subscription[models.RoomDocument], error) {
	return watch(ctx, s, roomID, TopicDocument,
		func(ctx context.Context) (models.RoomDocument, error) { return s.Get(ctx, roomID) },
		func(prev, next models.RoomDocument) bool { return next.Timestamp == 0 || next.Timestamp >= prev.Timestamp })
}

func (s *Store) SubscribeHistory(ctx context.Context, roomID string) (*Subscription[[]models.HistoryEntry], error) {
	return watch(ctx, s, roomID, TopicHistory,
		func(ctx context.Context) ([]models.HistoryEntry, error) { return s.ListHistory(ctx, roomID) }, nil)
}

func (s *Store) SubscribeSentQuestions(ctx context.Context, roomID string) (*Subscription[[]models.SentQuestion], error) {
	return watch(ctx, s, roomID, TopicSent,
		func(ctx context.Context) ([]models.SentQuestion, error) { return s.ListSentQuestions(ctx, roomID) }, nil)
}

func (s *Store) SubscribeTimeline(ctx context.Context, roomID string) (*Subscription[[]models.QuestionTimelineEntry], error) {
	return watch(ctx, s, roomID, TopicTimeline,
		func(ctx context.Context) ([]models.QuestionTimelineEntry, error) { return s.ListTimeline(ctx, roomID) }, nil)
}

// watch listens before the initial read so no write between the two is
// missed.
func watch[T any](ctx context.Context, s *Store, roomID, topic string,
	load func(context.Context) (T, error), accept func(prev, next T) bool) (*Subscription[T], error) {
	wake, release := s.notifier.Listen(roomID, topic)
	initial, err := load(ctx)
	if err != nil {
		release()
		return nil, fmt.Errorf("subscribe %s/%s: %w", roomID, topic, err)
	}
	metrics.FeedOpened(topic)

	return NewSubscription(ctx, 1, func(ctx context.Context, emit func(T) bool) error {
		defer metrics.FeedClosed(topic)
		defer release()

		if !emit(initial) {
			return nil
		}
		prev := initial
		for {
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-wake:
				if !ok {
					return ErrFeedClosed
				}
				next, err := load(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					s.log.Warn("change feed reload failed",
						zap.String("room_id", roomID), zap.String("topic", topic), zap.Error(err))
					continue
				}
				if accept != nil && !accept(prev, next) {
					continue
				}
				if !emit(next) {
					return nil
				}
				prev = next
			}
		}
	}), nil
}
