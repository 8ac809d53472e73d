package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"hiroai/roomsync/internal/models"
)

func newSQLiteBackend(t *testing.T) Backend {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%d?mode=memory&cache=shared", time.Now().UnixNano())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	b, err := NewGormBackend(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

func newMemoryBackend(t *testing.T) Backend { return NewMemoryBackend() }

var backends = map[string]func(t *testing.T) Backend{
	"memory": newMemoryBackend,
	"sqlite": newSQLiteBackend,
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store, n *LocalNotifier)) {
	for name, mk := range backends {
		t.Run(name, func(t *testing.T) {
			n := NewLocalNotifier()
			fn(t, New(mk(t), n, zap.NewNop()), n)
		})
	}
}

func TestGetMissingRoomReturnsEmpty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		doc, err := s.Get(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Equal(t, "nobody", doc.RoomID)
		assert.Zero(t, doc.Timestamp)
	})
}

// Room abc12345 holds "// old" at 1000; the candidate writes "// new" at
// 2000 and the interviewer's subscription shows "// new".
func TestPatchScenarioCandidateOverwrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		ctx := context.Background()
		_, err := s.Patch(ctx, "abc12345", models.DocPatch{
			Code: models.Ptr("// old"), LastUpdatedBy: models.Ptr(models.RoleInterviewer), Timestamp: 1000,
		})
		require.NoError(t, err)

		sub, err := s.Subscribe(ctx, "abc12345")
		require.NoError(t, err)
		defer sub.Close()
		first := <-sub.C()
		assert.Equal(t, "// old", first.Code)

		_, err = s.Patch(ctx, "abc12345", models.DocPatch{
			Code: models.Ptr("// new"), LastUpdatedBy: models.Ptr(models.RoleCandidate), Timestamp: 2000,
		})
		require.NoError(t, err)

		select {
		case doc := <-sub.C():
			assert.Equal(t, "// new", doc.Code)
			assert.Equal(t, models.RoleCandidate, doc.LastUpdatedBy)
			assert.Equal(t, int64(2000), doc.Timestamp)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
	})
}

func TestPatchStampsServerTime(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		s.now = func() time.Time { return time.UnixMilli(5000) }
		doc, err := s.Patch(context.Background(), "r", models.DocPatch{Summary: models.Ptr("went well")})
		require.NoError(t, err)
		assert.Equal(t, int64(5000), doc.Timestamp)
	})
}

func TestPatchStaleWriteKeepsNewer(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		ctx := context.Background()
		_, err := s.Patch(ctx, "r", models.DocPatch{Code: models.Ptr("newer"), Timestamp: 2000})
		require.NoError(t, err)
		doc, err := s.Patch(ctx, "r", models.DocPatch{Code: models.Ptr("older"), Timestamp: 1000})
		require.NoError(t, err)
		assert.Equal(t, "newer", doc.Code)
	})
}

func TestSubscribeEmitsEmptyThenUpdates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, n *LocalNotifier) {
		ctx := context.Background()
		sub, err := s.Subscribe(ctx, "fresh")
		require.NoError(t, err)

		first := <-sub.C()
		assert.Equal(t, models.RoomDocument{RoomID: "fresh"}, first)

		_, err = s.Patch(ctx, "fresh", models.DocPatch{Question: models.Ptr("Q1"), Timestamp: 10})
		require.NoError(t, err)
		got := <-sub.C()
		assert.Equal(t, "Q1", got.Question)

		sub.Close()
		_, open := <-sub.C()
		assert.False(t, open, "channel closed after Close")
		assert.Equal(t, 0, n.Listeners(), "listener released synchronously")
		assert.NoError(t, sub.Err())
	})
}

func TestSubscribeSeesRoomDeletion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		ctx := context.Background()
		_, err := s.Patch(ctx, "done", models.DocPatch{Question: models.Ptr("Q1"), Timestamp: 10})
		require.NoError(t, err)

		sub, err := s.Subscribe(ctx, "done")
		require.NoError(t, err)
		defer sub.Close()
		assert.Equal(t, "Q1", (<-sub.C()).Question)

		require.NoError(t, s.DeleteRoom(ctx, "done"))
		select {
		case doc := <-sub.C():
			assert.Equal(t, models.RoomDocument{RoomID: "done"}, doc)
		case <-time.After(2 * time.Second):
			t.Fatal("deletion not delivered")
		}
	})
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	s := New(NewMemoryBackend(), nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := s.Subscribe(ctx, "r")
	require.NoError(t, err)
	<-sub.C()
	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not stop on cancel")
	}
}

type failingBackend struct{ *MemoryBackend }

func (failingBackend) Load(context.Context, string) (Record, error) {
	return Record{}, errors.New("network down")
}

func TestSubscribeFailsWhenInitialLoadFails(t *testing.T) {
	n := NewLocalNotifier()
	s := New(failingBackend{NewMemoryBackend()}, n, zap.NewNop())
	_, err := s.Subscribe(context.Background(), "r")
	require.Error(t, err)
	assert.Equal(t, 0, n.Listeners())

	_, err = s.Patch(context.Background(), "r", models.DocPatch{Code: models.Ptr("x"), Timestamp: 1})
	require.Error(t, err)
}

func TestHistoryNewestFirstAndAttach(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		ctx := context.Background()
		id1, err := s.AppendHistory(ctx, "r", models.HistoryEntry{Question: "Q1", Timestamp: 100})
		require.NoError(t, err)
		id2, err := s.AppendHistory(ctx, "r", models.HistoryEntry{Question: "Q2", Timestamp: 200})
		require.NoError(t, err)
		// same timestamp as Q2, inserted later
		id3, err := s.AppendHistory(ctx, "r", models.HistoryEntry{Question: "Q3", Timestamp: 200})
		require.NoError(t, err)

		list, err := s.ListHistory(ctx, "r")
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{id3, id2, id1}, []string{list[0].ID, list[1].ID, list[2].ID})

		fb := models.Feedback{Summary: "ok", Scores: models.Scores{Correctness: 8, Efficiency: 8, Quality: 8, Readability: 8, Overall: 8}}
		require.NoError(t, s.AttachToHistory(ctx, "r", id1, models.HistoryAttachment{CandidateCode: models.Ptr("v1")}))
		require.NoError(t, s.AttachToHistory(ctx, "r", id1, models.HistoryAttachment{CandidateCode: models.Ptr("v2"), AIFeedback: &fb}))

		list, err = s.ListHistory(ctx, "r")
		require.NoError(t, err)
		got := list[2]
		require.NotNil(t, got.CandidateCode)
		assert.Equal(t, "v2", *got.CandidateCode)
		require.NotNil(t, got.AIFeedback)
		assert.Equal(t, "ok", got.AIFeedback.Summary)
		assert.Equal(t, "Q1", got.Question, "question text is immutable")

		err = s.AttachToHistory(ctx, "r", "missing", models.HistoryAttachment{CandidateCode: models.Ptr("x")})
		assert.True(t, errors.Is(err, ErrNotFound))

		other, err := s.ListHistory(ctx, "other-room")
		require.NoError(t, err)
		assert.Empty(t, other)
	})
}

func TestSentQuestions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		ctx := context.Background()
		_, err := s.AppendSentQuestion(ctx, "r", models.SentQuestion{Question: "Q1", SentBy: models.RoleInterviewer, IsAsked: true})
		require.NoError(t, err)
		list, err := s.ListSentQuestions(ctx, "r")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].IsAsked)
		assert.NotEmpty(t, list[0].ID)
		assert.NotZero(t, list[0].Timestamp)
	})
}

func TestTimelineTransitions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		ctx := context.Background()
		id, err := s.AppendTimeline(ctx, "r", models.QuestionTimelineEntry{Question: "Q1", Timestamp: 10})
		require.NoError(t, err)

		_, err = s.TransitionTimeline(ctx, "r", id, models.TimelineTransition{From: models.QuestionNotSent, To: models.QuestionAnswered})
		assert.True(t, errors.Is(err, ErrInvalidTransition), "skipping a state is rejected")

		e, err := s.TransitionTimeline(ctx, "r", id, models.TimelineTransition{From: models.QuestionNotSent, To: models.QuestionSent, At: 20})
		require.NoError(t, err)
		assert.Equal(t, models.QuestionSent, e.Status)
		require.NotNil(t, e.SentTimestamp)
		assert.Equal(t, int64(20), *e.SentTimestamp)

		// a second caller that still believes the entry is not_sent loses
		_, err = s.TransitionTimeline(ctx, "r", id, models.TimelineTransition{From: models.QuestionNotSent, To: models.QuestionSent, At: 21})
		assert.True(t, errors.Is(err, ErrConflict))

		code := "print(1)"
		_, err = s.TransitionTimeline(ctx, "r", id, models.TimelineTransition{From: models.QuestionSent, To: models.QuestionAnswered, At: 30, Code: &code})
		require.NoError(t, err)

		list, err := s.ListTimeline(ctx, "r")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, models.QuestionAnswered, list[0].Status)
		require.NotNil(t, list[0].Code)
		assert.Equal(t, code, *list[0].Code)
		assert.Equal(t, int64(20), *list[0].SentTimestamp)

		_, err = s.TransitionTimeline(ctx, "r", "missing", models.TimelineTransition{From: models.QuestionSent, To: models.QuestionAnswered})
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestSubscribeTimelineSeesTransitions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		ctx := context.Background()
		sub, err := s.SubscribeTimeline(ctx, "r")
		require.NoError(t, err)
		defer sub.Close()
		assert.Empty(t, <-sub.C())

		id, err := s.AppendTimeline(ctx, "r", models.QuestionTimelineEntry{Question: "Q1"})
		require.NoError(t, err)
		list := <-sub.C()
		require.Len(t, list, 1)
		assert.Equal(t, models.QuestionNotSent, list[0].Status)

		_, err = s.TransitionTimeline(ctx, "r", id, models.TimelineTransition{From: models.QuestionNotSent, To: models.QuestionSent})
		require.NoError(t, err)
		list = <-sub.C()
		assert.Equal(t, models.QuestionSent, list[0].Status)
	})
}

func TestDeleteRoomAndCompletedRooms(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store, _ *LocalNotifier) {
		ctx := context.Background()
		_, err := s.Patch(ctx, "done", models.DocPatch{Status: models.Ptr(models.StatusCompleted), Timestamp: 1000})
		require.NoError(t, err)
		_, err = s.Patch(ctx, "live", models.DocPatch{Status: models.Ptr(models.StatusInProgress), Timestamp: 1000})
		require.NoError(t, err)
		_, err = s.AppendHistory(ctx, "done", models.HistoryEntry{Question: "Q"})
		require.NoError(t, err)

		ids, err := s.CompletedRooms(ctx, time.UnixMilli(2000))
		require.NoError(t, err)
		assert.Equal(t, []string{"done"}, ids)

		require.NoError(t, s.DeleteRoom(ctx, "done"))
		doc, err := s.Get(ctx, "done")
		require.NoError(t, err)
		assert.Zero(t, doc.Timestamp)
		hist, err := s.ListHistory(ctx, "done")
		require.NoError(t, err)
		assert.Empty(t, hist)
		assert.NoError(t, s.Ping(ctx))
	})
}

type conflictOnceBackend struct {
	*MemoryBackend
	conflicts int
}

func (c *conflictOnceBackend) Save(ctx context.Context, roomID string, rec Record) error {
	if c.conflicts > 0 {
		c.conflicts--
		return ErrConflict
	}
	return c.MemoryBackend.Save(ctx, roomID, rec)
}

func TestPatchRetriesOnConflict(t *testing.T) {
	b := &conflictOnceBackend{MemoryBackend: NewMemoryBackend(), conflicts: 2}
	s := New(b, nil, zap.NewNop())
	doc, err := s.Patch(context.Background(), "r", models.DocPatch{Code: models.Ptr("x"), Timestamp: 1})
	require.NoError(t, err)
	assert.Equal(t, "x", doc.Code)

	b.conflicts = maxPatchRetries
	_, err = s.Patch(context.Background(), "r", models.DocPatch{Code: models.Ptr("y"), Timestamp: 2})
	assert.True(t, errors.Is(err, ErrConflict))
}
