package store

import (
	"context"
	"sort"
	"sync"

	"hiroai/roomsync/internal/models"
)

type seqHistory struct {
	seq int64
	models.HistoryEntry
}

type seqSent struct {
	seq int64
	models.SentQuestion
}

type seqTimeline struct {
	seq int64
	models.QuestionTimelineEntry
}

// MemoryBackend keeps everything in process memory. It is the default
// for local runs and tests.
type MemoryBackend struct {
	mu       sync.Mutex
	seq      int64
	records  map[string]Record
	history  map[string][]seqHistory
	sent     map[string][]seqSent
	timeline map[string][]seqTimeline
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records:  make(map[string]Record),
		history:  make(map[string][]seqHistory),
		sent:     make(map[string][]seqSent),
		timeline: make(map[string][]seqTimeline),
	}
}

func (m *MemoryBackend) nextSeq() int64 {
	m.seq++
	return m.seq
}

func (m *MemoryBackend) Load(_ context.Context, roomID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[roomID]
	if !ok {
		return Record{}, ErrNotFound
	}
	stamps := make(FieldStamps, len(rec.Stamps))
	for k, v := range rec.Stamps {
		stamps[k] = v
	}
	rec.Stamps = stamps
	if rec.Doc.JobContext != nil {
		jc := *rec.Doc.JobContext
		rec.Doc.JobContext = &jc
	}
	return rec, nil
}

func (m *MemoryBackend) Save(_ context.Context, roomID string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[roomID]
	if (!ok && rec.Version != 0) || (ok && cur.Version != rec.Version) {
		return ErrConflict
	}
	rec.Version++
	m.records[roomID] = rec
	return nil
}

func (m *MemoryBackend) DeleteRoom(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, roomID)
	delete(m.history, roomID)
	delete(m.sent, roomID)
	delete(m.timeline, roomID)
	return nil
}

func (m *MemoryBackend) CompletedBefore(_ context.Context, before int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, rec := range m.records {
		if rec.Doc.Status == models.StatusCompleted && rec.Doc.Timestamp < before {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryBackend) InsertHistory(_ context.Context, roomID string, e models.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[roomID] = append(m.history[roomID], seqHistory{seq: m.nextSeq(), HistoryEntry: e})
	return nil
}

func (m *MemoryBackend) ListHistory(_ context.Context, roomID string) ([]models.HistoryEntry, error) {
	m.mu.Lock()
	rows := append([]seqHistory(nil), m.history[roomID]...)
	m.mu.Unlock()
	sort.SliceStable(rows, func(i, j int) bool {
		return newer(rows[i].Timestamp, rows[i].seq, rows[j].Timestamp, rows[j].seq)
	})
	out := make([]models.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = r.HistoryEntry
	}
	return out, nil
}

func (m *MemoryBackend) UpdateHistory(_ context.Context, roomID, entryID string, a models.HistoryAttachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.history[roomID]
	for i := range rows {
		if rows[i].ID != entryID {
			continue
		}
		if a.CandidateCode != nil {
			code := *a.CandidateCode
			rows[i].CandidateCode = &code
		}
		if a.AIFeedback != nil {
			fb := *a.AIFeedback
			rows[i].AIFeedback = &fb
		}
		return nil
	}
	return ErrNotFound
}

func (m *MemoryBackend) InsertSent(_ context.Context, roomID string, q models.SentQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[roomID] = append(m.sent[roomID], seqSent{seq: m.nextSeq(), SentQuestion: q})
	return nil
}

func (m *MemoryBackend) ListSent(_ context.Context, roomID string) ([]models.SentQuestion, error) {
	m.mu.Lock()
	rows := append([]seqSent(nil), m.sent[roomID]...)
	m.mu.Unlock()
	sort.SliceStable(rows, func(i, j int) bool {
		return newer(rows[i].Timestamp, rows[i].seq, rows[j].Timestamp, rows[j].seq)
	})
	out := make([]models.SentQuestion, len(rows))
	for i, r := range rows {
		out[i] = r.SentQuestion
	}
	return out, nil
}

func (m *MemoryBackend) InsertTimeline(_ context.Context, roomID string, e models.QuestionTimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeline[roomID] = append(m.timeline[roomID], seqTimeline{seq: m.nextSeq(), QuestionTimelineEntry: e})
	return nil
}

func (m *MemoryBackend) ListTimeline(_ context.Context, roomID string) ([]models.QuestionTimelineEntry, error) {
	m.mu.Lock()
	rows := append([]seqTimeline(nil), m.timeline[roomID]...)
	m.mu.Unlock()
	sort.SliceStable(rows, func(i, j int) bool {
		return newer(rows[i].Timestamp, rows[i].seq, rows[j].Timestamp, rows[j].seq)
	})
	out := make([]models.QuestionTimelineEntry, len(rows))
	for i, r := range rows {
		out[i] = r.QuestionTimelineEntry
	}
	return out, nil
}

func (m *MemoryBackend) TransitionTimeline(_ context.Context, roomID, entryID string, t models.TimelineTransition) (models.QuestionTimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.timeline[roomID]
	for i := range rows {
		if rows[i].ID != entryID {
			continue
		}
		if rows[i].Status != t.From {
			return models.QuestionTimelineEntry{}, ErrConflict
		}
		t.Apply(&rows[i].QuestionTimelineEntry)
		return rows[i].QuestionTimelineEntry, nil
	}
	return models.QuestionTimelineEntry{}, ErrNotFound
}

func (m *MemoryBackend) Ping(context.Context) error { return nil }
func (m *MemoryBackend) Close(context.Context) error { return nil }

// newer orders by timestamp, then insertion sequence, both descending.
func newer(tsA, seqA, tsB, seqB int64) bool {
	if tsA != tsB {
		return tsA > tsB
	}
	return seqA > seqB
}
