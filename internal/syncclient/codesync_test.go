package syncclient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/store"
)

type recordingPatcher struct {
	mu      sync.Mutex
	patches []models.DocPatch
	err     error
}

func (p *recordingPatcher) Patch(_ context.Context, roomID string, patch models.DocPatch) (models.RoomDocument, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.patches = append(p.patches, patch)
	if p.err != nil {
		return models.RoomDocument{}, p.err
	}
	return models.RoomDocument{RoomID: roomID, Code: *patch.Code, Timestamp: patch.Timestamp}, nil
}

func (p *recordingPatcher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.patches)
}

func (p *recordingPatcher) last() models.DocPatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.patches[len(p.patches)-1]
}

func newMemoryStore() *store.Store {
	return store.New(store.NewMemoryBackend(), nil, zap.NewNop())
}

func TestDebounceCollapsesEdits(t *testing.T) {
	p := &recordingPatcher{}
	cs := NewCodeSync(p, "r1", models.RoleCandidate, WithDebounce(20*time.Millisecond))

	cs.Edit("d")
	cs.Edit("de")
	cs.Edit("def")
	assert.True(t, cs.Pending())

	require.Eventually(t, func() bool { return p.count() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, p.count())

	last := p.last()
	assert.Equal(t, "def", *last.Code)
	assert.Equal(t, models.RoleCandidate, *last.LastUpdatedBy)
	assert.False(t, cs.Pending())
}

func TestWriteTimestampsStrictlyIncrease(t *testing.T) {
	p := &recordingPatcher{}
	fixed := time.UnixMilli(1_000)
	cs := NewCodeSync(p, "r1", models.RoleInterviewer, WithDebounce(time.Hour), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	var prev int64
	for _, code := range []string{"a", "b", "c"} {
		cs.Edit(code)
		require.NoError(t, cs.Flush(ctx))
		ts := p.last().Timestamp
		assert.Greater(t, ts, prev)
		prev = ts
	}

	// a remote value far ahead of the local clock still loses to the next edit
	cs.ApplySnapshot(models.RoomDocument{Code: "remote", LastUpdatedBy: models.RoleCandidate, Timestamp: 50_000})
	cs.Edit("mine")
	require.NoError(t, cs.Flush(ctx))
	assert.Equal(t, int64(50_001), p.last().Timestamp)
}

func TestFlushWithoutPendingIsNoop(t *testing.T) {
	p := &recordingPatcher{}
	cs := NewCodeSync(p, "r1", models.RoleCandidate)
	require.NoError(t, cs.Flush(context.Background()))
	assert.Zero(t, p.count())
}

func TestOwnEchoIgnoredAndPeerConverges(t *testing.T) {
	st := newMemoryStore()
	ctx := context.Background()

	var remoteSeen []string
	a := NewCodeSync(st, "abc12345", models.RoleCandidate, WithDebounce(time.Hour))
	b := NewCodeSync(st, "abc12345", models.RoleInterviewer, WithDebounce(time.Hour),
		OnRemoteCode(func(code string) { remoteSeen = append(remoteSeen, code) }))

	a.Edit("def f(): pass")
	require.NoError(t, a.Flush(ctx))

	doc, err := st.Get(ctx, "abc12345")
	require.NoError(t, err)
	assert.Equal(t, "def f(): pass", doc.Code)
	assert.Equal(t, models.RoleCandidate, doc.LastUpdatedBy)

	assert.False(t, a.ApplySnapshot(doc))
	assert.Zero(t, a.LastAppliedRemote())

	assert.True(t, b.ApplySnapshot(doc))
	assert.Equal(t, "def f(): pass", b.Code())
	assert.Equal(t, doc.Timestamp, b.LastAppliedRemote())
	assert.Equal(t, []string{"def f(): pass"}, remoteSeen)
}

func TestStaleSnapshotIgnored(t *testing.T) {
	cs := NewCodeSync(&recordingPatcher{}, "r1", models.RoleInterviewer)

	assert.True(t, cs.ApplySnapshot(models.RoomDocument{Code: "x = 1", LastUpdatedBy: models.RoleCandidate, Timestamp: 100}))
	assert.False(t, cs.ApplySnapshot(models.RoomDocument{Code: "x = 0", LastUpdatedBy: models.RoleCandidate, Timestamp: 50}))
	assert.False(t, cs.ApplySnapshot(models.RoomDocument{Code: "x = 2", LastUpdatedBy: models.RoleCandidate, Timestamp: 100}))
	assert.Equal(t, "x = 1", cs.Code())
	assert.Equal(t, int64(100), cs.LastAppliedRemote())
}

func TestRemoteOverwriteDropsPendingEdit(t *testing.T) {
	p := &recordingPatcher{}
	cs := NewCodeSync(p, "r1", models.RoleInterviewer, WithDebounce(time.Hour))

	cs.Edit("local draft")
	require.True(t, cs.Pending())

	assert.True(t, cs.ApplySnapshot(models.RoomDocument{Code: "remote", LastUpdatedBy: models.RoleCandidate, Timestamp: 10}))
	assert.False(t, cs.Pending())
	assert.Equal(t, "remote", cs.Code())

	require.NoError(t, cs.Flush(context.Background()))
	assert.Zero(t, p.count())
}

func TestUnrelatedFieldChangeKeepsPendingEdit(t *testing.T) {
	p := &recordingPatcher{}
	cs := NewCodeSync(p, "r1", models.RoleCandidate, WithDebounce(time.Hour))

	cs.Edit("typing")
	assert.False(t, cs.ApplySnapshot(models.RoomDocument{Question: "Reverse a string", LastUpdatedBy: models.RoleInterviewer, Timestamp: 10}))
	assert.True(t, cs.Pending())
	assert.Equal(t, "typing", cs.Code())
	assert.Equal(t, int64(10), cs.LastAppliedRemote())
}

func TestFailedWriteKeepsLocalBuffer(t *testing.T) {
	boom := errors.New("store down")
	p := &recordingPatcher{err: boom}
	var reported error
	cs := NewCodeSync(p, "r1", models.RoleCandidate, WithDebounce(time.Hour), OnError(func(err error) { reported = err }))

	cs.Edit("print(1)")
	err := cs.Flush(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, reported, boom)
	assert.Equal(t, "print(1)", cs.Code())
}

func TestCloseFlushesTrailingEdit(t *testing.T) {
	p := &recordingPatcher{}
	cs := NewCodeSync(p, "r1", models.RoleCandidate, WithDebounce(time.Hour))

	cs.Edit("final")
	require.NoError(t, cs.Close(context.Background(), false))
	require.Equal(t, 1, p.count())
	assert.Equal(t, "final", *p.last().Code)

	cs.Edit("after close")
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, p.count())
}

func TestCloseAbandonDropsPendingEdit(t *testing.T) {
	p := &recordingPatcher{}
	cs := NewCodeSync(p, "r1", models.RoleCandidate, WithDebounce(10*time.Millisecond))

	cs.Edit("discarded")
	require.NoError(t, cs.Close(context.Background(), true))
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, p.count())
}
