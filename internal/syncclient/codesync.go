package syncclient

import (
	"context"
	"sync"
	"time"

	"hiroai/roomsync/internal/models"
)

const (
	DefaultDebounce = 300 * time.Millisecond

	// own write timestamps remembered for echo suppression
	recentWrites = 32
)

// Patcher is the write half of the document store.
type Patcher interface {
	Patch(ctx context.Context, roomID string, p models.DocPatch) (models.RoomDocument, error)
}

// CodeSync keeps one client's code buffer converged with the room
// document. Local edits are written after a quiet period; remote
// snapshots replace the buffer when they are newer than anything applied
// so far. Conflicts resolve by whole-field last-writer-wins.
type CodeSync struct {
	svc      Patcher
	roomID   string
	role     models.Role
	debounce time.Duration
	now      func() time.Time
	onRemote func(code string)
	onError  func(err error)

	ctx    context.Context
	cancel context.CancelFunc
	writes sync.WaitGroup

	mu         sync.Mutex
	code       string
	stored     string // last code known to be in the store
	lastRemote int64
	lastWrite  int64
	recent     []int64
	pending    bool
	timer      *time.Timer
	gen        uint64
	closed     bool
}

type CodeSyncOption func(*CodeSync)

func WithDebounce(d time.Duration) CodeSyncOption {
	return func(c *CodeSync) { c.debounce = d }
}

func WithClock(now func() time.Time) CodeSyncOption {
	return func(c *CodeSync) { c.now = now }
}

// OnRemoteCode is called, outside any lock, whenever a remote snapshot
// replaces the local buffer.
func OnRemoteCode(fn func(code string)) CodeSyncOption {
	return func(c *CodeSync) { c.onRemote = fn }
}

// OnError receives failed writes. The local buffer is never reverted.
func OnError(fn func(err error)) CodeSyncOption {
	return func(c *CodeSync) { c.onError = fn }
}

func NewCodeSync(svc Patcher, roomID string, role models.Role, opts ...CodeSyncOption) *CodeSync {
	ctx, cancel := context.WithCancel(context.Background())
	c := &CodeSync{
		svc:      svc,
		roomID:   roomID,
		role:     role,
		debounce: DefaultDebounce,
		now:      time.Now,
		onRemote: func(string) {},
		onError:  func(error) {},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CodeSync) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// LastAppliedRemote returns the timestamp of the newest remote snapshot
// applied to the buffer.
func (c *CodeSync) LastAppliedRemote() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRemote
}

// Pending reports whether a debounced write is waiting.
func (c *CodeSync) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Edit updates the local buffer and (re)arms the debounce timer.
func (c *CodeSync) Edit(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
	if c.closed {
		return
	}
	c.pending = true
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() { c.fire(gen) })
}

func (c *CodeSync) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.pending || c.closed {
		c.mu.Unlock()
		return
	}
	patch := c.takeLocked()
	c.writes.Add(1)
	c.mu.Unlock()

	defer c.writes.Done()
	c.write(c.ctx, patch)
}

// Flush writes a pending edit immediately.
func (c *CodeSync) Flush(ctx context.Context) error {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return nil
	}
	patch := c.takeLocked()
	c.mu.Unlock()
	return c.write(ctx, patch)
}

// takeLocked clears the pending state and builds the patch for the
// current buffer with a timestamp strictly greater than this writer's
// previous one and than any remote value already applied.
func (c *CodeSync) takeLocked() models.DocPatch {
	c.pending = false
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	ts := c.now().UnixMilli()
	if ts <= c.lastWrite {
		ts = c.lastWrite + 1
	}
	if ts <= c.lastRemote {
		ts = c.lastRemote + 1
	}
	c.lastWrite = ts
	c.recent = append(c.recent, ts)
	if len(c.recent) > recentWrites {
		c.recent = c.recent[len(c.recent)-recentWrites:]
	}
	code, role := c.code, c.role
	c.stored = code
	return models.DocPatch{Code: &code, LastUpdatedBy: &role, Timestamp: ts}
}

func (c *CodeSync) write(ctx context.Context, p models.DocPatch) error {
	if _, err := c.svc.Patch(ctx, c.roomID, p); err != nil {
		c.onError(err)
		return err
	}
	return nil
}

// ApplySnapshot reconciles a document snapshot into the buffer. It
// returns true when the buffer was replaced.
func (c *CodeSync) ApplySnapshot(doc models.RoomDocument) bool {
	c.mu.Lock()
	if doc.LastUpdatedBy == c.role && c.ownWriteLocked(doc.Timestamp) {
		c.mu.Unlock()
		return false
	}
	if doc.Timestamp <= c.lastRemote {
		c.mu.Unlock()
		return false
	}
	c.lastRemote = doc.Timestamp
	if doc.Code == c.stored {
		// another field changed; the code in the store is what we know
		c.mu.Unlock()
		return false
	}
	c.stored = doc.Code
	c.code = doc.Code
	c.pending = false
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	onRemote := c.onRemote
	c.mu.Unlock()

	onRemote(doc.Code)
	return true
}

func (c *CodeSync) ownWriteLocked(ts int64) bool {
	for _, w := range c.recent {
		if w == ts {
			return true
		}
	}
	return false
}

// Close stops the controller. Unless abandon is set the trailing edit is
// written first and in-flight writes are awaited; with abandon, pending
// and in-flight writes are dropped.
func (c *CodeSync) Close(ctx context.Context, abandon bool) error {
	var err error
	if abandon {
		c.mu.Lock()
		c.pending = false
		c.gen++
		if c.timer != nil {
			c.timer.Stop()
		}
		c.closed = true
		c.mu.Unlock()
		c.cancel()
		return nil
	}

	err = c.Flush(ctx)
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.writes.Wait()
	c.cancel()
	return err
}
