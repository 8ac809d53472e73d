package syncclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/store"
)

var ErrOperationPending = errors.New("operation already in progress")

// DocumentService is the store as seen by a client. *store.Store and
// *RemoteStore both satisfy it.
type DocumentService interface {
	Patcher
	Subscribe(ctx context.Context, roomID string) (*store.Subscription[models.RoomDocument], error)
	SubscribeHistory(ctx context.Context, roomID string) (*store.Subscription[[]models.HistoryEntry], error)
}

// LifecycleService drives questions through the lifecycle.
// *lifecycle.Service and *RemoteStore both satisfy it.
type LifecycleService interface {
	GenerateQuestion(ctx context.Context, roomID string, req models.GenerateQuestionRequest) (models.HistoryEntry, error)
	SendToCandidate(ctx context.Context, roomID string, req models.SendQuestionRequest) (models.SentQuestion, error)
	Evaluate(ctx context.Context, roomID string, req models.SubmissionRequest) (*models.SubmissionResponse, error)
}

type SyncState string

const (
	SyncIdle   SyncState = "idle"
	SyncLive   SyncState = "live"
	SyncError  SyncState = "error"
	SyncClosed SyncState = "closed"
)

// State is what a client renders.
type State struct {
	Document models.RoomDocument
	History  []models.HistoryEntry
	Code     string
	Sync     SyncState
	Err      error
}

type SessionConfig struct {
	RoomID   string
	Role     models.Role
	Debounce time.Duration
	// ChannelURL, when set, is dialed on Enter.
	ChannelURL    string
	ChannelHeader http.Header
}

// Session joins one client to a room: it keeps the document and history
// subscriptions, the code controller and the optional ephemeral channel,
// and releases all of them on Leave.
type Session struct {
	cfg  SessionConfig
	docs DocumentService
	lc   LifecycleService
	log  *zap.Logger
	code *CodeSync

	onChange  func(State)
	onMessage func(map[string]any)

	mu      sync.Mutex
	state   State
	pending map[string]bool
	cancel  context.CancelFunc
	docSub  *store.Subscription[models.RoomDocument]
	histSub *store.Subscription[[]models.HistoryEntry]
	channel *ChannelClient
	pumps   sync.WaitGroup
}

type SessionOption func(*Session)

// OnStateChange is called after every reconciled snapshot.
func OnStateChange(fn func(State)) SessionOption {
	return func(s *Session) { s.onChange = fn }
}

// OnChannelMessage receives ephemeral channel messages.
func OnChannelMessage(fn func(map[string]any)) SessionOption {
	return func(s *Session) { s.onMessage = fn }
}

func NewSession(docs DocumentService, lc LifecycleService, cfg SessionConfig, log *zap.Logger, opts ...SessionOption) *Session {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Session{
		cfg:       cfg,
		docs:      docs,
		lc:        lc,
		log:       log.With(zap.String("room_id", cfg.RoomID), zap.String("role", string(cfg.Role))),
		onChange:  func(State) {},
		onMessage: func(map[string]any) {},
		pending:   make(map[string]bool),
		state:     State{Document: models.RoomDocument{RoomID: cfg.RoomID}, Sync: SyncIdle},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.code = NewCodeSync(docs, cfg.RoomID, cfg.Role,
		WithDebounce(cfg.Debounce),
		OnRemoteCode(func(string) { s.publish() }),
		OnError(func(err error) {
			s.log.Warn("code write failed, keeping local buffer", zap.Error(err))
		}),
	)
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.History = append([]models.HistoryEntry(nil), s.state.History...)
	st.Code = s.code.Code()
	return st
}

func (s *Session) publish() { s.onChange(s.State()) }

// Enter subscribes to the room. ctx bounds only the setup; the
// subscriptions live until Leave. When a subscription cannot be opened
// the session reports SyncError and keeps working locally; the error is
// also returned.
func (s *Session) Enter(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subCtx, cancel := context.WithCancel(context.Background())

	docSub, err := s.docs.Subscribe(subCtx, s.cfg.RoomID)
	if err != nil {
		cancel()
		return s.fail(fmt.Errorf("subscribe document: %w", err))
	}
	histSub, err := s.docs.SubscribeHistory(subCtx, s.cfg.RoomID)
	if err != nil {
		docSub.Close()
		cancel()
		return s.fail(fmt.Errorf("subscribe history: %w", err))
	}

	s.mu.Lock()
	s.cancel = cancel
	s.docSub, s.histSub = docSub, histSub
	s.state.Sync = SyncLive
	s.state.Err = nil
	s.mu.Unlock()

	s.pumps.Add(2)
	go s.pumpDocument(docSub)
	go s.pumpHistory(histSub)

	if s.cfg.ChannelURL != "" {
		ch, err := DialChannel(ctx, s.cfg.ChannelURL, s.cfg.ChannelHeader, s.log)
		if err != nil {
			s.log.Warn("ephemeral channel unavailable", zap.Error(err))
		} else {
			s.mu.Lock()
			s.channel = ch
			s.mu.Unlock()
			s.pumps.Add(1)
			go s.pumpChannel(ch)
		}
	}
	return nil
}

func (s *Session) fail(err error) error {
	s.log.Warn("room sync unavailable, continuing locally", zap.Error(err))
	s.mu.Lock()
	s.state.Sync = SyncError
	s.state.Err = err
	s.mu.Unlock()
	s.publish()
	return err
}

func (s *Session) pumpDocument(sub *store.Subscription[models.RoomDocument]) {
	defer s.pumps.Done()
	for doc := range sub.C() {
		s.code.ApplySnapshot(doc)
		s.mu.Lock()
		s.state.Document = doc
		s.mu.Unlock()
		s.publish()
	}
	s.feedEnded(sub.Err())
}

func (s *Session) pumpHistory(sub *store.Subscription[[]models.HistoryEntry]) {
	defer s.pumps.Done()
	for list := range sub.C() {
		s.mu.Lock()
		s.state.History = list
		s.mu.Unlock()
		s.publish()
	}
	s.feedEnded(sub.Err())
}

func (s *Session) pumpChannel(ch *ChannelClient) {
	defer s.pumps.Done()
	for msg := range ch.Messages() {
		s.onMessage(msg)
	}
}

func (s *Session) feedEnded(err error) {
	if err == nil {
		return
	}
	_ = s.fail(fmt.Errorf("change feed ended: %w", err))
}

// Edit changes the local code buffer; the write is debounced.
func (s *Session) Edit(code string) {
	s.code.Edit(code)
	s.publish()
}

// Broadcast sends an ephemeral message to the room, if the channel is up.
func (s *Session) Broadcast(msg map[string]any) error {
	s.mu.Lock()
	ch := s.channel
	s.mu.Unlock()
	if ch == nil {
		return ErrChannelClosed
	}
	return ch.Send(msg)
}

func (s *Session) begin(op string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[op] {
		return nil, ErrOperationPending
	}
	s.pending[op] = true
	return func() {
		s.mu.Lock()
		delete(s.pending, op)
		s.mu.Unlock()
	}, nil
}

func (s *Session) GenerateQuestion(ctx context.Context, req models.GenerateQuestionRequest) (models.HistoryEntry, error) {
	done, err := s.begin("generate")
	if err != nil {
		return models.HistoryEntry{}, err
	}
	defer done()
	return s.lc.GenerateQuestion(ctx, s.cfg.RoomID, req)
}

func (s *Session) SendToCandidate(ctx context.Context, req models.SendQuestionRequest) (models.SentQuestion, error) {
	done, err := s.begin("send")
	if err != nil {
		return models.SentQuestion{}, err
	}
	defer done()
	if req.SentBy == "" {
		req.SentBy = s.cfg.Role
	}
	return s.lc.SendToCandidate(ctx, s.cfg.RoomID, req)
}

// SubmitCode submits the current buffer, flushing it first so the
// document and the submission agree.
func (s *Session) SubmitCode(ctx context.Context, requestID string) (*models.SubmissionResponse, error) {
	done, err := s.begin("submit")
	if err != nil {
		return nil, err
	}
	defer done()
	if err := s.code.Flush(ctx); err != nil {
		s.log.Warn("flush before submit failed", zap.Error(err))
	}
	return s.lc.Evaluate(ctx, s.cfg.RoomID, models.SubmissionRequest{Code: s.code.Code(), RequestID: requestID})
}

// Leave writes the trailing code edit and then releases every
// subscription before returning.
func (s *Session) Leave(ctx context.Context) error {
	err := s.code.Close(ctx, false)
	s.release()
	return err
}

// Teardown is Leave for a room that is going away: pending writes are
// abandoned.
func (s *Session) Teardown(ctx context.Context) error {
	_ = s.code.Close(ctx, true)
	s.release()
	return nil
}

func (s *Session) release() {
	s.mu.Lock()
	docSub, histSub, ch, cancel := s.docSub, s.histSub, s.channel, s.cancel
	s.docSub, s.histSub, s.channel, s.cancel = nil, nil, nil, nil
	s.mu.Unlock()

	if docSub != nil {
		docSub.Close()
	}
	if histSub != nil {
		histSub.Close()
	}
	if ch != nil {
		ch.Close()
	}
	if cancel != nil {
		cancel()
	}
	s.pumps.Wait()

	s.mu.Lock()
	s.state.Sync = SyncClosed
	s.mu.Unlock()
}
