package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/store"
)

// APIError is a non-2xx response from the room service.
type APIError struct {
	Status int
	models.ErrorResponse
}

func (e *APIError) Error() string {
	return fmt.Sprintf("room service %d: %s", e.Status, e.ErrorResponse.Error())
}

// Unwrap lets callers test remote failures with the store sentinels.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return store.ErrNotFound
	case http.StatusUnprocessableEntity:
		return store.ErrInvalidTransition
	}
	return nil
}

// RemoteStore talks to a room service over its REST and change-feed
// endpoints. It satisfies DocumentService and LifecycleService.
type RemoteStore struct {
	base   *url.URL
	token  string
	client *http.Client
	dialer *websocket.Dialer
	log    *zap.Logger
}

func NewRemoteStore(baseURL, token string, log *zap.Logger) (*RemoteStore, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RemoteStore{
		base:   u,
		token:  token,
		client: &http.Client{Timeout: 90 * time.Second},
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
	}, nil
}

func (s *RemoteStore) roomPath(roomID, suffix string) string {
	return s.base.String() + "/api/v1/rooms/" + url.PathEscape(roomID) + suffix
}

func (s *RemoteStore) header() http.Header {
	h := http.Header{}
	if s.token != "" {
		h.Set("Authorization", "Bearer "+s.token)
	}
	return h
}

// ChannelURL is the WebSocket address of the room's ephemeral channel.
func (s *RemoteStore) ChannelURL(roomID string) string {
	return s.wsURL("/ws/" + url.PathEscape(roomID))
}

// ChannelHeader carries the room token for DialChannel.
func (s *RemoteStore) ChannelHeader() http.Header { return s.header() }

func (s *RemoteStore) wsURL(path string) string {
	u := *s.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String() + path
}

func (s *RemoteStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, reader)
	if err != nil {
		return err
	}
	req.Header = s.header()
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr.ErrorResponse); err != nil {
			apiErr.Code = "http_error"
			apiErr.Message = resp.Status
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *RemoteStore) Get(ctx context.Context, roomID string) (models.RoomDocument, error) {
	var doc models.RoomDocument
	err := s.do(ctx, http.MethodGet, s.roomPath(roomID, "/"), nil, &doc)
	return doc, err
}

func (s *RemoteStore) Patch(ctx context.Context, roomID string, p models.DocPatch) (models.RoomDocument, error) {
	var doc models.RoomDocument
	err := s.do(ctx, http.MethodPatch, s.roomPath(roomID, "/"), p, &doc)
	return doc, err
}

func (s *RemoteStore) ListHistory(ctx context.Context, roomID string) ([]models.HistoryEntry, error) {
	var list []models.HistoryEntry
	err := s.do(ctx, http.MethodGet, s.roomPath(roomID, "/history"), nil, &list)
	return list, err
}

func (s *RemoteStore) ListSentQuestions(ctx context.Context, roomID string) ([]models.SentQuestion, error) {
	var list []models.SentQuestion
	err := s.do(ctx, http.MethodGet, s.roomPath(roomID, "/sent"), nil, &list)
	return list, err
}

func (s *RemoteStore) ListTimeline(ctx context.Context, roomID string) ([]models.QuestionTimelineEntry, error) {
	var list []models.QuestionTimelineEntry
	err := s.do(ctx, http.MethodGet, s.roomPath(roomID, "/timeline"), nil, &list)
	return list, err
}

func (s *RemoteStore) GenerateQuestion(ctx context.Context, roomID string, req models.GenerateQuestionRequest) (models.HistoryEntry, error) {
	var entry models.HistoryEntry
	err := s.do(ctx, http.MethodPost, s.roomPath(roomID, "/questions"), req, &entry)
	return entry, err
}

func (s *RemoteStore) SendToCandidate(ctx context.Context, roomID string, req models.SendQuestionRequest) (models.SentQuestion, error) {
	var sent models.SentQuestion
	err := s.do(ctx, http.MethodPost, s.roomPath(roomID, "/questions/send"), req, &sent)
	return sent, err
}

func (s *RemoteStore) Evaluate(ctx context.Context, roomID string, req models.SubmissionRequest) (*models.SubmissionResponse, error) {
	var resp models.SubmissionResponse
	if err := s.do(ctx, http.MethodPost, s.roomPath(roomID, "/submissions"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *RemoteStore) Complete(ctx context.Context, roomID string) (models.RoomDocument, error) {
	var doc models.RoomDocument
	err := s.do(ctx, http.MethodPost, s.roomPath(roomID, "/complete"), nil, &doc)
	return doc, err
}

func (s *RemoteStore) Subscribe(ctx context.Context, roomID string) (*store.Subscription[models.RoomDocument], error) {
	return subscribeRemote[models.RoomDocument](ctx, s, roomID, store.TopicDocument)
}

func (s *RemoteStore) SubscribeHistory(ctx context.Context, roomID string) (*store.Subscription[[]models.HistoryEntry], error) {
	return subscribeRemote[[]models.HistoryEntry](ctx, s, roomID, store.TopicHistory)
}

func (s *RemoteStore) SubscribeSentQuestions(ctx context.Context, roomID string) (*store.Subscription[[]models.SentQuestion], error) {
	return subscribeRemote[[]models.SentQuestion](ctx, s, roomID, store.TopicSent)
}

func (s *RemoteStore) SubscribeTimeline(ctx context.Context, roomID string) (*store.Subscription[[]models.QuestionTimelineEntry], error) {
	return subscribeRemote[[]models.QuestionTimelineEntry](ctx, s, roomID, store.TopicTimeline)
}

type feedFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// subscribeRemote dials the feed before returning so a refused or
// unauthorized connection surfaces as an error here. The subscription
// itself is detached from ctx; it ends on Close or when the server
// drops the feed.
func subscribeRemote[T any](ctx context.Context, s *RemoteStore, roomID, topic string) (*store.Subscription[T], error) {
	target := s.wsURL("/ws/rooms/" + url.PathEscape(roomID) + "/" + topic)
	conn, resp, err := s.dialer.DialContext(ctx, target, s.header())
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, ErrorResponse: models.ErrorResponse{Code: "feed_refused", Message: resp.Status}}
		}
		return nil, fmt.Errorf("dial %s feed: %w", topic, err)
	}

	return store.NewSubscription(context.Background(), 1, func(ctx context.Context, emit func(T) bool) error {
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()
		defer conn.Close()

		for {
			var frame feedFrame
			if err := conn.ReadJSON(&frame); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%s feed: %w", topic, err)
			}
			switch frame.Type {
			case "snapshot":
				var v T
				if err := json.Unmarshal(frame.Data, &v); err != nil {
					return fmt.Errorf("%s feed: decode snapshot: %w", topic, err)
				}
				if !emit(v) {
					return nil
				}
			case "error":
				var msg string
				_ = json.Unmarshal(frame.Data, &msg)
				return fmt.Errorf("%s feed: server error: %s", topic, msg)
			default:
				s.log.Debug("ignoring feed frame", zap.String("type", frame.Type))
			}
		}
	}), nil
}
