package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/session"
	"hiroai/roomsync/internal/store"
)

// FeedHandler streams store snapshots over WebSocket. Each connection
// gets the current value first and then one frame per change.
type FeedHandler struct {
	store    *store.Store
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewFeedHandler(st *store.Store, allowedOrigins []string, logger *zap.Logger) *FeedHandler {
	return &FeedHandler{store: st, logger: logger, upgrader: newUpgrader(allowedOrigins)}
}

func (h *FeedHandler) Document(w http.ResponseWriter, r *http.Request) {
	serveFeed(h, w, r, store.TopicDocument, h.store.Subscribe)
}

func (h *FeedHandler) History(w http.ResponseWriter, r *http.Request) {
	serveFeed(h, w, r, store.TopicHistory, h.store.SubscribeHistory)
}

func (h *FeedHandler) Sent(w http.ResponseWriter, r *http.Request) {
	serveFeed(h, w, r, store.TopicSent, h.store.SubscribeSentQuestions)
}

func (h *FeedHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	serveFeed(h, w, r, store.TopicTimeline, h.store.SubscribeTimeline)
}

func serveFeed[T any](h *FeedHandler, w http.ResponseWriter, r *http.Request, topic string,
	open func(context.Context, string) (*store.Subscription[T], error)) {
	roomID := chi.URLParam(r, "roomId")
	log := h.logger.With(zap.String("room_id", roomID), zap.String("topic", topic))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("feed upgrade failed", zap.Error(err))
		return
	}
	client := session.NewClient(conn)
	defer client.Close()

	// Hijacked connections outlive r.Context; the reader below cancels
	// when the peer goes away.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := open(ctx, roomID)
	if err != nil {
		log.Warn("feed subscribe failed", zap.Error(err))
		sendFrame(client, models.FeedFrame{Type: "error", Data: "subscribe failed"})
		return
	}
	defer sub.Close()

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(session.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(session.PongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(session.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					log.Warn("feed ended", zap.Error(err))
					sendFrame(client, models.FeedFrame{Type: "error", Data: err.Error()})
				}
				return
			}
			if err := sendFrame(client, models.FeedFrame{Type: "snapshot", Data: snap}); err != nil {
				return
			}
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}

func sendFrame(c *session.Client, f models.FeedFrame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.Send(payload)
}
