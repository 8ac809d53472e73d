package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/session"
	"hiroai/roomsync/internal/utils"
)

// newUpgrader accepts browser origins from allowed ("*" allows any).
// Requests without an Origin header (non-browser clients) are accepted.
func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			for _, a := range allowed {
				if a == "*" || strings.EqualFold(strings.TrimRight(a, "/"), u.Scheme+"://"+u.Host) {
					return true
				}
			}
			return false
		},
	}
}

// ChannelHandler serves the ephemeral room channel: every JSON object a
// member sends is stamped and fanned out to all members of the room.
type ChannelHandler struct {
	registry *session.Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewChannelHandler(registry *session.Registry, allowedOrigins []string, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{registry: registry, logger: logger, upgrader: newUpgrader(allowedOrigins)}
}

func (h *ChannelHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("channel upgrade failed", zap.String("room_id", roomID), zap.Error(err))
		return
	}

	client := session.NewClient(conn)
	handle := h.registry.Join(roomID, client)
	defer func() {
		handle.Leave()
		client.Close()
	}()

	conn.SetReadLimit(session.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(session.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(session.PongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(client, done)

	limiter := session.NewLimiter(session.FrameRate, session.FrameBurst)
	violations := 0
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("channel read ended", zap.String("room_id", roomID), zap.String("endpoint", client.ID()), zap.Error(err))
			}
			return
		}
		if !limiter.Allow() {
			violations++
			if violations > session.MaxRateWarnings {
				h.logger.Warn("channel client exceeded rate limit, disconnecting",
					zap.String("room_id", roomID), zap.String("endpoint", client.ID()))
				return
			}
			continue
		}

		var msg session.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg == nil {
			h.logger.Debug("dropping non-object channel frame", zap.String("room_id", roomID), zap.String("endpoint", client.ID()))
			continue
		}
		h.registry.Broadcast(roomID, msg)
	}
}

// Members reports how many endpoints are joined to the room on this
// instance.
func (h *ChannelHandler) Members(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	utils.JSON(w, http.StatusOK, models.MembersResponse{RoomID: roomID, Members: h.registry.Members(roomID)})
}

func keepAlive(client *session.Client, done <-chan struct{}) {
	ticker := time.NewTicker(session.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}
