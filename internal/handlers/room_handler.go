package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/middleware"
	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/store"
	"hiroai/roomsync/internal/utils"
)

// RoomHandler exposes the shared document store over REST.
type RoomHandler struct {
	store  *store.Store
	logger *zap.Logger
}

func NewRoomHandler(st *store.Store, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{store: st, logger: logger}
}

func (h *RoomHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	doc, err := h.store.Get(r.Context(), roomID)
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID))
		return
	}
	utils.JSON(w, http.StatusOK, doc)
}

// PatchDocument merge-patches the room document and returns the result.
func (h *RoomHandler) PatchDocument(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	patch := middleware.GetValidatedRequest[*models.DocPatch](r)
	doc, err := h.store.Patch(r.Context(), roomID, *patch)
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID))
		return
	}
	utils.JSON(w, http.StatusOK, doc)
}

func (h *RoomHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	list, err := h.store.ListHistory(r.Context(), roomID)
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID))
		return
	}
	utils.JSON(w, http.StatusOK, nonNil(list))
}

func (h *RoomHandler) AppendHistory(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	req := middleware.GetValidatedRequest[*models.CreateHistoryRequest](r)
	id, err := h.store.AppendHistory(r.Context(), roomID, models.HistoryEntry{
		Question:     req.Question,
		QuestionType: req.QuestionType,
		Difficulty:   req.Difficulty,
		Timestamp:    req.Timestamp,
	})
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID))
		return
	}
	utils.JSON(w, http.StatusCreated, models.IDResponse{ID: id})
}

func (h *RoomHandler) AttachHistory(w http.ResponseWriter, r *http.Request) {
	roomID, entryID := chi.URLParam(r, "roomId"), chi.URLParam(r, "entryId")
	req := middleware.GetValidatedRequest[*models.HistoryAttachment](r)
	if err := h.store.AttachToHistory(r.Context(), roomID, entryID, *req); err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID), zap.String("entry_id", entryID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) ListSent(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	list, err := h.store.ListSentQuestions(r.Context(), roomID)
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID))
		return
	}
	utils.JSON(w, http.StatusOK, nonNil(list))
}

// AppendSent records a sent question without touching the timeline.
func (h *RoomHandler) AppendSent(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	req := middleware.GetValidatedRequest[*models.SendQuestionRequest](r)
	id, err := h.store.AppendSentQuestion(r.Context(), roomID, models.SentQuestion{
		Question:     req.Question,
		QuestionType: req.QuestionType,
		Difficulty:   req.Difficulty,
		SentBy:       req.SentBy,
		IsAsked:      true,
	})
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID))
		return
	}
	utils.JSON(w, http.StatusCreated, models.IDResponse{ID: id})
}

func (h *RoomHandler) ListTimeline(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	list, err := h.store.ListTimeline(r.Context(), roomID)
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID))
		return
	}
	utils.JSON(w, http.StatusOK, nonNil(list))
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
