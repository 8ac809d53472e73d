package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/lifecycle"
	"hiroai/roomsync/internal/middleware"
	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/utils"
)

type LifecycleHandler struct {
	service *lifecycle.Service
	logger  *zap.Logger
}

func NewLifecycleHandler(service *lifecycle.Service, logger *zap.Logger) *LifecycleHandler {
	return &LifecycleHandler{service: service, logger: logger}
}

// ensureRequestID generates a request ID if one is not provided
func ensureRequestID(requestID string) string {
	if requestID == "" {
		return uuid.New().String()
	}
	return requestID
}

func (h *LifecycleHandler) GenerateQuestion(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	req := middleware.GetValidatedRequest[*models.GenerateQuestionRequest](r)
	req.RequestID = ensureRequestID(req.RequestID)

	entry, err := h.service.GenerateQuestion(r.Context(), roomID, *req)
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID), zap.String("request_id", req.RequestID))
		return
	}
	h.logger.Info("question generated",
		zap.String("room_id", roomID), zap.String("entry_id", entry.ID), zap.String("request_id", req.RequestID))
	utils.JSON(w, http.StatusCreated, entry)
}

func (h *LifecycleHandler) SendQuestion(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	req := middleware.GetValidatedRequest[*models.SendQuestionRequest](r)

	sent, err := h.service.SendToCandidate(r.Context(), roomID, *req)
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID))
		return
	}
	utils.JSON(w, http.StatusCreated, sent)
}

// Submit records candidate code and, unless evaluate=false, returns the
// generator's feedback.
func (h *LifecycleHandler) Submit(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	req := middleware.GetValidatedRequest[*models.SubmissionRequest](r)

	resp, err := h.service.Evaluate(r.Context(), roomID, *req)
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID), zap.String("request_id", req.RequestID))
		return
	}
	utils.JSON(w, http.StatusOK, resp)
}

func (h *LifecycleHandler) Complete(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	doc, err := h.service.Complete(r.Context(), roomID)
	if err != nil {
		writeError(w, h.logger, err, zap.String("room_id", roomID))
		return
	}
	h.logger.Info("interview completed", zap.String("room_id", roomID))
	utils.JSON(w, http.StatusOK, doc)
}
