package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hiroai/roomsync/internal/auth"
	"hiroai/roomsync/internal/middleware"
	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/utils"
)

type TokenHandler struct {
	issuer *auth.Issuer
	logger *zap.Logger
}

func NewTokenHandler(issuer *auth.Issuer, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{issuer: issuer, logger: logger}
}

// Issue mints a room access token for the requested role.
func (h *TokenHandler) Issue(w http.ResponseWriter, r *http.Request) {
	if !h.issuer.Enabled() {
		utils.Error(w, http.StatusNotImplemented, "tokens_disabled", "Room tokens are not configured")
		return
	}
	roomID := chi.URLParam(r, "roomId")
	req := middleware.GetValidatedRequest[*models.TokenRequest](r)

	token, exp, err := h.issuer.Issue(roomID, req.Role, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		h.logger.Error("failed to sign room token", zap.String("room_id", roomID), zap.Error(err))
		utils.Error(w, http.StatusInternalServerError, "token_error", "Failed to issue token")
		return
	}
	utils.JSON(w, http.StatusCreated, models.TokenResponse{Token: token, ExpiresAt: exp.UnixMilli()})
}
