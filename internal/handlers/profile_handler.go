package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"hiroai/roomsync/internal/middleware"
	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/profile"
	"hiroai/roomsync/internal/utils"
)

type ProfileHandler struct {
	fetcher profile.Fetcher
	logger  *zap.Logger
}

func NewProfileHandler(fetcher profile.Fetcher, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{fetcher: fetcher, logger: logger}
}

// Fetch returns profile text suitable for jobContext.candidateProfile.
func (h *ProfileHandler) Fetch(w http.ResponseWriter, r *http.Request) {
	req := middleware.GetValidatedRequest[*models.ProfileRequest](r)
	handle, err := profile.ParseHandle(req.Handle)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()
	content, err := h.fetcher.Fetch(ctx, handle)
	if err != nil {
		writeError(w, h.logger, err, zap.String("handle", handle))
		return
	}
	utils.JSON(w, http.StatusOK, models.ProfileResponse{Handle: handle, Content: content})
}
