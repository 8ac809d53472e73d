package handlers

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"hiroai/roomsync/internal/lifecycle"
	"hiroai/roomsync/internal/llm"
	"hiroai/roomsync/internal/models"
	"hiroai/roomsync/internal/profile"
	"hiroai/roomsync/internal/store"
	"hiroai/roomsync/internal/utils"
)

// writeError maps domain errors to HTTP responses. Anything unrecognised
// is treated as a failed durable write: the client keeps its optimistic
// state and may retry.
func writeError(w http.ResponseWriter, log *zap.Logger, err error, fields ...zap.Field) {
	status, resp := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", append(fields, zap.Error(err))...)
	} else {
		log.Debug("request rejected", append(fields, zap.Error(err))...)
	}
	utils.JSON(w, status, resp)
}

func classify(err error) (int, models.ErrorResponse) {
	var providerErr *llm.ProviderError
	switch {
	case errors.Is(err, llm.ErrMalformedResponse):
		return http.StatusBadGateway, models.ErrorResponse{Code: "malformed_ai_response", Message: "The AI service returned an unexpected response", Retryable: true}
	case errors.As(err, &providerErr):
		retryable := providerErr.Code != llm.ErrCodeAPIKey && providerErr.Code != llm.ErrCodeInvalidInput
		return http.StatusBadGateway, models.ErrorResponse{Code: providerErr.Code, Message: "The AI service failed", Retryable: retryable}
	case errors.Is(err, lifecycle.ErrNoQuestion):
		return http.StatusConflict, models.ErrorResponse{Code: "no_question", Message: err.Error()}
	case errors.Is(err, lifecycle.ErrGeneratorUnavailable):
		return http.StatusServiceUnavailable, models.ErrorResponse{Code: "generator_unavailable", Message: err.Error()}
	case errors.Is(err, profile.ErrInvalidHandle):
		return http.StatusBadRequest, models.ErrorResponse{Code: "invalid_handle", Message: err.Error()}
	case errors.Is(err, profile.ErrProfileNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: "profile_not_found", Message: err.Error()}
	case errors.Is(err, profile.ErrUpstreamUnavailable):
		return http.StatusBadGateway, models.ErrorResponse{Code: "upstream_unavailable", Message: err.Error(), Retryable: true}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: "not_found", Message: "Entry not found"}
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusUnprocessableEntity, models.ErrorResponse{Code: "invalid_transition", Message: err.Error()}
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, models.ErrorResponse{Code: "conflict", Message: "Concurrent update, retry", Retryable: true}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, models.ErrorResponse{Code: "timeout", Message: "Request timed out", Retryable: true}
	default:
		return http.StatusBadGateway, models.ErrorResponse{Code: "store_error", Message: "Failed to persist change", Retryable: true}
	}
}
