package handlers

import (
	"context"
	"net/http"
	"time"

	"hiroai/roomsync/internal/config"
	"hiroai/roomsync/internal/utils"
)

type ReadinessCheck struct {
	Status  string `json:"status"` // "ok" | "failed" | "disabled"
	Message string `json:"message,omitempty"`
}

type ReadinessResponse struct {
	Status  string                    `json:"status"` // "ready" | "not_ready"
	Service string                    `json:"service"`
	Checks  map[string]ReadinessCheck `json:"checks"`
}

// Pinger is satisfied by the document store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	store        Pinger
	hasGenerator bool
	config       *config.Config
}

func NewHealthHandler(st Pinger, hasGenerator bool, cfg *config.Config) *HealthHandler {
	return &HealthHandler{store: st, hasGenerator: hasGenerator, config: cfg}
}

func (handler *HealthHandler) HealthzHandler(writer http.ResponseWriter, request *http.Request) {
	utils.JSON(writer, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "roomsync",
		"version": "1.0.0",
	})
}

func (handler *HealthHandler) ReadyzHandler(writer http.ResponseWriter, request *http.Request) {
	checks := make(map[string]ReadinessCheck)
	allChecksPass := true

	if handler.store == nil {
		checks["store"] = ReadinessCheck{Status: "failed", Message: "Store not initialized"}
		allChecksPass = false
	} else {
		ctx, cancel := context.WithTimeout(request.Context(), 2*time.Second)
		err := handler.store.Ping(ctx)
		cancel()
		if err != nil {
			checks["store"] = ReadinessCheck{Status: "failed", Message: err.Error()}
			allChecksPass = false
		} else {
			checks["store"] = ReadinessCheck{Status: "ok"}
		}
	}

	if handler.config == nil {
		checks["configuration"] = ReadinessCheck{Status: "failed", Message: "Configuration not loaded"}
		allChecksPass = false
	} else {
		checks["configuration"] = ReadinessCheck{Status: "ok"}
	}

	// generation is optional; only a configured but missing provider fails
	switch {
	case handler.hasGenerator:
		checks["generator"] = ReadinessCheck{Status: "ok"}
	case handler.config != nil && handler.config.AIProvider != "none":
		checks["generator"] = ReadinessCheck{Status: "failed", Message: "AI provider not initialized"}
		allChecksPass = false
	default:
		checks["generator"] = ReadinessCheck{Status: "disabled"}
	}

	response := ReadinessResponse{Service: "roomsync", Checks: checks}
	if allChecksPass {
		response.Status = "ready"
		utils.JSON(writer, http.StatusOK, response)
	} else {
		response.Status = "not_ready"
		utils.JSON(writer, http.StatusServiceUnavailable, response)
	}
}
