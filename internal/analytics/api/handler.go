package analytics_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ms-speakers/internal/analytics"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/utils"
)

// maxBatch bounds the ids accepted by the batch endpoint.
const maxBatch = 50

type AnalyticsService interface {
	GetEventAnalytics(ctx context.Context, eventID string) (*analytics.EventAnalytics, error)
	GetBatchEventAnalytics(ctx context.Context, eventIDs []string) ([]analytics.EventAnalytics, error)
	GetSuggestionSummary(ctx context.Context) (*analytics.SuggestionSummary, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service AnalyticsService
	Logger  *logger.Logger
}

func NewHandler(service AnalyticsService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts the analytics routes. Every route is admin only.
func (h *Handler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/admin/analytics", func(r chi.Router) {
		r.Use(admin)
		r.Get("/events/{eventId}", h.GetEventAnalytics)
		r.Post("/events/batch", h.GetBatchEventAnalytics)
		r.Get("/suggestions", h.GetSuggestionSummary)
	})
}

func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if _, err := uuid.Parse(eventID); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid event ID", "")
		return
	}

	result, err := h.Service.GetEventAnalytics(r.Context(), eventID)
	switch {
	case errors.Is(err, analytics.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "Event not found", "")
		return
	case err != nil:
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Event analytics for %s failed: %v", eventID, err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load analytics", "")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event analytics", result))
}

type batchRequest struct {
	EventIDs []string `json:"event_ids"`
}

// GetBatchEventAnalytics expects {"event_ids": ["...", ...]}.
func (h *Handler) GetBatchEventAnalytics(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}
	if len(req.EventIDs) == 0 || len(req.EventIDs) > maxBatch {
		utils.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Provide between 1 and %d event IDs", maxBatch), "")
		return
	}
	for _, id := range req.EventIDs {
		if _, err := uuid.Parse(id); err != nil {
			utils.WriteError(w, http.StatusBadRequest, "Invalid event ID", id)
			return
		}
	}

	result, err := h.Service.GetBatchEventAnalytics(r.Context(), req.EventIDs)
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Batch analytics failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load analytics", "")
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Batch event analytics", result))
}

func (h *Handler) GetSuggestionSummary(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.GetSuggestionSummary(r.Context())
	if err != nil {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("Suggestion summary failed: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load analytics", "")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Suggestion summary", result))
}
