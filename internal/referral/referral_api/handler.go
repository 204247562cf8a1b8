package referral_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/models"
	referral "ms-speakers/internal/referral/service"
	"ms-speakers/internal/utils"
)

type ReferralService interface {
	RecordAttribution(ctx context.Context, id auth.Identity, eventID string) (referral.Result, error)
	ValidateCode(ctx context.Context, id auth.Identity, eventID, code string) (referral.Validation, error)
	Share(ctx context.Context, id auth.Identity, eventID string) (*models.ReferralRecord, error)
	Leaderboard(ctx context.Context, eventID string) ([]models.ReferralRecord, error)
}

type Handler struct {
	Service ReferralService
	Logger  *logger.Logger
}

func NewHandler(service ReferralService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts the caller routes on r and the leaderboard behind admin.
func (h *Handler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/referrals", func(r chi.Router) {
		r.Post("/attribute", h.RecordAttribution)
		r.Post("/validate", h.ValidateCode)
		r.Post("/share", h.Share)
	})
	r.With(admin).Get("/admin/referrals/{eventId}", h.Leaderboard)
}

type attributionRequest struct {
	EventID string `json:"event_id"`
}

type validateRequest struct {
	ReferralCode string `json:"referral_code"`
	EventID      string `json:"event_id"`
}

var outcomeMessages = map[referral.Outcome]string{
	referral.OutcomeAttributed:        "Referral recorded",
	referral.OutcomeAlreadyAttributed: "Referral already recorded for this ticket",
	referral.OutcomeSelfReferral:      "Self-referral ignored",
	referral.OutcomeNoReferral:        "No referral code on this ticket",
}

// RecordAttribution expects {"event_id": "..."}.
func (h *Handler) RecordAttribution(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	var req attributionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	result, err := h.Service.RecordAttribution(r.Context(), id, req.EventID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(outcomeMessages[result.Outcome], result))
}

// ValidateCode expects {"referral_code": "...", "event_id": "..."} and answers
// {"valid": bool, "reason": "self_referral"|"invalid"}.
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	var req validateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	validation, err := h.Service.ValidateCode(r.Context(), id, req.EventID, req.ReferralCode)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, validation)
}

func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	var req attributionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	record, err := h.Service.Share(r.Context(), id, req.EventID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Referral code ready", record))
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	records, err := h.Service.Leaderboard(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Referral leaderboard", records))
}

// writeServiceError maps service errors to status codes. Store failures are
// logged with detail and returned as a generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		utils.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
	case errors.Is(err, referral.ErrInvalidEvent), errors.Is(err, referral.ErrMissingCode):
		utils.WriteError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, referral.ErrTicketNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, context.DeadlineExceeded):
		h.Logger.Error("REFERRAL", fmt.Sprintf("%s %s timed out: %v", r.Method, r.URL.Path, err))
		utils.WriteError(w, http.StatusServiceUnavailable, "Request timed out, please retry", "")
	default:
		h.Logger.Error("REFERRAL", fmt.Sprintf("%s %s failed: %v", r.Method, r.URL.Path, err))
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong, please retry", "")
	}
}
