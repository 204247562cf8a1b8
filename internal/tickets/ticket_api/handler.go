package ticket_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/models"
	tickets "ms-speakers/internal/tickets/service"
	"ms-speakers/internal/utils"
)

type TicketService interface {
	Purchase(ctx context.Context, id auth.Identity, eventID, referralCode string) (*models.Ticket, error)
	Mine(ctx context.Context, id auth.Identity) ([]models.Ticket, error)
	Cancel(ctx context.Context, id auth.Identity, ticketID string) error
	Scan(ctx context.Context, scanner auth.Identity, ticketID string) (*models.Ticket, error)
	ScanPayload(ctx context.Context, scanner auth.Identity, sealed string) (*models.Ticket, error)
	QRCode(ctx context.Context, id auth.Identity, ticketID string) ([]byte, error)
}

type Handler struct {
	TicketService TicketService
	Logger        *logger.Logger
}

func NewHandler(ticketService TicketService, log *logger.Logger) *Handler {
	return &Handler{TicketService: ticketService, Logger: log}
}

// RegisterRoutes mounts ticket routes; scanner guards the check-in endpoints.
func (h *Handler) RegisterRoutes(r chi.Router, scanner func(http.Handler) http.Handler) {
	r.Route("/tickets", func(r chi.Router) {
		r.Post("/", h.Purchase)
		r.Get("/", h.Mine)
		r.With(scanner).Post("/checkin", h.CheckinTicket)
		r.Delete("/{ticketId}", h.Cancel)
		r.Get("/{ticketId}/qr", h.QRCode)
		r.With(scanner).Post("/{ticketId}/scan", h.Scan)
	})
}

type purchaseRequest struct {
	EventID      string `json:"event_id"`
	ReferralCode string `json:"referral_code"`
}

type checkinRequest struct {
	EncryptedQR string `json:"encrypted_qr"`
}

// Purchase expects {"event_id": "...", "referral_code": "..."}; the code is optional.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	var req purchaseRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	ticket, err := h.TicketService.Purchase(r.Context(), id, req.EventID, req.ReferralCode)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket issued", ticket))
}

func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	list, err := h.TicketService.Mine(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Tickets", list))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	if err := h.TicketService.Cancel(r.Context(), id, chi.URLParam(r, "ticketId")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket cancelled", nil))
}

func (h *Handler) QRCode(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	png, err := h.TicketService.QRCode(r.Context(), id, chi.URLParam(r, "ticketId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	ticket, err := h.TicketService.Scan(r.Context(), id, chi.URLParam(r, "ticketId"))
	if err != nil {
		h.writeScanError(w, r, ticket, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Checkin successful", ticket))
}

// CheckinTicket scans the ticket sealed in a QR code.
// Expected POST request body: {"encrypted_qr": "..."}
func (h *Handler) CheckinTicket(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	var req checkinRequest
	if err := utils.DecodeJSON(r, &req); err != nil || req.EncryptedQR == "" {
		utils.WriteError(w, http.StatusBadRequest, "encrypted_qr is required", "")
		return
	}

	ticket, err := h.TicketService.ScanPayload(r.Context(), id, req.EncryptedQR)
	if err != nil {
		h.writeScanError(w, r, ticket, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Checkin successful", ticket))
}

// writeScanError answers a repeat scan with the ticket so the door can see
// when it was first used.
func (h *Handler) writeScanError(w http.ResponseWriter, r *http.Request, ticket *models.Ticket, err error) {
	if errors.Is(err, tickets.ErrAlreadyScanned) && ticket != nil {
		resp := utils.ErrorResponse(err.Error(), "")
		resp.Data = ticket
		utils.WriteJSON(w, http.StatusConflict, resp)
		return
	}
	h.writeServiceError(w, r, err)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		utils.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
	case errors.Is(err, tickets.ErrInvalidEvent),
		errors.Is(err, tickets.ErrInvalidReferral),
		errors.Is(err, tickets.ErrInvalidQR):
		utils.WriteError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, tickets.ErrEventNotFound), errors.Is(err, tickets.ErrTicketNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, tickets.ErrCapacityExceeded),
		errors.Is(err, tickets.ErrAlreadyHasTicket),
		errors.Is(err, tickets.ErrEventLive),
		errors.Is(err, tickets.ErrAlreadyScanned):
		utils.WriteError(w, http.StatusConflict, err.Error(), "")
	case errors.Is(err, tickets.ErrPurchaseFailed):
		h.Logger.Error("TICKET", fmt.Sprintf("%s %s failed: %v", r.Method, r.URL.Path, err))
		utils.WriteError(w, http.StatusInternalServerError, tickets.ErrPurchaseFailed.Error(), "")
	default:
		h.Logger.Error("TICKET", fmt.Sprintf("%s %s failed: %v", r.Method, r.URL.Path, err))
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong, please retry", "")
	}
}
