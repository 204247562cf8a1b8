package suggestion_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/models"
	suggestions "ms-speakers/internal/suggestions/service"
	"ms-speakers/internal/utils"
)

type SuggestionService interface {
	List(ctx context.Context) ([]models.Suggestion, error)
	Submit(ctx context.Context, id auth.Identity, speaker string) (*models.Suggestion, error)
	Vote(ctx context.Context, id auth.Identity, suggestionID int64) error
	Unvote(ctx context.Context, id auth.Identity, suggestionID int64) error
	Review(ctx context.Context, suggestionID int64, approved bool) (*models.Suggestion, error)
	Duplicates(ctx context.Context) ([]suggestions.DuplicateCandidate, error)
	Merge(ctx context.Context, sourceID, targetID int64) ([]models.Suggestion, error)
}

type Handler struct {
	Service SuggestionService
	Logger  *logger.Logger
}

func NewHandler(service SuggestionService, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/suggestions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Submit)
		r.Post("/{id}/vote", h.Vote)
		r.Delete("/{id}/vote", h.Unvote)
	})
	r.Route("/admin/suggestions", func(r chi.Router) {
		r.Use(admin)
		r.Get("/duplicates", h.Duplicates)
		r.Put("/merge", h.Merge)
		r.Put("/{id}/review", h.Review)
	})
}

type submitRequest struct {
	Speaker string `json:"speaker"`
}

type reviewRequest struct {
	Approved *bool `json:"approved"`
}

type mergeRequest struct {
	SourceID int64 `json:"sourceId"`
	TargetID int64 `json:"targetId"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, false)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Suggestions", list))
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())

	var req submitRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	suggestion, err := h.Service.Submit(r.Context(), id, req.Speaker)
	if err != nil {
		h.writeServiceError(w, r, err, false)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Suggestion submitted", suggestion))
}

func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	suggestionID, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	if err := h.Service.Vote(r.Context(), id, suggestionID); err != nil {
		h.writeServiceError(w, r, err, false)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Vote recorded", nil))
}

func (h *Handler) Unvote(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	suggestionID, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	if err := h.Service.Unvote(r.Context(), id, suggestionID); err != nil {
		h.writeServiceError(w, r, err, false)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Vote removed", nil))
}

// Review expects {"approved": true|false}.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	suggestionID, err := pathID(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	var req reviewRequest
	if err := utils.DecodeJSON(r, &req); err != nil || req.Approved == nil {
		utils.WriteError(w, http.StatusBadRequest, "approved must be true or false", "")
		return
	}

	suggestion, err := h.Service.Review(r.Context(), suggestionID, *req.Approved)
	if err != nil {
		h.writeServiceError(w, r, err, true)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Suggestion reviewed", suggestion))
}

func (h *Handler) Duplicates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.Service.Duplicates(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, true)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Possible duplicates", candidates))
}

// Merge expects {"sourceId": n, "targetId": m} and answers with the refreshed list.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	list, err := h.Service.Merge(r.Context(), req.SourceID, req.TargetID)
	if err != nil {
		h.writeServiceError(w, r, err, true)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Suggestions merged", list))
}

var errBadPathID = errors.New("suggestion id must be a positive integer")

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadPathID
	}
	return id, nil
}

// writeServiceError maps service errors to status codes. Admin routes get the
// underlying error as detail; everyone else gets a generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, admin bool) {
	var precondition *suggestions.PreconditionError
	switch {
	case errors.As(err, &precondition):
		utils.WriteError(w, http.StatusBadRequest, precondition.Reason, "")
	case errors.Is(err, auth.ErrUnauthenticated):
		utils.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
	case errors.Is(err, suggestions.ErrInvalidID),
		errors.Is(err, suggestions.ErrEmptySpeaker),
		errors.Is(err, suggestions.ErrSpeakerTooLong):
		utils.WriteError(w, http.StatusBadRequest, err.Error(), "")
	case errors.Is(err, suggestions.ErrSuggestionNotFound), errors.Is(err, suggestions.ErrVoteNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, suggestions.ErrAlreadyVoted),
		errors.Is(err, suggestions.ErrSuggestionClosed),
		errors.Is(err, suggestions.ErrMergeInProgress):
		utils.WriteError(w, http.StatusConflict, err.Error(), "")
	default:
		h.Logger.Error("SUGGEST", fmt.Sprintf("%s %s failed: %v", r.Method, r.URL.Path, err))
		detail := ""
		if admin {
			detail = err.Error()
		}
		utils.WriteError(w, http.StatusInternalServerError, "Something went wrong, please retry", detail)
	}
}
