package ticket_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ms-speakers/internal/logger"
	"ms-speakers/internal/models"
)

type CheckinSubscriber interface {
	Subscribe(ctx context.Context, eventID string) <-chan models.Ticket
}

// StreamHandler serves the live door feed as Server-Sent Events.
type StreamHandler struct {
	Logger   *logger.Logger
	Checkins CheckinSubscriber
}

func NewStreamHandler(checkins CheckinSubscriber, log *logger.Logger) *StreamHandler {
	return &StreamHandler{Logger: log, Checkins: checkins}
}

// RegisterRoutes mounts the feed. It must sit outside any request timeout.
func (h *StreamHandler) RegisterRoutes(r chi.Router, scanner func(http.Handler) http.Handler) {
	r.With(scanner).Get("/events/{eventId}/checkins", h.HandleEventCheckins)
}

// HandleEventCheckins streams every first-time scan for an event until the client goes away.
func (h *StreamHandler) HandleEventCheckins(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if _, err := uuid.Parse(eventID); err != nil {
		http.Error(w, "Invalid event ID", http.StatusBadRequest)
		return
	}

	// The server write timeout would otherwise cut the stream.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	setupSSEHeaders(w)
	ctx := r.Context()
	feed := h.Checkins.Subscribe(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"eventID\":\"%s\"}\n\n", eventID)
	if err := rc.Flush(); err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Streaming unsupported: %v", err))
		return
	}
	h.Logger.Info("SSE", fmt.Sprintf("Door client connected for event: %s", eventID))

	for {
		select {
		case ticket, ok := <-feed:
			if !ok {
				return
			}
			data, err := json.Marshal(ticket)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize checkin: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: checkin\ndata: %s\n\n", data)
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Door client disconnected for event: %s", eventID))
			return
		}
	}
}

func setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
