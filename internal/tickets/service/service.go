package tickets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/kafka"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/metrics"
	"ms-speakers/internal/models"
	referral "ms-speakers/internal/referral/service"
	"ms-speakers/internal/tickets/qr"
)

const qrSize = 256

var (
	ErrInvalidEvent     = errors.New("a valid event_id is required")
	ErrCapacityExceeded = errors.New("this event is sold out")
	ErrAlreadyHasTicket = errors.New("you already have a ticket for this event")
	ErrEventNotFound    = errors.New("event not found")
	ErrPurchaseFailed   = errors.New("could not issue a ticket, please retry")
	ErrInvalidReferral  = errors.New("referral code is not valid for this event")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrEventLive        = errors.New("tickets cannot be cancelled once the event is live")
	ErrAlreadyScanned   = errors.New("ticket has already been scanned")
	ErrInvalidQR        = errors.New("qr code is not a valid ticket")
)

// Error codes raised by the create_ticket procedure.
const (
	codeCapacityExceeded = "TK001"
	codeAlreadyHasTicket = "TK002"
	codeEventNotFound    = "TK003"
)

type DBLayer interface {
	CreateTicket(ctx context.Context, eventID, email, referralCode string) (string, error)
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	TicketsByEmail(ctx context.Context, email string) ([]models.Ticket, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	DeleteTicket(ctx context.Context, id, email string) (bool, error)
	MarkScanned(ctx context.Context, id, scannedBy string, at time.Time) (bool, error)
}

type ReferralValidator interface {
	ValidateCode(ctx context.Context, id auth.Identity, eventID, code string) (referral.Validation, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

// CheckinNotifier receives every first-time scan.
type CheckinNotifier interface {
	EmitCheckin(ticket models.Ticket)
}

type TicketService struct {
	DB        DBLayer
	Referrals ReferralValidator
	QR        *qr.Generator
	Publisher EventPublisher
	Topic     string
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
	// Checkins may be nil.
	Checkins CheckinNotifier
	now      func() time.Time
}

func NewTicketService(db DBLayer, referrals ReferralValidator, gen *qr.Generator, publisher EventPublisher, topic string, m *metrics.Metrics, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:        db,
		Referrals: referrals,
		QR:        gen,
		Publisher: publisher,
		Topic:     topic,
		Metrics:   m,
		Logger:    log,
		now:       time.Now,
	}
}

// mapStoreError turns create_ticket error codes into service errors. Anything
// else becomes ErrPurchaseFailed wrapping the cause.
func mapStoreError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case codeCapacityExceeded:
			return ErrCapacityExceeded
		case codeAlreadyHasTicket:
			return ErrAlreadyHasTicket
		case codeEventNotFound:
			return ErrEventNotFound
		}
	}
	return fmt.Errorf("%w: %v", ErrPurchaseFailed, err)
}

func purchaseOutcome(err error) string {
	switch {
	case err == nil:
		return "issued"
	case errors.Is(err, ErrCapacityExceeded):
		return "sold_out"
	case errors.Is(err, ErrAlreadyHasTicket):
		return "duplicate"
	case errors.Is(err, ErrEventNotFound):
		return "no_event"
	default:
		return "error"
	}
}

// Purchase issues a ticket for the caller. A typed-in referral code must be
// valid for the event. The caller's own code is kept on the ticket so that
// attribution later reports it as a self-referral.
func (s *TicketService) Purchase(ctx context.Context, id auth.Identity, eventID, referralCode string) (*models.Ticket, error) {
	if !id.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	if _, err := uuid.Parse(eventID); err != nil {
		return nil, ErrInvalidEvent
	}

	code := referral.NormalizeCode(referralCode)
	if code != "" {
		validation, err := s.Referrals.ValidateCode(ctx, id, eventID, code)
		if err != nil {
			return nil, fmt.Errorf("validate referral code: %w", err)
		}
		if !validation.Valid && validation.Reason != referral.ReasonSelfReferral {
			return nil, ErrInvalidReferral
		}
	}

	ticketID, err := s.DB.CreateTicket(ctx, eventID, id.Email, code)
	if err != nil {
		err = mapStoreError(err)
		s.Metrics.ObservePurchase(purchaseOutcome(err))
		return nil, err
	}
	s.Metrics.ObservePurchase(purchaseOutcome(nil))
	s.Logger.LogTicket("ISSUED", ticketID, fmt.Sprintf("event=%s code=%q", eventID, code))

	ticket, err := s.DB.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("load issued ticket: %w", err)
	}

	event := kafka.TicketIssuedEvent{
		TicketID:     ticket.ID,
		EventID:      ticket.EventID,
		Email:        ticket.Email,
		ReferralCode: ticket.ReferralCode,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.Publisher.PublishEvent(ctx, s.Topic, ticket.EventID, event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish ticket %s: %v", ticket.ID, err))
	}
	return ticket, nil
}

// Mine lists the caller's tickets, newest first.
func (s *TicketService) Mine(ctx context.Context, id auth.Identity) ([]models.Ticket, error) {
	if !id.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	tickets, err := s.DB.TicketsByEmail(ctx, id.Email)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// holderTicket loads a ticket and hides it from anyone but its holder.
func (s *TicketService) holderTicket(ctx context.Context, id auth.Identity, ticketID string) (*models.Ticket, error) {
	if !id.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	ticket, err := s.DB.GetTicket(ctx, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	if ticket.Email != id.Email {
		return nil, ErrTicketNotFound
	}
	return ticket, nil
}

// Cancel deletes the caller's ticket while its event is not live. Referral
// counts already recorded for the ticket are kept.
func (s *TicketService) Cancel(ctx context.Context, id auth.Identity, ticketID string) error {
	ticket, err := s.holderTicket(ctx, id, ticketID)
	if err != nil {
		return err
	}

	event, err := s.DB.GetEvent(ctx, ticket.EventID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load event: %w", err)
	}
	if event != nil && event.IsLive {
		return ErrEventLive
	}

	deleted, err := s.DB.DeleteTicket(ctx, ticket.ID, id.Email)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if !deleted {
		return ErrTicketNotFound
	}
	s.Logger.LogTicket("CANCELLED", ticket.ID, "event="+ticket.EventID)
	return nil
}

// Scan checks a ticket in at the door. Role checks happen in the router.
func (s *TicketService) Scan(ctx context.Context, scanner auth.Identity, ticketID string) (*models.Ticket, error) {
	if !scanner.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}

	ok, err := s.DB.MarkScanned(ctx, ticketID, scanner.Email, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("mark scanned: %w", err)
	}

	ticket, err := s.DB.GetTicket(ctx, ticketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	if !ok {
		return ticket, ErrAlreadyScanned
	}
	s.Logger.LogTicket("SCANNED", ticket.ID, "by "+scanner.Email)
	if s.Checkins != nil {
		s.Checkins.EmitCheckin(*ticket)
	}
	return ticket, nil
}

// ScanPayload opens a sealed QR payload and scans the ticket it names.
func (s *TicketService) ScanPayload(ctx context.Context, scanner auth.Identity, sealed string) (*models.Ticket, error) {
	if !scanner.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	payload, err := s.QR.Open(sealed)
	if err != nil {
		s.Logger.LogSecurity("QR_REJECTED", fmt.Sprintf("scanner=%s: %v", scanner.Email, err))
		return nil, ErrInvalidQR
	}

	ticket, err := s.DB.GetTicket(ctx, payload.TicketID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load ticket: %w", err)
	}
	if ticket.EventID != payload.EventID || ticket.Email != payload.Email {
		s.Logger.LogSecurity("QR_MISMATCH", fmt.Sprintf("ticket=%s scanner=%s", ticket.ID, scanner.Email))
		return nil, ErrInvalidQR
	}
	return s.Scan(ctx, scanner, ticket.ID)
}

// QRCode renders the caller's ticket as a PNG QR code.
func (s *TicketService) QRCode(ctx context.Context, id auth.Identity, ticketID string) ([]byte, error) {
	ticket, err := s.holderTicket(ctx, id, ticketID)
	if err != nil {
		return nil, err
	}
	png, err := s.QR.PNG(qr.Payload{TicketID: ticket.ID, EventID: ticket.EventID, Email: ticket.Email}, qrSize)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}
