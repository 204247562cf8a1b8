package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-speakers/internal/auth"
	"ms-speakers/internal/kafka"
	"ms-speakers/internal/logger"
	"ms-speakers/internal/metrics"
	"ms-speakers/internal/models"
)

type Outcome string

const (
	OutcomeAttributed        Outcome = "attributed"
	OutcomeAlreadyAttributed Outcome = "already_attributed"
	OutcomeSelfReferral      Outcome = "self_referral"
	OutcomeNoReferral        Outcome = "no_referral"
)

type Reason string

const (
	ReasonSelfReferral Reason = "self_referral"
	ReasonInvalid      Reason = "invalid"
)

var (
	ErrInvalidEvent   = errors.New("a valid event_id is required")
	ErrMissingCode    = errors.New("referral_code is required")
	ErrTicketNotFound = errors.New("no ticket found for this event")
)

type Result struct {
	Outcome  Outcome `json:"outcome"`
	TicketID string  `json:"ticket_id,omitempty"`
	Code     string  `json:"code,omitempty"`
}

type Validation struct {
	Valid  bool   `json:"valid"`
	Reason Reason `json:"reason,omitempty"`
}

type DBLayer interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	LatestTicket(ctx context.Context, eventID, email string) (*models.Ticket, error)
	MarkTicketAttributed(ctx context.Context, ticketID string) (bool, error)
	IncrementReferral(ctx context.Context, eventID, code string) error
	EnsureReferral(ctx context.Context, eventID, code string) (*models.ReferralRecord, error)
	ReferralExists(ctx context.Context, eventID, code string) (bool, error)
	ListReferrals(ctx context.Context, eventID string) ([]models.ReferralRecord, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event interface{}) error
}

type Service struct {
	DB        DBLayer
	Publisher EventPublisher
	Topic     string
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

func NewService(db DBLayer, publisher EventPublisher, topic string, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{DB: db, Publisher: publisher, Topic: topic, Metrics: m, Logger: log}
}

func ValidateEventID(eventID string) error {
	if _, err := uuid.Parse(eventID); err != nil {
		return ErrInvalidEvent
	}
	return nil
}

// RecordAttribution counts the referral code stored on the caller's most recent
// ticket for eventID. It increments at most once per ticket: the ticket's
// attributed flag and the counter change in one transaction.
func (s *Service) RecordAttribution(ctx context.Context, id auth.Identity, eventID string) (Result, error) {
	if !id.Authenticated() {
		return Result{}, auth.ErrUnauthenticated
	}
	if err := ValidateEventID(eventID); err != nil {
		return Result{}, err
	}

	var result Result
	err := s.DB.InTx(ctx, func(ctx context.Context) error {
		ticket, err := s.DB.LatestTicket(ctx, eventID, id.Email)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrTicketNotFound
		}
		if err != nil {
			return fmt.Errorf("load ticket: %w", err)
		}

		result = Result{TicketID: ticket.ID, Code: ticket.ReferralCode}
		switch {
		case ticket.ReferralCode == "":
			result.Outcome = OutcomeNoReferral
			return nil
		case IsOwnCode(id.Email, ticket.ReferralCode):
			result.Outcome = OutcomeSelfReferral
			return nil
		}

		marked, err := s.DB.MarkTicketAttributed(ctx, ticket.ID)
		if err != nil {
			return fmt.Errorf("mark ticket attributed: %w", err)
		}
		if !marked {
			result.Outcome = OutcomeAlreadyAttributed
			return nil
		}

		if err := s.DB.IncrementReferral(ctx, eventID, ticket.ReferralCode); err != nil {
			return fmt.Errorf("increment referral: %w", err)
		}
		result.Outcome = OutcomeAttributed
		return nil
	})
	if err != nil {
		s.Metrics.ObserveAttribution("error")
		return Result{}, err
	}

	s.Metrics.ObserveAttribution(string(result.Outcome))
	s.Logger.LogReferral(string(result.Outcome), eventID, fmt.Sprintf("ticket=%s code=%q", result.TicketID, result.Code))

	if result.Outcome == OutcomeAttributed {
		event := kafka.ReferralAttributedEvent{
			EventID:    eventID,
			TicketID:   result.TicketID,
			Code:       result.Code,
			OccurredAt: time.Now().UTC(),
		}
		if err := s.Publisher.PublishEvent(ctx, s.Topic, eventID, event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish referral attribution for ticket %s: %v", result.TicketID, err))
		}
	}
	return result, nil
}

// ValidateCode checks a typed-in code before purchase. It never writes.
func (s *Service) ValidateCode(ctx context.Context, id auth.Identity, eventID, code string) (Validation, error) {
	if !id.Authenticated() {
		return Validation{}, auth.ErrUnauthenticated
	}
	if err := ValidateEventID(eventID); err != nil {
		return Validation{}, err
	}
	code = NormalizeCode(code)
	if code == "" {
		return Validation{}, ErrMissingCode
	}

	if IsOwnCode(id.Email, code) {
		return Validation{Valid: false, Reason: ReasonSelfReferral}, nil
	}

	exists, err := s.DB.ReferralExists(ctx, eventID, code)
	if err != nil {
		return Validation{}, fmt.Errorf("look up referral code: %w", err)
	}
	if !exists {
		return Validation{Valid: false, Reason: ReasonInvalid}, nil
	}
	return Validation{Valid: true}, nil
}

// Share hands a ticket holder their own code for eventID, creating the
// zero-count record that makes the code pass ValidateCode.
func (s *Service) Share(ctx context.Context, id auth.Identity, eventID string) (*models.ReferralRecord, error) {
	if !id.Authenticated() {
		return nil, auth.ErrUnauthenticated
	}
	if err := ValidateEventID(eventID); err != nil {
		return nil, err
	}
	code, _ := DeriveCode(id.Email)

	if _, err := s.DB.LatestTicket(ctx, eventID, id.Email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("load ticket: %w", err)
	}

	record, err := s.DB.EnsureReferral(ctx, eventID, code)
	if err != nil {
		return nil, fmt.Errorf("ensure referral code: %w", err)
	}
	s.Logger.LogReferral("SHARE", eventID, fmt.Sprintf("code=%q count=%d", record.Code, record.Count))
	return record, nil
}

// Leaderboard lists the event's referral counters, highest first.
func (s *Service) Leaderboard(ctx context.Context, eventID string) ([]models.ReferralRecord, error) {
	if err := ValidateEventID(eventID); err != nil {
		return nil, err
	}
	records, err := s.DB.ListReferrals(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list referrals for event %s: %w", eventID, err)
	}
	return records, nil
}
