package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"ms-speakers/internal/models"
)

var ErrEventNotFound = errors.New("event not found")

// Service handles admin analytics reads
type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db}
}

// EventAnalytics represents aggregated door and referral data for an event
type EventAnalytics struct {
	EventID           string                  `json:"event_id"`
	Name              string                  `json:"name"`
	Capacity          int                     `json:"capacity"`
	TicketsIssued     int                     `json:"tickets_issued"`
	TicketsScanned    int                     `json:"tickets_scanned"`
	ReferredTickets   int                     `json:"referred_tickets"`
	AttributedTickets int                     `json:"attributed_tickets"`
	DailyIssued       []DailyIssuedMetrics    `json:"daily_issued"`
	ByType            []TicketTypeMetrics     `json:"by_type"`
	TopReferrers      []models.ReferralRecord `json:"top_referrers"`
}

// DailyIssuedMetrics contains issuance for a single day
type DailyIssuedMetrics struct {
	Date          string `json:"date"`
	TicketsIssued int    `json:"tickets_issued"`
}

type TicketTypeMetrics struct {
	Type          models.TicketType `json:"type"`
	TicketsIssued int               `json:"tickets_issued"`
}

// SuggestionSummary is the review queue at a glance.
type SuggestionSummary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Approved   int `json:"approved"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
	Votes      int `json:"votes"`
}

const topReferrers = 10

// GetEventAnalytics returns analytics for one event
func (s *Service) GetEventAnalytics(ctx context.Context, eventID string) (*EventAnalytics, error) {
	var event models.Event
	err := s.db.NewSelect().Model(&event).Where("id = ?", eventID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}

	result := &EventAnalytics{
		EventID:  event.ID,
		Name:     event.Name,
		Capacity: event.Capacity,
	}

	var totals []struct {
		Issued     int `bun:"issued"`
		Scanned    int `bun:"scanned"`
		Referred   int `bun:"referred"`
		Attributed int `bun:"attributed"`
	}
	err = s.db.NewRaw(`
		SELECT
			COUNT(*) AS issued,
			COALESCE(SUM(CASE WHEN scanned THEN 1 ELSE 0 END), 0) AS scanned,
			COALESCE(SUM(CASE WHEN referral_code IS NOT NULL THEN 1 ELSE 0 END), 0) AS referred,
			COALESCE(SUM(CASE WHEN referral_attributed THEN 1 ELSE 0 END), 0) AS attributed
		FROM
			tickets
		WHERE
			event_id = ?`, eventID).Scan(ctx, &totals)
	if err != nil {
		return nil, fmt.Errorf("ticket totals: %w", err)
	}
	if len(totals) > 0 {
		result.TicketsIssued = totals[0].Issued
		result.TicketsScanned = totals[0].Scanned
		result.ReferredTickets = totals[0].Referred
		result.AttributedTickets = totals[0].Attributed
	}

	if result.DailyIssued, err = s.dailyIssued(ctx, eventID); err != nil {
		return nil, err
	}

	err = s.db.NewRaw(`
		SELECT
			type,
			COUNT(*) AS tickets_issued
		FROM
			tickets
		WHERE
			event_id = ?
		GROUP BY
			type
		ORDER BY
			type`, eventID).Scan(ctx, &result.ByType)
	if err != nil {
		return nil, fmt.Errorf("tickets by type: %w", err)
	}

	err = s.db.NewSelect().
		Model(&result.TopReferrers).
		Where("event_id = ?", eventID).
		Where("count > 0").
		OrderExpr("count DESC, code ASC").
		Limit(topReferrers).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("top referrers: %w", err)
	}

	if result.ByType == nil {
		result.ByType = []TicketTypeMetrics{}
	}
	if result.TopReferrers == nil {
		result.TopReferrers = []models.ReferralRecord{}
	}
	return result, nil
}

func (s *Service) dailyIssued(ctx context.Context, eventID string) ([]DailyIssuedMetrics, error) {
	var rows []struct {
		Day    time.Time `bun:"day"`
		Issued int       `bun:"issued"`
	}
	err := s.db.NewRaw(`
		SELECT
			DATE(created_at) AS day,
			COUNT(*) AS issued
		FROM
			tickets
		WHERE
			event_id = ?
		GROUP BY
			DATE(created_at)
		ORDER BY
			day`, eventID).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("daily issuance: %w", err)
	}

	daily := make([]DailyIssuedMetrics, 0, len(rows))
	for _, row := range rows {
		daily = append(daily, DailyIssuedMetrics{
			Date:          row.Day.Format("2006-01-02"),
			TicketsIssued: row.Issued,
		})
	}
	return daily, nil
}

// GetBatchEventAnalytics returns analytics for each known event id. Unknown
// ids are left out of the result.
func (s *Service) GetBatchEventAnalytics(ctx context.Context, eventIDs []string) ([]EventAnalytics, error) {
	out := make([]EventAnalytics, 0, len(eventIDs))
	seen := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		a, err := s.GetEventAnalytics(ctx, id)
		if errors.Is(err, ErrEventNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

// GetSuggestionSummary counts suggestions by review state.
func (s *Service) GetSuggestionSummary(ctx context.Context) (*SuggestionSummary, error) {
	var rows []SuggestionSummary
	err := s.db.NewRaw(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN NOT reviewed THEN 1 ELSE 0 END), 0) AS pending,
			COALESCE(SUM(CASE WHEN approved THEN 1 ELSE 0 END), 0) AS approved,
			COALESCE(SUM(CASE WHEN reviewed AND NOT approved AND NOT duplicate THEN 1 ELSE 0 END), 0) AS rejected,
			COALESCE(SUM(CASE WHEN duplicate THEN 1 ELSE 0 END), 0) AS duplicates,
			COALESCE(SUM(vote_count), 0) AS votes
		FROM
			suggest`).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("suggestion summary: %w", err)
	}
	if len(rows) == 0 {
		return &SuggestionSummary{}, nil
	}
	return &rows[0], nil
}
