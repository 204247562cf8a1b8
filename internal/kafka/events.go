package kafka

import "time"

type ReferralAttributedEvent struct {
	EventID    string    `json:"event_id"`
	TicketID   string    `json:"ticket_id"`
	Code       string    `json:"code"`
	OccurredAt time.Time `json:"occurred_at"`
}

type SuggestionMergedEvent struct {
	SourceID         int64     `json:"source_id"`
	TargetID         int64     `json:"target_id"`
	TransferredVotes int       `json:"transferred_votes"`
	DiscardedVotes   int       `json:"discarded_votes"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// TicketIssuedEvent drives asynchronous referral attribution.
type TicketIssuedEvent struct {
	TicketID     string    `json:"ticket_id"`
	EventID      string    `json:"event_id"`
	Email        string    `json:"email"`
	ReferralCode string    `json:"referral_code,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
