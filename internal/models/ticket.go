package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketType string

const (
	TicketTypeVIP      TicketType = "VIP"
	TicketTypeStandard TicketType = "STANDARD"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID        string     `bun:"id,pk" json:"id"`
	EventID   string     `bun:"event_id,notnull" json:"event_id"`
	Email     string     `bun:"email,notnull" json:"email"`
	Type      TicketType `bun:"type,notnull" json:"type"`
	CreatedAt time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	Scanned   bool       `bun:"scanned,notnull,default:false" json:"scanned"`
	ScannedAt time.Time  `bun:"scanned_at,nullzero" json:"scanned_at,omitempty"`
	ScannedBy string     `bun:"scanned_by,nullzero" json:"scanned_by,omitempty"`

	// ReferralCode is the code typed in at purchase time, empty when none was used.
	ReferralCode string `bun:"referral_code,nullzero" json:"referral_code,omitempty"`
	// ReferralAttributed flips to true once the code has been counted for this ticket.
	ReferralAttributed bool `bun:"referral_attributed,notnull,default:false" json:"-"`
}
