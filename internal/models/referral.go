package models

import "github.com/uptrace/bun"

// ReferralRecord counts the tickets attributed to one referral code for one event.
type ReferralRecord struct {
	bun.BaseModel `bun:"table:referrals"`

	ID      int64  `bun:"id,pk,autoincrement" json:"id"`
	EventID string `bun:"event_id,notnull,unique:referrals_event_code" json:"event_id"`
	Code    string `bun:"code,notnull,unique:referrals_event_code" json:"code"`
	Count   int    `bun:"count,notnull,default:0" json:"count"`
}
