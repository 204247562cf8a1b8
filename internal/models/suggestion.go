package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Suggestion is a proposed speaker. VoteCount is maintained by a trigger on votes.
type Suggestion struct {
	bun.BaseModel `bun:"table:suggest"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	Email     string    `bun:"email,notnull" json:"email"`
	Speaker   string    `bun:"speaker,notnull" json:"speaker"`
	VoteCount int       `bun:"vote_count,notnull,default:0" json:"vote_count"`
	Reviewed  bool      `bun:"reviewed,notnull,default:false" json:"reviewed"`
	Approved  bool      `bun:"approved,notnull,default:false" json:"approved"`
	Duplicate bool      `bun:"duplicate,notnull,default:false" json:"duplicate"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

type Vote struct {
	bun.BaseModel `bun:"table:votes"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	SuggestionID int64     `bun:"suggestion_id,notnull,unique:votes_suggestion_email" json:"suggestion_id"`
	Email        string    `bun:"email,notnull,unique:votes_suggestion_email" json:"email"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}
