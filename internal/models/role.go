package models

import "github.com/uptrace/bun"

const (
	RoleAdmin   = "admin"
	RoleScanner = "scanner"
)

type Role struct {
	bun.BaseModel `bun:"table:roles"`

	Email string `bun:"email,pk" json:"email"`
	Role  string `bun:"role,pk" json:"role"`
}
