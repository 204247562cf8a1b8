package auth

import (
	"context"
	"errors"
	"strings"
)

var ErrUnauthenticated = errors.New("authentication required")

// Identity is the verified caller. It is passed explicitly into every service
// operation instead of being read from request state.
type Identity struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
}

func (i Identity) Authenticated() bool {
	return i.Email != ""
}

// NewIdentity normalizes the email so comparisons against stored rows are exact.
func NewIdentity(subject, email string) Identity {
	return Identity{Subject: subject, Email: strings.ToLower(strings.TrimSpace(email))}
}

type contextKey string

const identityKey contextKey = "identity"

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity the middleware stored, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.Authenticated()
}
