package referral

import "strings"

// DeriveCode returns the referral code owned by email: everything before the
// first "@", or the whole string when there is none. An empty email has no code.
func DeriveCode(email string) (string, bool) {
	if email == "" {
		return "", false
	}
	local, _, _ := strings.Cut(email, "@")
	return local, true
}

// IsOwnCode reports whether code is the one derived from email. Case is
// ignored so "Bob" typed at checkout still counts as bob's own code.
func IsOwnCode(email, code string) bool {
	own, ok := DeriveCode(email)
	return ok && strings.EqualFold(own, strings.TrimSpace(code))
}

// NormalizeCode trims and lower-cases a typed-in code. Derived codes come from
// lower-cased emails, so normalized codes compare exactly against stored ones.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
