package authz

import "strings"

// Policy decides whether an email holds moderator privilege.
// Implementations must fail closed: unknown or empty input is never
// elevated, and IsElevated must not panic.
type Policy interface {
	IsElevated(email string) bool
}

// DefaultAdminEmails is the registry used when no allow-list is configured.
var DefaultAdminEmails = []string{
	"admin@qirtaas.com",
}

// AllowList grants elevation to a fixed set of emails, matched
// case-insensitively.
type AllowList struct {
	emails map[string]struct{}
}

// NewAllowList builds a policy from registry entries. Blank entries are
// ignored; a nil or empty registry elevates nobody.
func NewAllowList(emails []string) *AllowList {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		email = normalize(email)
		if email == "" {
			continue
		}
		set[email] = struct{}{}
	}
	return &AllowList{emails: set}
}

// IsElevated reports registry membership for email.
func (a *AllowList) IsElevated(email string) bool {
	if a == nil || len(a.emails) == 0 {
		return false
	}
	email = normalize(email)
	if email == "" {
		return false
	}
	_, ok := a.emails[email]
	return ok
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
