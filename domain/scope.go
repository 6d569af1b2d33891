package domain

import "strings"

// Scope is a named permission a client may request.
type Scope string

const (
	// ScopeProfile grants access to basic profile data (name, avatar).
	ScopeProfile Scope = "profile"
	// ScopeEmail grants access to the user's email address.
	ScopeEmail Scope = "email"
	// ScopeOrgRead grants read-only access to organization data.
	ScopeOrgRead Scope = "org:read"
	// ScopeFull grants full access to the user's account and data.
	ScopeFull Scope = "full"
)

// AllScopes lists every scope this server recognizes, in display order.
func AllScopes() []Scope {
	return []Scope{ScopeProfile, ScopeEmail, ScopeOrgRead, ScopeFull}
}

// ParseScope returns the known scope for s, or false for anything else.
func ParseScope(s string) (Scope, bool) {
	switch s {
	case "profile":
		return ScopeProfile, true
	case "email":
		return ScopeEmail, true
	case "org:read":
		return ScopeOrgRead, true
	case "full":
		return ScopeFull, true
	default:
		return "", false
	}
}

// Description returns the human-readable consent-page text for the scope.
func (s Scope) Description() string {
	switch s {
	case ScopeProfile:
		return "Access your basic profile information (name, avatar)"
	case ScopeEmail:
		return "Access your email address"
	case ScopeOrgRead:
		return "Read-only access to your organization data"
	case ScopeFull:
		return "Full access to your account and data"
	default:
		return ""
	}
}

func (s Scope) String() string { return string(s) }

// DefaultScopes is what an empty scope request resolves to.
func DefaultScopes() []string {
	return []string{ScopeProfile.String()}
}

// SplitScopes parses a space-delimited scope parameter into its entries,
// dropping empty segments. An empty or all-whitespace input yields nil.
func SplitScopes(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// JoinScopes renders scopes as the space-delimited wire form.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// ValidateScopes reports the first scope not present in the recognized
// registry, if any.
func ValidateScopes(scopes []string) (string, bool) {
	for _, s := range scopes {
		if _, ok := ParseScope(s); !ok {
			return s, false
		}
	}
	return "", true
}

// UnionScopes merges two scope lists, preserving first-seen order and
// dropping duplicates. Used when accumulating a standing grant.
func UnionScopes(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
