package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Email
// ═══════════════════════════════════════════════════════════════════════════

// Email is a normalized account email used to resolve trigger owners.
type Email string

// NewEmail trims and lower-cases the address. It returns ErrInvalidInput
// when the value cannot be an email at all.
func NewEmail(raw string) (Email, error) {
	e := Email(strings.ToLower(strings.TrimSpace(raw)))
	if !e.IsValid() {
		return "", NewDomainError("account", "Validate", ErrInvalidInput, "invalid email")
	}
	return e, nil
}

// IsValid performs a minimal local@domain check.
func (e Email) IsValid() bool {
	s := string(e)
	at := strings.LastIndexByte(s, '@')
	return at > 0 && at < len(s)-1 && !strings.ContainsAny(s, " \t\n")
}

// String implements fmt.Stringer.
func (e Email) String() string {
	return string(e)
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank
// ═══════════════════════════════════════════════════════════════════════════

// Rank is a 1-based leaderboard position. Zero means unranked.
type Rank int

// IsTop reports whether the rank falls within the first n positions.
func (r Rank) IsTop(n int) bool {
	return r > 0 && int(r) <= n
}

// Medal returns a podium icon for ranks 1 to 3.
func (r Rank) Medal() string {
	switch r {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return ""
	}
}
