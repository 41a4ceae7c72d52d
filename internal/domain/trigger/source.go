// Package trigger describes the source records that feed the gamification
// engine: attendance check-ins, feedback submissions and networking
// connections. Each record carries its own idempotency marker.
package trigger

import (
	"context"
	"strings"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// KIND
// ══════════════════════════════════════════════════════════════════════════════

// Kind identifies the business action that produced a trigger.
type Kind string

const (
	KindCheckIn    Kind = "check_in"
	KindFeedback   Kind = "feedback"
	KindConnection Kind = "connection"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCheckIn, KindFeedback, KindConnection:
		return k, nil
	default:
		return "", shared.ErrUnknownTriggerKind
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}

// ══════════════════════════════════════════════════════════════════════════════
// IDEMPOTENCY MARKER
// ══════════════════════════════════════════════════════════════════════════════

// Marker is the idempotency state stored on every source record.
type Marker struct {
	GamificationProcessed bool
	PointsAwarded         int
	// ProcessedUserID is the resolved account the trigger was credited to.
	ProcessedUserID string
}

// IsProcessed reports whether the engine already handled the record.
func (m *Marker) IsProcessed() bool {
	return m.GamificationProcessed
}

// MarkProcessed sets the flag and records the awarded points.
func (m *Marker) MarkProcessed(userID string, points int) {
	m.GamificationProcessed = true
	m.PointsAwarded = points
	m.ProcessedUserID = userID
}

// Owner identifies the account a trigger should be credited to.
// UserID wins when both are set; otherwise Email is resolved.
type Owner struct {
	UserID string
	Email  string
}

// IsZero reports whether neither identifier is set.
func (o Owner) IsZero() bool {
	return o.UserID == "" && strings.TrimSpace(o.Email) == ""
}

// Source is implemented by every trigger record.
type Source interface {
	Kind() Kind
	SourceID() string
	Owner() Owner
	EventRef() string
	// OccurredAt is the business timestamp used for daily caps and windows.
	OccurredAt() time.Time
	IsProcessed() bool
	MarkProcessed(userID string, points int)
	Validate() error
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT
// ══════════════════════════════════════════════════════════════════════════════

// Event is the subset of the event catalog the engine needs.
type Event struct {
	ID      string
	Name    string
	Date    time.Time
	StartAt *time.Time
	Tags    []string
	IsVIP   bool
	// ConnectionPoints overrides the default per-connection award when > 0.
	ConnectionPoints int
}

// HasTag performs a case-insensitive tag lookup.
func (e Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists incoming source records before dispatch. Save methods
// insert the record when its ID is new and always return the stored copy, so
// a duplicate delivery observes the existing idempotency marker.
type Repository interface {
	SaveCheckIn(ctx context.Context, c *CheckIn) (*CheckIn, error)
	SaveFeedback(ctx context.Context, f *Feedback) (*Feedback, error)
	SaveConnection(ctx context.Context, c *Connection) (*Connection, error)
}

// EventCatalog looks up event attributes. It returns shared.ErrNotFound for
// unknown events.
type EventCatalog interface {
	GetEvent(ctx context.Context, eventID string) (*Event, error)
}

// AccountResolver maps a trigger owner to an account user id. It returns an
// error matching shared.ErrUserNotResolvable when no account exists.
type AccountResolver interface {
	ResolveUser(ctx context.Context, owner Owner) (string, error)
}
