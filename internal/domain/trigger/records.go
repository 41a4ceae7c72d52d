package trigger

import (
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

func invalid(kind Kind, msg string) error {
	return shared.NewDomainError("trigger", "Validate", shared.ErrInvalidInput, string(kind)+": "+msg)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK-IN
// ══════════════════════════════════════════════════════════════════════════════

// CheckIn is an attendance record produced by the ticket scanner.
type CheckIn struct {
	Marker

	ID           string
	UserID       string
	Email        string
	EventID      string
	EventDate    time.Time
	EventStartAt *time.Time
	CheckInAt    time.Time
}

func (c *CheckIn) Kind() Kind            { return KindCheckIn }
func (c *CheckIn) SourceID() string      { return c.ID }
func (c *CheckIn) Owner() Owner          { return Owner{UserID: c.UserID, Email: c.Email} }
func (c *CheckIn) EventRef() string      { return c.EventID }
func (c *CheckIn) OccurredAt() time.Time { return c.CheckInAt }

// Validate checks required fields.
func (c *CheckIn) Validate() error {
	switch {
	case c.ID == "":
		return invalid(KindCheckIn, "id is required")
	case c.Owner().IsZero():
		return invalid(KindCheckIn, "user_id or email is required")
	case c.EventID == "":
		return invalid(KindCheckIn, "event_id is required")
	case c.EventDate.IsZero():
		return invalid(KindCheckIn, "event_date is required")
	case c.CheckInAt.IsZero():
		return invalid(KindCheckIn, "check_in_time is required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FEEDBACK
// ══════════════════════════════════════════════════════════════════════════════

// Feedback is a post-event survey submission.
type Feedback struct {
	Marker

	ID             string
	UserID         string
	Email          string
	EventID        string
	OverallRating  int
	NPSScore       *int
	WouldRecommend *bool
	FreeText       []string
	SubmittedAt    time.Time
}

func (f *Feedback) Kind() Kind            { return KindFeedback }
func (f *Feedback) SourceID() string      { return f.ID }
func (f *Feedback) Owner() Owner          { return Owner{UserID: f.UserID, Email: f.Email} }
func (f *Feedback) EventRef() string      { return f.EventID }
func (f *Feedback) OccurredAt() time.Time { return f.SubmittedAt }

// Validate checks required fields and score ranges.
func (f *Feedback) Validate() error {
	switch {
	case f.ID == "":
		return invalid(KindFeedback, "id is required")
	case f.Owner().IsZero():
		return invalid(KindFeedback, "user_id or email is required")
	case f.EventID == "":
		return invalid(KindFeedback, "event_id is required")
	case f.OverallRating < 1 || f.OverallRating > 5:
		return invalid(KindFeedback, "overall_rating must be between 1 and 5")
	case f.NPSScore != nil && (*f.NPSScore < 0 || *f.NPSScore > 10):
		return invalid(KindFeedback, "nps_score must be between 0 and 10")
	case f.SubmittedAt.IsZero():
		return invalid(KindFeedback, "submitted_at is required")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// Connection is one directed networking scan. The reverse direction is a
// separate record.
type Connection struct {
	Marker

	ID         string
	FromUserID string
	FromEmail  string
	ToUserID   string
	EventID    string
	CreatedAt  time.Time
}

func (c *Connection) Kind() Kind            { return KindConnection }
func (c *Connection) SourceID() string      { return c.ID }
func (c *Connection) Owner() Owner          { return Owner{UserID: c.FromUserID, Email: c.FromEmail} }
func (c *Connection) EventRef() string      { return c.EventID }
func (c *Connection) OccurredAt() time.Time { return c.CreatedAt }

// Validate checks required fields and rejects self connections.
func (c *Connection) Validate() error {
	switch {
	case c.ID == "":
		return invalid(KindConnection, "id is required")
	case c.Owner().IsZero():
		return invalid(KindConnection, "from_user_id or from_email is required")
	case c.ToUserID == "":
		return invalid(KindConnection, "to_user_id is required")
	case c.FromUserID != "" && c.FromUserID == c.ToUserID:
		return invalid(KindConnection, "cannot connect to self")
	case c.CreatedAt.IsZero():
		return invalid(KindConnection, "created_at is required")
	}
	return nil
}
