package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Check_In ")
	require.NoError(t, err)
	assert.Equal(t, KindCheckIn, k)

	_, err = ParseKind("rsvp")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCheckInValidate(t *testing.T) {
	now := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	c := &CheckIn{ID: "c1", Email: "a@example.com", EventID: "e1", EventDate: now, CheckInAt: now}
	assert.NoError(t, c.Validate())

	c.Email = ""
	assert.ErrorIs(t, c.Validate(), shared.ErrInvalidInput)
}

func TestFeedbackValidate(t *testing.T) {
	now := time.Now()
	nps := 11
	f := &Feedback{ID: "f1", UserID: "u1", EventID: "e1", OverallRating: 5, SubmittedAt: now}
	assert.NoError(t, f.Validate())

	f.NPSScore = &nps
	assert.Error(t, f.Validate())

	f.NPSScore = nil
	f.OverallRating = 0
	assert.Error(t, f.Validate())
}

func TestConnectionValidate(t *testing.T) {
	c := &Connection{ID: "x", FromUserID: "u1", ToUserID: "u1", EventID: "e1", CreatedAt: time.Now()}
	assert.Error(t, c.Validate())

	c.ToUserID = "u2"
	assert.NoError(t, c.Validate())
	assert.Equal(t, Owner{UserID: "u1"}, c.Owner())
}

func TestMarker(t *testing.T) {
	var s Source = &Feedback{ID: "f1"}
	assert.False(t, s.IsProcessed())

	s.MarkProcessed("u1", 23)
	assert.True(t, s.IsProcessed())
	assert.Equal(t, 23, s.(*Feedback).PointsAwarded)
	assert.Equal(t, "u1", s.(*Feedback).ProcessedUserID)
}

func TestEventHasTag(t *testing.T) {
	e := Event{Tags: []string{"VIP", "Workshop"}}
	assert.True(t, e.HasTag("vip"))
	assert.False(t, e.HasTag("gala"))
}
