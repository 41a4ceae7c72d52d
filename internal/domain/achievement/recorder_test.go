package achievement

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
)

func testRecorder() *Recorder {
	n := 0
	return &Recorder{newID: func() string {
		n++
		return fmt.Sprintf("ach-%d", n)
	}}
}

func kinds(list []Achievement) []Kind {
	out := make([]Kind, 0, len(list))
	for _, a := range list {
		out = append(out, a.Kind)
	}
	return out
}

func TestDetect_FirstCheckIn(t *testing.T) {
	at := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	before := profile.Empty("u1")
	after := before
	after.CurrentStreak, after.LongestStreak = 1, 1
	after.TotalEventsAttended = 1
	after.TotalPoints = 15

	got := testRecorder().Detect(before, after, nil, "e1", at)

	require.Len(t, got, 1)
	assert.Equal(t, KindAttendance, got[0].Kind)
	assert.Equal(t, "First Event", got[0].Title)
	assert.Equal(t, "e1", got[0].EventID)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, at, got[0].AchievedAt)
	assert.Equal(t, "ach-1", got[0].ID)
}

func TestDetect_ExactMilestonesOnly(t *testing.T) {
	before := profile.Empty("u1")
	before.CurrentStreak = 3
	before.TotalEventsAttended = 5

	// Counters unchanged: same-day duplicate must not re-fire.
	assert.Empty(t, testRecorder().Detect(before, before, nil, "", time.Now()))

	after := before
	after.CurrentStreak = 4
	after.TotalEventsAttended = 6
	assert.Empty(t, testRecorder().Detect(before, after, nil, "", time.Now()))

	after.CurrentStreak = 7
	after.TotalEventsAttended = 10
	got := testRecorder().Detect(before, after, nil, "", time.Now())
	assert.Equal(t, []Kind{KindStreak, KindAttendance}, kinds(got))
	assert.Equal(t, 7, got[0].Data["streak"])
}

func TestDetect_LevelCrossingsAndBadges(t *testing.T) {
	before := profile.Empty("u1")
	before.TotalPoints = 190
	after := before
	after.TotalPoints = 520

	badges := []badge.Definition{
		{ID: "b1", Name: "Regular", Type: badge.TypeAttendance, PointsReward: 25},
		{ID: "b2", Name: "Night Owl", Type: badge.TypeSpecial, Icon: "🦉"},
	}
	got := testRecorder().Detect(before, after, badges, "e9", time.Now())

	assert.Equal(t, []Kind{KindLevel, KindLevel, KindBadge, KindBadge}, kinds(got))
	assert.Equal(t, "Reached Silver", got[0].Title)
	assert.Equal(t, "Reached Gold", got[1].Title)
	assert.Equal(t, "Badge Unlocked: Regular", got[2].Title)
	assert.Equal(t, "🏅", got[2].Icon)
	assert.Equal(t, "🦉", got[3].Icon)
	assert.Equal(t, "b1", got[2].Data["badge_id"])
}
