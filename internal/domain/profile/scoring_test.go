package profile

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestMinutesEarly(t *testing.T) {
	start := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, 30, MinutesEarly(&start, start.Add(-30*time.Minute)))
	assert.Equal(t, 14, MinutesEarly(&start, start.Add(-14*time.Minute-59*time.Second)))
	assert.Equal(t, 0, MinutesEarly(&start, start.Add(10*time.Minute)))
	assert.Equal(t, 0, MinutesEarly(nil, start))
}

func TestCheckInPoints(t *testing.T) {
	r := DefaultScoringRules()

	tests := []struct {
		name         string
		minutesEarly int
		streak       int
		want         int
	}{
		{"on time, first day", 0, 1, 10},
		{"30 minutes early", 30, 1, 15},
		{"15 minutes early", 15, 2, 13},
		{"14 minutes early", 14, 2, 10},
		{"streak of three", 0, 3, 15},
		{"streak of seven and early", 45, 7, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.CheckInPoints(tt.minutesEarly, tt.streak).Total())
		})
	}
}

func TestFeedbackPoints(t *testing.T) {
	r := DefaultScoringRules()
	long := strings.Repeat("a", 120)

	award := r.FeedbackPoints(FeedbackInput{OverallRating: 5, FreeText: []string{long}})
	assert.Equal(t, 23, award.Total())

	award = r.FeedbackPoints(FeedbackInput{OverallRating: 2})
	assert.Equal(t, 15, award.Total())

	// Exactly 50 characters is not "over 50".
	award = r.FeedbackPoints(FeedbackInput{OverallRating: 3, FreeText: []string{strings.Repeat("b", 50)}})
	assert.Equal(t, 15, award.Total())

	award = r.FeedbackPoints(FeedbackInput{
		OverallRating:  5,
		NPSScore:       intPtr(10),
		WouldRecommend: boolPtr(true),
		FreeText:       []string{long, long, long},
	})
	assert.Equal(t, 15, award.Bonus, "bonus is capped")
	assert.Equal(t, 30, award.Total())

	award = r.FeedbackPoints(FeedbackInput{OverallRating: 1, NPSScore: intPtr(9), WouldRecommend: boolPtr(false)})
	assert.Equal(t, 20, award.Total())
}

func TestReserveConnectionReward(t *testing.T) {
	r := DefaultScoringRules()
	r.ConnectionDailyCap = 2
	p := Empty("u1")
	today := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, 5, r.ReserveConnectionReward(&p, today, 0))
	assert.Equal(t, 8, r.ReserveConnectionReward(&p, today.Add(time.Hour), 8))
	assert.Equal(t, 0, r.ReserveConnectionReward(&p, today.Add(2*time.Hour), 0))
	assert.Equal(t, 2, p.ConnectionRewardsToday)

	tomorrow := today.AddDate(0, 0, 1)
	assert.Equal(t, 5, r.ReserveConnectionReward(&p, tomorrow, 0))
	assert.Equal(t, 1, p.ConnectionRewardsToday)
}

func TestReserveConnectionReward_LateConnectionKeepsTodaysCount(t *testing.T) {
	r := DefaultScoringRules()
	r.ConnectionDailyCap = 2
	p := Empty("u1")
	today := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	total := 0
	for _, day := range []time.Time{today, today, yesterday, today, today} {
		total += r.ReserveConnectionReward(&p, day, 0)
	}

	// Two capped slots for today plus the late one from yesterday.
	assert.Equal(t, 15, total)
	assert.Equal(t, 2, p.ConnectionRewardsToday)
	require.NotNil(t, p.ConnectionRewardDate)
	assert.Equal(t, timeutil.Date(2024, time.March, 2), *p.ConnectionRewardDate)
}

func TestReserveConnectionReward_Uncapped(t *testing.T) {
	r := DefaultScoringRules()
	r.ConnectionDailyCap = 0
	p := Empty("u1")
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	total := 0
	for i := 0; i < 50; i++ {
		total += r.ReserveConnectionReward(&p, now, 0)
	}
	assert.Equal(t, 250, total)
}
