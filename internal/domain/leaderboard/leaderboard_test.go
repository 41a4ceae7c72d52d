package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

func userIDs(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.UserID)
	}
	return out
}

func TestOrder_AllTimeTieBreakOnStreak(t *testing.T) {
	standings := []Standing{
		{UserID: "p1", TotalPoints: 50, CurrentStreak: 2},
		{UserID: "p2", TotalPoints: 50, CurrentStreak: 5},
		{UserID: "p3", TotalPoints: 30, CurrentStreak: 9},
	}

	got := Order(shared.PeriodAllTime, time.Time{}, standings)

	assert.Equal(t, []string{"p2", "p1", "p3"}, userIDs(got))
	for i, e := range got {
		assert.Equal(t, shared.Rank(i+1), e.Rank)
	}
}

func TestOrder_AllTimeThirdKeyAndStableTies(t *testing.T) {
	standings := []Standing{
		{UserID: "a", TotalPoints: 10, CurrentStreak: 1, TotalEventsAttended: 1},
		{UserID: "b", TotalPoints: 10, CurrentStreak: 1, TotalEventsAttended: 3},
		{UserID: "c", TotalPoints: 10, CurrentStreak: 1, TotalEventsAttended: 1},
	}

	got := Order(shared.PeriodAllTime, time.Time{}, standings)

	assert.Equal(t, []string{"b", "a", "c"}, userIDs(got))
	assert.Equal(t, 3, got[0].EventsAttended)
}

func TestOrder_BoundedFiltersAndWeighsWindowEvents(t *testing.T) {
	key := timeutil.Date(2024, time.May, 1)
	standings := []Standing{
		{UserID: "veteran", TotalPoints: 900, CurrentStreak: 1, TotalEventsAttended: 40, EventsInWindow: 1},
		{UserID: "idle", TotalPoints: 2000, TotalEventsAttended: 90, EventsInWindow: 0},
		{UserID: "regular", TotalPoints: 120, CurrentStreak: 3, TotalEventsAttended: 8, EventsInWindow: 3, BadgesInWindow: 2},
		{UserID: "newbie", TotalPoints: 120, CurrentStreak: 4, TotalEventsAttended: 3, EventsInWindow: 3},
	}

	got := Order(shared.PeriodMonthly, key, standings)

	assert.Equal(t, []string{"newbie", "regular", "veteran"}, userIDs(got))
	assert.Equal(t, 3, got[1].EventsAttended)
	assert.Equal(t, 2, got[1].BadgesEarned)
	assert.Equal(t, key, got[0].PeriodKey)
	assert.Equal(t, shared.PeriodMonthly, got[0].Period)
}

func TestBoard_RankMatchesEntries(t *testing.T) {
	b := NewBoard(shared.PeriodAllTime, time.Time{}, []Standing{
		{UserID: "x", TotalPoints: 5},
		{UserID: "y", TotalPoints: 15},
	}, time.Now())

	r, ok := b.RankOf("x")
	require.True(t, ok)
	assert.Equal(t, shared.Rank(2), r)
	assert.Equal(t, "x", b.Entries[r-1].UserID)

	_, ok = b.RankOf("missing")
	assert.False(t, ok)

	assert.Equal(t, 2, b.TotalParticipants())
	assert.Len(t, b.Top(1), 1)
	assert.Len(t, b.Top(0), 2)
	assert.Len(t, b.Top(50), 2)
}

type stubReader struct {
	since    *time.Time
	calls    int
	err      error
	response []Standing
}

func (s *stubReader) ListStandings(_ context.Context, since *time.Time) ([]Standing, error) {
	s.calls++
	s.since = since
	return s.response, s.err
}

func TestService_ComputePassesWindowStart(t *testing.T) {
	reader := &stubReader{response: []Standing{{UserID: "u", EventsInWindow: 1}}}
	svc := NewService(reader, time.UTC)
	now := time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC) // Wednesday

	b, err := svc.Compute(context.Background(), shared.PeriodWeekly, now)
	require.NoError(t, err)
	require.NotNil(t, reader.since)
	assert.Equal(t, timeutil.Date(2024, time.May, 13), *reader.since)
	assert.Equal(t, timeutil.Date(2024, time.May, 13), b.PeriodKey)
	assert.Equal(t, 1, b.TotalParticipants())

	_, err = svc.Compute(context.Background(), shared.PeriodAllTime, now)
	require.NoError(t, err)
	assert.Nil(t, reader.since)
}

func TestService_ComputeWindowStartsAtLocalMidnight(t *testing.T) {
	reader := &stubReader{}
	almaty := time.FixedZone("UTC+5", 5*3600)
	svc := NewService(reader, almaty)
	now := time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

	_, err := svc.Compute(context.Background(), shared.PeriodWeekly, now)
	require.NoError(t, err)
	require.NotNil(t, reader.since)
	// Monday 00:00 in UTC+5 is Sunday 19:00 UTC.
	assert.True(t, time.Date(2024, time.May, 12, 19, 0, 0, 0, time.UTC).Equal(*reader.since))
	assert.Equal(t, timeutil.Date(2024, time.May, 13), timeutil.DateOf(*reader.since, almaty))
}

func TestService_ComputeWrapsReaderError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&stubReader{err: boom}, nil)

	_, err := svc.Compute(context.Background(), shared.PeriodDaily, time.Now())
	assert.ErrorIs(t, err, boom)
}
