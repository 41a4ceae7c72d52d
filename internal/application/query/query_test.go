package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/achievement"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/gamification"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/memory"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/circuitbreaker"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

var testNow = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return testNow }

type staticCatalog struct{ c *badge.Catalog }

func (s staticCatalog) Catalog() *badge.Catalog { return s.c }

func seedProfile(t *testing.T, s *memory.Store, userID string, points, streak, events int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithUserLock(ctx, userID, func(tx gamification.Tx) error {
		p, err := tx.LoadProfile(ctx, userID, testNow)
		if err != nil {
			return err
		}
		p.TotalPoints = points
		p.Level = profile.LevelFor(points)
		p.CurrentStreak, p.LongestStreak = streak, streak
		p.TotalEventsAttended = events
		return tx.SaveProfile(ctx, p)
	}))
}

func seedCheckIn(t *testing.T, s *memory.Store, id, userID string, date time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithUserLock(ctx, userID, func(tx gamification.Tx) error {
		return tx.MarkProcessed(ctx, &trigger.CheckIn{ID: id, UserID: userID, EventID: "e", EventDate: date, CheckInAt: date}, userID, 10)
	}))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

func TestGetProfile_MissingReturnsZeroValues(t *testing.T) {
	h := NewGetProfileHandler(memory.NewStore())

	dto, err := h.Handle(context.Background(), GetProfileQuery{UserID: "ghost"})
	require.NoError(t, err)
	assert.False(t, dto.Exists)
	assert.Equal(t, 0, dto.TotalPoints)
	assert.Equal(t, "Bronze", dto.Level)
	assert.Nil(t, dto.LastQualifyingDate)
	assert.Equal(t, "Silver", dto.NextLevel)
	assert.Equal(t, 200, dto.PointsToNextLevel)
}

func TestGetProfile_Existing(t *testing.T) {
	s := memory.NewStore()
	seedProfile(t, s, "u1", 1200, 4, 9)

	dto, err := NewGetProfileHandler(s).Handle(context.Background(), GetProfileQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.True(t, dto.Exists)
	assert.Equal(t, "Platinum", dto.Level)
	assert.Empty(t, dto.NextLevel)
	assert.Equal(t, 0, dto.PointsToNextLevel)

	_, err = NewGetProfileHandler(s).Handle(context.Background(), GetProfileQuery{})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES AND ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func testCatalog(t *testing.T) *badge.Catalog {
	t.Helper()
	c, invalid := badge.BuildCatalog([]badge.Record{
		{ID: "attend-4", Name: "Regular", Type: badge.TypeAttendance, Criteria: map[string]any{"events_required": 4}, IsActive: true},
		{ID: "streak-5", Name: "On Fire", Type: badge.TypeStreak, Criteria: map[string]any{"streak_required": 5}, IsActive: true},
		{ID: "month-2", Name: "Busy Month", Type: badge.TypeAttendance, Criteria: map[string]any{"events_required": 2, "time_period": "monthly"}, IsActive: true},
		{ID: "net-1", Name: "Hello", Type: badge.TypeNetworking, Criteria: map[string]any{"events_for_networking": 1}, IsActive: true},
		{ID: "old", Name: "Retired", Type: badge.TypeStreak, Criteria: map[string]any{"streak_required": 1}, IsActive: false},
	})
	require.Empty(t, invalid)
	return c
}

func TestGetBadges(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, s.WithUserLock(ctx, "u1", func(tx gamification.Tx) error {
		if _, err := tx.CreateEarnedBadge(ctx, badge.EarnedBadge{ID: "1", UserID: "u1", BadgeID: "attend-4", EventID: "e1", EarnedAt: testNow}); err != nil {
			return err
		}
		_, err := tx.CreateEarnedBadge(ctx, badge.EarnedBadge{ID: "2", UserID: "u1", BadgeID: "gone", EarnedAt: testNow.Add(time.Hour)})
		return err
	}))

	list, err := NewGetBadgesHandler(s, staticCatalog{testCatalog(t)}).Handle(ctx, GetBadgesQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Regular", list[0].Badge.Name)
	assert.Equal(t, "e1", list[0].EventID)
	assert.Equal(t, "gone", list[1].Badge.ID)
	assert.Empty(t, list[1].Badge.Name)
}

func TestGetAchievements_NewestFirstWithLimit(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, s.WithUserLock(ctx, "u1", func(tx gamification.Tx) error {
		return tx.InsertAchievements(ctx, []achievement.Achievement{
			{ID: "a1", UserID: "u1", Kind: achievement.KindAttendance, Title: "First Event", AchievedAt: testNow.Add(-2 * time.Hour)},
			{ID: "a2", UserID: "u1", Kind: achievement.KindStreak, Title: "3-Day Streak", AchievedAt: testNow},
			{ID: "a3", UserID: "u1", Kind: achievement.KindLevel, Title: "Reached Silver", AchievedAt: testNow.Add(-time.Hour)},
		})
	}))

	h := NewGetAchievementsHandler(s, 0)
	list, err := h.Handle(ctx, GetAchievementsQuery{UserID: "u1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID)
	assert.Equal(t, "a3", list[1].ID)

	all, err := h.Handle(ctx, GetAchievementsQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	latest, err := NewGetAchievementsHandler(s, 1).Handle(ctx, GetAchievementsQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "a2", latest[0].ID)

	_, err = h.Handle(ctx, GetAchievementsQuery{UserID: "u1", Limit: -1})
	assert.Error(t, err)
}

func TestGetBadgeProgress(t *testing.T) {
	s := memory.NewStore()
	seedProfile(t, s, "u1", 40, 2, 3)
	seedCheckIn(t, s, "c1", "u1", timeutil.Date(2024, time.April, 28))
	seedCheckIn(t, s, "c2", "u1", timeutil.Date(2024, time.May, 3))

	h := NewGetBadgeProgressHandler(s, s, s, staticCatalog{testCatalog(t)}, time.UTC, clock)
	list, err := h.Handle(context.Background(), GetBadgeProgressQuery{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 4)

	byID := map[string]BadgeProgressDTO{}
	for _, p := range list {
		byID[p.Badge.ID] = p
	}
	assert.Equal(t, 75.0, byID["attend-4"].ProgressPercent)
	assert.Equal(t, 40.0, byID["streak-5"].ProgressPercent)
	assert.Equal(t, 50.0, byID["month-2"].ProgressPercent)
	assert.Equal(t, 1, byID["month-2"].Current)
	assert.Equal(t, 0.0, byID["net-1"].ProgressPercent)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func TestGetLeaderboard_AllTimeWithUserRank(t *testing.T) {
	s := memory.NewStore()
	seedProfile(t, s, "p1", 50, 2, 1)
	seedProfile(t, s, "p2", 50, 5, 1)
	seedProfile(t, s, "p3", 30, 9, 1)

	loader := NewBoardLoader(leaderboard.NewService(s, time.UTC), nil, nil, nil, clock)
	h := NewGetLeaderboardHandler(loader, 10)

	res, err := h.Handle(context.Background(), GetLeaderboardQuery{Period: "all_time", Limit: 2, UserID: "p3"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "p2", res.Entries[0].UserID)
	assert.Equal(t, "p1", res.Entries[1].UserID)
	assert.Equal(t, 3, res.TotalParticipants)
	require.NotNil(t, res.UserRank)
	assert.Equal(t, 3, *res.UserRank)
	assert.Equal(t, "1970-01-01", res.PeriodKey)

	_, err = h.Handle(context.Background(), GetLeaderboardQuery{Period: "fortnightly"})
	assert.ErrorIs(t, err, shared.ErrUnknownPeriod)
}

func TestGetLeaderboard_BoundedPeriodFiltersInactive(t *testing.T) {
	s := memory.NewStore()
	seedProfile(t, s, "active", 10, 1, 1)
	seedProfile(t, s, "idle", 900, 0, 30)
	seedCheckIn(t, s, "c1", "active", timeutil.Date(2024, time.May, 14))

	loader := NewBoardLoader(leaderboard.NewService(s, time.UTC), nil, nil, nil, clock)

	res, err := NewGetLeaderboardHandler(loader, 10).Handle(context.Background(), GetLeaderboardQuery{Period: "weekly", UserID: "idle"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "active", res.Entries[0].UserID)
	assert.Equal(t, 1, res.Entries[0].EventsAttended)
	assert.Nil(t, res.UserRank)
	assert.Equal(t, "2024-05-13", res.PeriodKey)

	rank, err := NewGetUserRankHandler(loader).Handle(context.Background(), GetUserRankQuery{UserID: "active", Period: "weekly"})
	require.NoError(t, err)
	require.NotNil(t, rank.Rank)
	assert.Equal(t, 1, *rank.Rank)
	assert.True(t, rank.Podium)
	assert.Equal(t, "🥇", rank.Entry.Medal)
	assert.Equal(t, 1, rank.TotalParticipants)
}

type fakeCache struct {
	board  *leaderboard.Board
	getErr error
	sets   int
	gets   int
}

func (c *fakeCache) Get(context.Context, shared.Period, time.Time) (*leaderboard.Board, error) {
	c.gets++
	return c.board, c.getErr
}

func (c *fakeCache) Set(_ context.Context, b *leaderboard.Board) error {
	c.sets++
	if c.getErr != nil {
		return c.getErr
	}
	c.board = b
	return nil
}

func (c *fakeCache) Invalidate(context.Context, ...shared.Period) error {
	c.board = nil
	return nil
}

func TestBoardLoader_UsesCacheAfterFirstCompute(t *testing.T) {
	s := memory.NewStore()
	seedProfile(t, s, "u1", 10, 1, 1)
	cache := &fakeCache{}
	loader := NewBoardLoader(leaderboard.NewService(s, time.UTC), cache, nil, nil, clock)

	_, fromCache, err := loader.Load(context.Background(), shared.PeriodAllTime)
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 1, cache.sets)

	b, fromCache, err := loader.Load(context.Background(), shared.PeriodAllTime)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, 1, b.TotalParticipants())
}

func TestBoardLoader_CacheOutageFallsBackAndTripsBreaker(t *testing.T) {
	s := memory.NewStore()
	seedProfile(t, s, "u1", 10, 1, 1)
	cache := &fakeCache{getErr: errors.New("redis down")}
	breaker := circuitbreaker.New("test", circuitbreaker.WithThresholds(2, 1), circuitbreaker.WithTimeout(time.Hour))
	loader := NewBoardLoader(leaderboard.NewService(s, time.UTC), cache, breaker, nil, clock)

	for i := 0; i < 4; i++ {
		b, fromCache, err := loader.Load(context.Background(), shared.PeriodAllTime)
		require.NoError(t, err)
		assert.False(t, fromCache)
		assert.Equal(t, 1, b.TotalParticipants())
	}
	assert.Equal(t, circuitbreaker.StateOpen, breaker.State())
	// The failed read and write of the first load open the circuit; later
	// loads skip the cache entirely.
	assert.Equal(t, 1, cache.gets)
	assert.Equal(t, 1, cache.sets)
}

type brokenStandings struct{}

func (brokenStandings) ListStandings(context.Context, *time.Time) ([]leaderboard.Standing, error) {
	return nil, errors.New("db down")
}

func TestBoardLoader_ServesSnapshotWhenRecomputeFails(t *testing.T) {
	s := memory.NewStore()
	key := shared.PeriodWeekly.Key(clock(), time.UTC)
	stored := leaderboard.NewBoard(shared.PeriodWeekly, key,
		[]leaderboard.Standing{{UserID: "u1", TotalPoints: 10, EventsInWindow: 1}}, clock())
	require.NoError(t, s.SaveBoard(context.Background(), stored))

	loader := NewBoardLoader(leaderboard.NewService(brokenStandings{}, time.UTC), nil, nil, nil, clock).
		WithSnapshots(s)

	b, fromCache, err := loader.Load(context.Background(), shared.PeriodWeekly)
	require.NoError(t, err)
	assert.False(t, fromCache)
	require.Equal(t, 1, b.TotalParticipants())
	assert.Equal(t, "u1", b.Entries[0].UserID)

	// No snapshot for the period: the recompute error surfaces.
	_, _, err = loader.Load(context.Background(), shared.PeriodDaily)
	assert.Error(t, err)
}

func TestBoardLoader_PrefersRecomputeOverSnapshot(t *testing.T) {
	s := memory.NewStore()
	seedProfile(t, s, "u1", 10, 1, 1)
	seedProfile(t, s, "u2", 20, 1, 1)
	stale := leaderboard.NewBoard(shared.PeriodAllTime, shared.PeriodAllTime.Key(clock(), time.UTC),
		[]leaderboard.Standing{{UserID: "u1", TotalPoints: 10}}, clock())
	require.NoError(t, s.SaveBoard(context.Background(), stale))

	loader := NewBoardLoader(leaderboard.NewService(s, time.UTC), nil, nil, nil, clock).WithSnapshots(s)

	b, _, err := loader.Load(context.Background(), shared.PeriodAllTime)
	require.NoError(t, err)
	assert.Equal(t, 2, b.TotalParticipants())
}
