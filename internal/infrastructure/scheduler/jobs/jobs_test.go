package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/gamification"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/memory"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

var now = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *memory.Store, userID string, points int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.WithUserLock(ctx, userID, func(tx gamification.Tx) error {
		p, err := tx.LoadProfile(ctx, userID, now)
		if err != nil {
			return err
		}
		p.TotalPoints = points
		return tx.SaveProfile(ctx, p)
	}))
}

type recordingCache struct {
	mu     sync.Mutex
	boards []shared.Period
	err    error
}

func (c *recordingCache) Get(context.Context, shared.Period, time.Time) (*leaderboard.Board, error) {
	return nil, nil
}

func (c *recordingCache) Set(_ context.Context, b *leaderboard.Board) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boards = append(c.boards, b.Period)
	return c.err
}

func (c *recordingCache) Invalidate(context.Context, ...shared.Period) error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD
// ══════════════════════════════════════════════════════════════════════════════

func TestRebuildLeaderboardJob_StoresEveryPeriod(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "u1", 30)
	seed(t, store, "u2", 80)

	cache := &recordingCache{}
	pub := &recordingPublisher{}
	job := NewRebuildLeaderboardJob(
		leaderboard.NewService(store, time.UTC), store, cache, pub, nil,
		DefaultRebuildLeaderboardConfig(),
	).WithClock(func() time.Time { return now })

	require.NoError(t, job.Run(context.Background()))

	board, err := store.GetBoard(context.Background(), shared.PeriodAllTime, shared.PeriodAllTime.Key(now, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 2, board.TotalParticipants())
	assert.Equal(t, "u2", board.Entries[0].UserID)

	_, err = store.GetBoard(context.Background(), shared.PeriodWeekly, timeutil.Date(2024, time.May, 13))
	assert.NoError(t, err)

	assert.ElementsMatch(t, shared.AllPeriods(), cache.boards)
	assert.Len(t, pub.events, len(shared.AllPeriods()))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Participants[shared.PeriodAllTime])
	assert.Zero(t, stats.CacheErrors)
}

func TestRebuildLeaderboardJob_CacheFailureIsNotFatal(t *testing.T) {
	store := memory.NewStore()
	seed(t, store, "u1", 10)

	cache := &recordingCache{err: errors.New("redis down")}
	job := NewRebuildLeaderboardJob(
		leaderboard.NewService(store, time.UTC), store, cache, nil, nil,
		RebuildLeaderboardConfig{Periods: []shared.Period{shared.PeriodDaily, shared.PeriodAllTime}},
	).WithClock(func() time.Time { return now })

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, job.LastStats().CacheErrors)
}

type failingStandings struct{}

func (failingStandings) ListStandings(context.Context, *time.Time) ([]leaderboard.Standing, error) {
	return nil, errors.New("db down")
}

func TestRebuildLeaderboardJob_ReportsComputeErrors(t *testing.T) {
	store := memory.NewStore()
	job := NewRebuildLeaderboardJob(
		leaderboard.NewService(failingStandings{}, time.UTC), store, nil, nil, nil,
		RebuildLeaderboardConfig{},
	)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.Nil(t, job.LastStats())
}

// ══════════════════════════════════════════════════════════════════════════════
// RELOAD CATALOG
// ══════════════════════════════════════════════════════════════════════════════

type catalogSink struct{ c *badge.Catalog }

func (s *catalogSink) SetCatalog(c *badge.Catalog) { s.c = c }

func TestReloadCatalogJob_SkipsInvalidRecords(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.UpsertRecords(context.Background(), []badge.Record{
		{ID: "streak-3", Name: "Hat Trick", Type: badge.TypeStreak, Criteria: map[string]any{"streak_required": 3}, IsActive: true},
		{ID: "broken", Name: "Broken", Type: badge.TypeStreak, Criteria: map[string]any{}, IsActive: true},
	}))

	sink := &catalogSink{}
	job := NewReloadCatalogJob(store, sink, nil)
	require.NoError(t, job.Run(context.Background()))

	require.NotNil(t, sink.c)
	assert.Equal(t, 1, sink.c.Len())
	_, ok := sink.c.Get("streak-3")
	assert.True(t, ok)
}

type failingCatalogRepo struct{ badge.CatalogRepository }

func (failingCatalogRepo) ListRecords(context.Context) ([]badge.Record, error) {
	return nil, errors.New("db down")
}

func TestReloadCatalogJob_StorageErrorKeepsCurrentCatalog(t *testing.T) {
	sink := &catalogSink{}
	job := NewReloadCatalogJob(failingCatalogRepo{}, sink, nil)

	assert.Error(t, job.Run(context.Background()))
	assert.Nil(t, sink.c)
}
