// Package jobs contains implementations of scheduled jobs of the check-in worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// Пересчитывает все пять периодов и сохраняет снапшоты строк лидерборда.
// ══════════════════════════════════════════════════════════════════════════════

// RebuildLeaderboardJob recomputes every period board, stores the rows and
// refreshes the cache.
type RebuildLeaderboardJob struct {
	service   *leaderboard.Service
	repo      leaderboard.Repository
	cache     leaderboard.Cache
	publisher shared.EventPublisher
	log       *logger.Logger
	config    RebuildLeaderboardConfig
	now       func() time.Time

	lastRebuildStats atomic.Value // *RebuildStats
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// Periods to rebuild; empty means all five.
	Periods []shared.Period

	// Concurrency limits parallel period rebuilds.
	Concurrency int

	// Timeout is the maximum duration for one rebuild.
	Timeout time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{
		Periods:     shared.AllPeriods(),
		Concurrency: 2,
		Timeout:     time.Minute,
	}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt    time.Time
	Duration     time.Duration
	Participants map[shared.Period]int
	CacheErrors  int
}

// NewRebuildLeaderboardJob creates the job. cache and publisher may be nil.
func NewRebuildLeaderboardJob(
	service *leaderboard.Service,
	repo leaderboard.Repository,
	cache leaderboard.Cache,
	publisher shared.EventPublisher,
	log *logger.Logger,
	config RebuildLeaderboardConfig,
) *RebuildLeaderboardJob {
	if log == nil {
		log = logger.Nop()
	}
	if len(config.Periods) == 0 {
		config.Periods = shared.AllPeriods()
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &RebuildLeaderboardJob{
		service:   service,
		repo:      repo,
		cache:     cache,
		publisher: publisher,
		log:       log.With(logger.Component("rebuild_leaderboard")),
		config:    config,
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (j *RebuildLeaderboardJob) WithClock(now func() time.Time) *RebuildLeaderboardJob {
	j.now = now
	return j
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string {
	return "rebuild_leaderboard"
}

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Recomputes daily, weekly, monthly, yearly and all-time leaderboards"
}

// LastStats returns the stats of the most recent successful run, or nil.
func (j *RebuildLeaderboardJob) LastStats() *RebuildStats {
	s, _ := j.lastRebuildStats.Load().(*RebuildStats)
	return s
}

// Run rebuilds all configured periods. A failure of one period does not stop
// the others; their errors are joined.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	began := time.Now()
	now := j.now()
	stats := &RebuildStats{
		StartedAt:    now,
		Participants: make(map[shared.Period]int, len(j.config.Periods)),
	}
	var mu sync.Mutex
	var errs []error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for _, period := range j.config.Periods {
		period := period
		g.Go(func() error {
			n, cacheErr, err := j.rebuild(gctx, period, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			stats.Participants[period] = n
			if cacheErr {
				stats.CacheErrors++
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Duration = time.Since(began)
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	j.lastRebuildStats.Store(stats)
	j.log.Info("leaderboards rebuilt",
		logger.Int("periods", len(stats.Participants)),
		logger.Latency(stats.Duration),
	)
	return nil
}

func (j *RebuildLeaderboardJob) rebuild(ctx context.Context, period shared.Period, now time.Time) (int, bool, error) {
	board, err := j.service.Compute(ctx, period, now)
	if err != nil {
		return 0, false, err
	}
	if err := j.repo.SaveBoard(ctx, board); err != nil {
		return 0, false, fmt.Errorf("rebuild %s: save: %w", period, err)
	}

	cacheErr := false
	if j.cache != nil {
		if err := j.cache.Set(ctx, board); err != nil {
			cacheErr = true
			j.log.Warn("leaderboard cache refresh failed", logger.Period(string(period)), logger.Err(err))
		}
	}

	if j.publisher != nil {
		evt := shared.NewLeaderboardRebuiltEvent(string(period), board.TotalParticipants(), now)
		if err := j.publisher.Publish(evt); err != nil {
			j.log.Warn("publish leaderboard rebuilt failed", logger.Period(string(period)), logger.Err(err))
		}
	}
	return board.TotalParticipants(), cacheErr, nil
}
