package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/retry"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// LeaderboardCache stores whole computed boards as JSON. Every period keeps
// an index set of its cached keys so Invalidate never needs SCAN.
type LeaderboardCache struct {
	cache   *Cache
	ttl     time.Duration
	retrier *retry.Retrier
}

// NewLeaderboardCache creates a board cache. ttl <= 0 uses TTLLeaderboardCache.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	return &LeaderboardCache{
		cache:   cache,
		ttl:     ttl,
		retrier: retry.CacheRetrier(),
	}
}

// BoardKey returns the cache key of one board, e.g.
// "leaderboard:weekly:2024-05-13".
func BoardKey(period shared.Period, key time.Time) string {
	return PrefixLeaderboard + string(period) + ":" + timeutil.FormatDate(key)
}

func boardIndexKey(period shared.Period) string {
	return PrefixLeaderboard + "index:" + string(period)
}

// Get implements leaderboard.Cache. A miss returns nil, nil.
func (l *LeaderboardCache) Get(ctx context.Context, period shared.Period, key time.Time) (*leaderboard.Board, error) {
	var b leaderboard.Board
	if err := l.cache.Get(ctx, BoardKey(period, key), &b); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("get board %s: %w", period, err)
	}
	return &b, nil
}

// Set implements leaderboard.Cache. The board and its index entry are
// written in one MULTI/EXEC.
func (l *LeaderboardCache) Set(ctx context.Context, b *leaderboard.Board) error {
	key := BoardKey(b.Period, b.PeriodKey)
	data, err := encode(key, b, l.ttl)
	if err != nil {
		return err
	}

	idx := boardIndexKey(b.Period)
	pipe := l.cache.Client().TxPipeline()
	pipe.Set(ctx, key, data, l.ttl)
	pipe.SAdd(ctx, idx, key)
	pipe.Expire(ctx, idx, l.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set board %s: %w", key, err)
	}
	return nil
}

// Invalidate implements leaderboard.Cache. Transient Redis errors are
// retried a few times because a lost invalidation leaves a stale board
// until its TTL expires.
func (l *LeaderboardCache) Invalidate(ctx context.Context, periods ...shared.Period) error {
	if len(periods) == 0 {
		return nil
	}

	return l.retrier.Do(ctx, func(ctx context.Context) error {
		client := l.cache.Client()

		var keys []string
		for _, p := range periods {
			idx := boardIndexKey(p)
			members, err := client.SMembers(ctx, idx).Result()
			if err != nil {
				return fmt.Errorf("list cached boards %s: %w", p, err)
			}
			keys = append(keys, members...)
			keys = append(keys, idx)
		}

		pipe := client.TxPipeline()
		pipe.Del(ctx, keys...)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("invalidate boards: %w", err)
		}
		return nil
	})
}
