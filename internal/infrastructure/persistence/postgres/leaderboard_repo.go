package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

var _ leaderboard.Repository = (*LeaderboardRepository)(nil)

// LeaderboardRepository reads standings and stores computed boards.
type LeaderboardRepository struct {
	conn *Connection
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn}
}

// ListStandings implements leaderboard.StandingsReader. With since nil the
// window counters equal the lifetime ones.
func (r *LeaderboardRepository) ListStandings(ctx context.Context, since *time.Time) ([]leaderboard.Standing, error) {
	day, from := standingsWindow(since)
	rows, err := r.conn.Query(ctx, `
		SELECT
			p.user_id,
			p.total_points,
			p.current_streak,
			p.total_events_attended,
			CASE WHEN $1::date IS NULL THEN p.total_events_attended ELSE COALESCE(c.n, 0) END,
			COALESCE(b.n, 0)
		FROM gamification_profiles p
		LEFT JOIN (
			SELECT processed_user_id AS user_id, count(*) AS n
			FROM check_ins
			WHERE gamification_processed AND ($1::date IS NULL OR event_date >= $1::date)
			GROUP BY processed_user_id
		) c ON c.user_id = p.user_id
		LEFT JOIN (
			SELECT user_id, count(*) AS n
			FROM earned_badges
			WHERE $2::timestamptz IS NULL OR earned_at >= $2::timestamptz
			GROUP BY user_id
		) b ON b.user_id = p.user_id
		ORDER BY p.user_id
	`, day, from)
	if err != nil {
		return nil, fmt.Errorf("list standings: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (leaderboard.Standing, error) {
		var s leaderboard.Standing
		err := row.Scan(&s.UserID, &s.TotalPoints, &s.CurrentStreak, &s.TotalEventsAttended,
			&s.EventsInWindow, &s.BadgesInWindow)
		return s, err
	})
}

// standingsWindow splits a window start into the calendar date compared with
// check_ins.event_date and the instant compared with earned_badges.earned_at.
// The date is taken in since's own location.
func standingsWindow(since *time.Time) (day, from *time.Time) {
	if since == nil {
		return nil, nil
	}
	d := timeutil.DateOf(*since, since.Location())
	f := since.UTC()
	return &d, &f
}

// SaveBoard implements leaderboard.Repository. The previous rows of the
// same (period, period_key) are replaced in one transaction.
func (r *LeaderboardRepository) SaveBoard(ctx context.Context, b *leaderboard.Board) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM leaderboard_entries WHERE period = $1 AND period_key = $2`,
			string(b.Period), b.PeriodKey,
		); err != nil {
			return fmt.Errorf("clear %s board: %w", b.Period, err)
		}

		if len(b.Entries) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, e := range b.Entries {
			batch.Queue(`
				INSERT INTO leaderboard_entries
				(period, period_key, user_id, events_attended, points_earned, current_streak, badges_earned, rank, computed_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`,
				string(b.Period),
				b.PeriodKey,
				e.UserID,
				e.EventsAttended,
				e.PointsEarned,
				e.CurrentStreak,
				e.BadgesEarned,
				int(e.Rank),
				b.ComputedAt,
			)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for _, e := range b.Entries {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("insert %s entry %s: %w", b.Period, e.UserID, err)
			}
		}
		return nil
	})
}

// GetBoard implements leaderboard.Repository. A board without rows is
// reported as shared.ErrSnapshotNotFound.
func (r *LeaderboardRepository) GetBoard(ctx context.Context, period shared.Period, key time.Time) (*leaderboard.Board, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_id, events_attended, points_earned, current_streak, badges_earned, rank, computed_at
		FROM leaderboard_entries
		WHERE period = $1 AND period_key = $2
		ORDER BY rank
	`, string(period), key)
	if err != nil {
		return nil, fmt.Errorf("get %s board: %w", period, err)
	}

	b := &leaderboard.Board{Period: period, PeriodKey: key}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (leaderboard.Entry, error) {
		e := leaderboard.Entry{Period: period, PeriodKey: key}
		var rank int
		err := row.Scan(&e.UserID, &e.EventsAttended, &e.PointsEarned, &e.CurrentStreak,
			&e.BadgesEarned, &rank, &b.ComputedAt)
		e.Rank = shared.Rank(rank)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s board: %w", period, err)
	}
	if len(entries) == 0 {
		return nil, shared.ErrSnapshotNotFound
	}

	b.Entries = entries
	return b, nil
}
