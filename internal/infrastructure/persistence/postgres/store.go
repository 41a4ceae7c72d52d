package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/achievement"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/gamification"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGER STORE
// ══════════════════════════════════════════════════════════════════════════════

var _ gamification.Store = (*Store)(nil)

// Store runs each trigger in one transaction guarded by a transaction-scoped
// advisory lock on the user id. The lock is released by COMMIT or ROLLBACK,
// so a crashed worker never leaves a user locked.
type Store struct {
	conn *Connection
}

// NewStore creates the trigger store.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

// WithUserLock implements gamification.Store.
func (s *Store) WithUserLock(ctx context.Context, userID string, fn func(tx gamification.Tx) error) error {
	if userID == "" {
		return shared.ErrEmptyUserID
	}

	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
			return fmt.Errorf("lock user %s: %w", userID, err)
		}
		return fn(&storeTx{tx: tx, userID: userID})
	})
}

// storeTx implements gamification.Tx over a pgx transaction.
type storeTx struct {
	tx     pgx.Tx
	userID string
}

func (t *storeTx) checkUser(op, userID string) error {
	if userID != t.userID {
		return shared.NewDomainError("gamification", op, shared.ErrInvalidInput,
			fmt.Sprintf("tx locked for %s, got %s", t.userID, userID))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// PROFILE
// ─────────────────────────────────────────────────────────────────────────────

const profileColumns = `user_id, current_streak, longest_streak, last_qualifying_date,
	total_events_attended, total_points, level, total_connections,
	total_feedback_submissions, connection_reward_date, connection_rewards_today,
	created_at, updated_at`

func scanProfile(row pgx.Row) (profile.Profile, error) {
	var p profile.Profile
	var level string
	err := row.Scan(
		&p.UserID,
		&p.CurrentStreak,
		&p.LongestStreak,
		&p.LastQualifyingDate,
		&p.TotalEventsAttended,
		&p.TotalPoints,
		&level,
		&p.TotalConnections,
		&p.TotalFeedback,
		&p.ConnectionRewardDate,
		&p.ConnectionRewardsToday,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	p.Level = profile.Level(level)
	return p, err
}

func (t *storeTx) LoadProfile(ctx context.Context, userID string, now time.Time) (profile.Profile, error) {
	if err := t.checkUser("LoadProfile", userID); err != nil {
		return profile.Profile{}, err
	}

	p, err := scanProfile(t.tx.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM gamification_profiles WHERE user_id = $1 FOR UPDATE`, userID))
	if IsNoRows(err) {
		fresh, err := profile.NewProfile(userID, now)
		if err != nil {
			return profile.Profile{}, err
		}
		return *fresh, nil
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return p, nil
}

func (t *storeTx) SaveProfile(ctx context.Context, p profile.Profile) error {
	if err := t.checkUser("SaveProfile", p.UserID); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}

	_, err := t.tx.Exec(ctx, `
		INSERT INTO gamification_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_qualifying_date = EXCLUDED.last_qualifying_date,
			total_events_attended = EXCLUDED.total_events_attended,
			total_points = EXCLUDED.total_points,
			level = EXCLUDED.level,
			total_connections = EXCLUDED.total_connections,
			total_feedback_submissions = EXCLUDED.total_feedback_submissions,
			connection_reward_date = EXCLUDED.connection_reward_date,
			connection_rewards_today = EXCLUDED.connection_rewards_today,
			updated_at = EXCLUDED.updated_at
	`,
		p.UserID,
		p.CurrentStreak,
		p.LongestStreak,
		p.LastQualifyingDate,
		p.TotalEventsAttended,
		p.TotalPoints,
		string(p.Level),
		p.TotalConnections,
		p.TotalFeedback,
		p.ConnectionRewardDate,
		p.ConnectionRewardsToday,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SOURCE MARKERS
// ─────────────────────────────────────────────────────────────────────────────

func sourceTable(kind trigger.Kind) (string, error) {
	switch kind {
	case trigger.KindCheckIn:
		return "check_ins", nil
	case trigger.KindFeedback:
		return "feedback_submissions", nil
	case trigger.KindConnection:
		return "connections", nil
	}
	return "", shared.ErrUnknownTriggerKind
}

func (t *storeTx) IsProcessed(ctx context.Context, kind trigger.Kind, sourceID string) (bool, error) {
	table, err := sourceTable(kind)
	if err != nil {
		return false, err
	}

	var processed bool
	err = t.tx.QueryRow(ctx,
		`SELECT gamification_processed FROM `+table+` WHERE id = $1`, sourceID).Scan(&processed)
	if IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s marker %s: %w", kind, sourceID, err)
	}
	return processed, nil
}

func (t *storeTx) MarkProcessed(ctx context.Context, src trigger.Source, userID string, points int) error {
	if err := t.checkUser("MarkProcessed", userID); err != nil {
		return err
	}

	var err error
	switch s := src.(type) {
	case *trigger.CheckIn:
		_, err = t.tx.Exec(ctx, `
			INSERT INTO check_ins (id, user_id, email, event_id, event_date, event_start_at, check_in_at,
				gamification_processed, points_awarded, processed_user_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				gamification_processed = TRUE,
				points_awarded = EXCLUDED.points_awarded,
				processed_user_id = EXCLUDED.processed_user_id
		`, s.ID, nullString(s.UserID), nullString(s.Email), s.EventID, s.EventDate, s.EventStartAt, s.CheckInAt,
			points, userID)
	case *trigger.Feedback:
		_, err = t.tx.Exec(ctx, `
			INSERT INTO feedback_submissions (id, user_id, email, event_id, overall_rating, nps_score,
				would_recommend, free_text, submitted_at, gamification_processed, points_awarded, processed_user_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				gamification_processed = TRUE,
				points_awarded = EXCLUDED.points_awarded,
				processed_user_id = EXCLUDED.processed_user_id
		`, s.ID, nullString(s.UserID), nullString(s.Email), s.EventID, s.OverallRating, s.NPSScore,
			s.WouldRecommend, freeText(s.FreeText), s.SubmittedAt, points, userID)
	case *trigger.Connection:
		_, err = t.tx.Exec(ctx, `
			INSERT INTO connections (id, from_user_id, from_email, to_user_id, event_id, created_at,
				gamification_processed, points_awarded, processed_user_id)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				gamification_processed = TRUE,
				points_awarded = EXCLUDED.points_awarded,
				processed_user_id = EXCLUDED.processed_user_id
		`, s.ID, nullString(s.FromUserID), nullString(s.FromEmail), s.ToUserID, s.EventID, s.CreatedAt,
			points, userID)
	default:
		return shared.ErrUnknownTriggerKind
	}
	if err != nil {
		return fmt.Errorf("mark %s %s processed: %w", src.Kind(), src.SourceID(), err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// BADGES & ACHIEVEMENTS
// ─────────────────────────────────────────────────────────────────────────────

func (t *storeTx) EarnedBadgeIDs(ctx context.Context, userID string) (map[string]bool, error) {
	if err := t.checkUser("EarnedBadgeIDs", userID); err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(ctx, `SELECT badge_id FROM earned_badges WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list earned badges %s: %w", userID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan earned badges %s: %w", userID, err)
	}

	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (t *storeTx) CreateEarnedBadge(ctx context.Context, eb badge.EarnedBadge) (bool, error) {
	if err := t.checkUser("CreateEarnedBadge", eb.UserID); err != nil {
		return false, err
	}

	tag, err := t.tx.Exec(ctx, `
		INSERT INTO earned_badges (id, user_id, badge_id, event_id, earned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, eb.ID, eb.UserID, eb.BadgeID, nullString(eb.EventID), eb.EarnedAt)
	if err != nil {
		return false, fmt.Errorf("create earned badge %s/%s: %w", eb.UserID, eb.BadgeID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *storeTx) InsertAchievements(ctx context.Context, list []achievement.Achievement) error {
	if len(list) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range list {
		if err := t.checkUser("InsertAchievements", a.UserID); err != nil {
			return err
		}
		var data []byte
		if a.Data != nil {
			var err error
			if data, err = json.Marshal(a.Data); err != nil {
				return fmt.Errorf("encode achievement %s: %w", a.ID, err)
			}
		}
		batch.Queue(`
			INSERT INTO achievements (id, user_id, event_id, kind, title, description, icon, data, achieved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, a.ID, a.UserID, nullString(a.EventID), string(a.Kind), a.Title, a.Description, a.Icon, data, a.AchievedAt)
	}

	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for _, a := range list {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert achievement %s: %w", a.ID, err)
		}
	}
	return nil
}

func (t *storeTx) CountAttendanceSince(ctx context.Context, userID string, since time.Time) (int, error) {
	if err := t.checkUser("CountAttendanceSince", userID); err != nil {
		return 0, err
	}
	return countAttendance(ctx, t.tx, userID, since)
}

func countAttendance(ctx context.Context, q Querier, userID string, since time.Time) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT count(*) FROM check_ins
		WHERE gamification_processed AND processed_user_id = $1 AND event_date >= $2
	`, userID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count attendance %s: %w", userID, err)
	}
	return n, nil
}

func freeText(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
