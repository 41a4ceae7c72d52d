package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/achievement"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

var _ profile.Repository = (*ProfileRepository)(nil)

// ProfileRepository reads profiles outside trigger transactions.
type ProfileRepository struct {
	conn *Connection
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

// GetByUserID implements profile.Repository.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*profile.Profile, error) {
	p, err := scanProfile(r.conn.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM gamification_profiles WHERE user_id = $1`, userID))
	if IsNoRows(err) {
		return nil, shared.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return &p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

var (
	_ badge.Repository        = (*BadgeRepository)(nil)
	_ badge.CatalogRepository = (*BadgeRepository)(nil)
)

// BadgeRepository stores the badge catalog and reads earned badges.
type BadgeRepository struct {
	conn *Connection
}

// NewBadgeRepository creates a new BadgeRepository.
func NewBadgeRepository(conn *Connection) *BadgeRepository {
	return &BadgeRepository{conn: conn}
}

// ListEarned implements badge.Repository. Oldest first.
func (r *BadgeRepository) ListEarned(ctx context.Context, userID string) ([]badge.EarnedBadge, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, badge_id, COALESCE(event_id, ''), earned_at
		FROM earned_badges
		WHERE user_id = $1
		ORDER BY earned_at, badge_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list earned badges %s: %w", userID, err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (badge.EarnedBadge, error) {
		var eb badge.EarnedBadge
		err := row.Scan(&eb.ID, &eb.UserID, &eb.BadgeID, &eb.EventID, &eb.EarnedAt)
		return eb, err
	})
}

// ListRecords implements badge.CatalogRepository in insertion order.
func (r *BadgeRepository) ListRecords(ctx context.Context) ([]badge.Record, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, description, icon, badge_type, criteria, points_reward, is_active
		FROM badge_definitions
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list badge definitions: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (badge.Record, error) {
		var rec badge.Record
		var badgeType string
		var criteria []byte
		if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Icon, &badgeType,
			&criteria, &rec.PointsReward, &rec.IsActive); err != nil {
			return rec, err
		}
		rec.Type = badge.Type(badgeType)
		if len(criteria) > 0 {
			if err := json.Unmarshal(criteria, &rec.Criteria); err != nil {
				return rec, fmt.Errorf("decode criteria of %s: %w", rec.ID, err)
			}
		}
		return rec, nil
	})
}

// UpsertRecords implements badge.CatalogRepository. All records are written
// in one transaction.
func (r *BadgeRepository) UpsertRecords(ctx context.Context, records []badge.Record) error {
	if len(records) == 0 {
		return nil
	}

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			criteria, err := json.Marshal(rec.Criteria)
			if err != nil {
				return fmt.Errorf("encode criteria of %s: %w", rec.ID, err)
			}
			batch.Queue(`
				INSERT INTO badge_definitions (id, name, description, icon, badge_type, criteria, points_reward, is_active, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
				ON CONFLICT (id) DO UPDATE SET
					name = EXCLUDED.name,
					description = EXCLUDED.description,
					icon = EXCLUDED.icon,
					badge_type = EXCLUDED.badge_type,
					criteria = EXCLUDED.criteria,
					points_reward = EXCLUDED.points_reward,
					is_active = EXCLUDED.is_active,
					updated_at = NOW()
			`, rec.ID, rec.Name, rec.Description, rec.Icon, string(rec.Type), criteria, rec.PointsReward, rec.IsActive)
		}

		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for _, rec := range records {
			if _, err := br.Exec(); err != nil {
				return fmt.Errorf("upsert badge %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// CountAttendanceSince implements badge.AttendanceCounter for progress
// queries.
func (r *BadgeRepository) CountAttendanceSince(ctx context.Context, userID string, since time.Time) (int, error) {
	return countAttendance(ctx, r.conn, userID, since)
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

var _ achievement.Repository = (*AchievementRepository)(nil)

// AchievementRepository reads the achievement log.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// ListByUser implements achievement.Repository. Newest first; seq breaks
// ties between records of one trigger.
func (r *AchievementRepository) ListByUser(ctx context.Context, userID string, limit int) ([]achievement.Achievement, error) {
	query := `
		SELECT id, user_id, COALESCE(event_id, ''), kind, title, description, icon, data, achieved_at
		FROM achievements
		WHERE user_id = $1
		ORDER BY achieved_at DESC, seq DESC`
	args := []interface{}{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list achievements %s: %w", userID, err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (achievement.Achievement, error) {
		var a achievement.Achievement
		var kind string
		var data []byte
		if err := row.Scan(&a.ID, &a.UserID, &a.EventID, &kind, &a.Title, &a.Description, &a.Icon, &data, &a.AchievedAt); err != nil {
			return a, err
		}
		a.Kind = achievement.Kind(kind)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &a.Data); err != nil {
				return a, fmt.Errorf("decode achievement %s: %w", a.ID, err)
			}
		}
		return a, nil
	})
}
