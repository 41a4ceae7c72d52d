package postgres

import (
	"context"
	"fmt"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRIGGER SOURCE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

var _ trigger.Repository = (*TriggerRepository)(nil)

// TriggerRepository persists incoming source records. Saving is insert-only:
// a redelivered record returns the stored row with its marker, so the
// dispatcher's fast path sees earlier processing.
type TriggerRepository struct {
	conn *Connection
}

// NewTriggerRepository creates a new TriggerRepository.
func NewTriggerRepository(conn *Connection) *TriggerRepository {
	return &TriggerRepository{conn: conn}
}

// SaveCheckIn implements trigger.Repository.
func (r *TriggerRepository) SaveCheckIn(ctx context.Context, c *trigger.CheckIn) (*trigger.CheckIn, error) {
	if _, err := r.conn.Exec(ctx, `
		INSERT INTO check_ins (id, user_id, email, event_id, event_date, event_start_at, check_in_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, nullString(c.UserID), nullString(c.Email), c.EventID, c.EventDate, c.EventStartAt, c.CheckInAt); err != nil {
		return nil, fmt.Errorf("save check-in %s: %w", c.ID, err)
	}

	var out trigger.CheckIn
	var userID, email, processedBy *string
	err := r.conn.QueryRow(ctx, `
		SELECT id, user_id, email, event_id, event_date, event_start_at, check_in_at,
			gamification_processed, points_awarded, processed_user_id
		FROM check_ins WHERE id = $1
	`, c.ID).Scan(&out.ID, &userID, &email, &out.EventID, &out.EventDate, &out.EventStartAt, &out.CheckInAt,
		&out.GamificationProcessed, &out.PointsAwarded, &processedBy)
	if err != nil {
		return nil, fmt.Errorf("load check-in %s: %w", c.ID, err)
	}
	out.UserID, out.Email, out.ProcessedUserID = deref(userID), deref(email), deref(processedBy)
	return &out, nil
}

// SaveFeedback implements trigger.Repository.
func (r *TriggerRepository) SaveFeedback(ctx context.Context, f *trigger.Feedback) (*trigger.Feedback, error) {
	if _, err := r.conn.Exec(ctx, `
		INSERT INTO feedback_submissions (id, user_id, email, event_id, overall_rating, nps_score,
			would_recommend, free_text, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, f.ID, nullString(f.UserID), nullString(f.Email), f.EventID, f.OverallRating, f.NPSScore,
		f.WouldRecommend, freeText(f.FreeText), f.SubmittedAt); err != nil {
		return nil, fmt.Errorf("save feedback %s: %w", f.ID, err)
	}

	var out trigger.Feedback
	var userID, email, processedBy *string
	err := r.conn.QueryRow(ctx, `
		SELECT id, user_id, email, event_id, overall_rating, nps_score, would_recommend, free_text,
			submitted_at, gamification_processed, points_awarded, processed_user_id
		FROM feedback_submissions WHERE id = $1
	`, f.ID).Scan(&out.ID, &userID, &email, &out.EventID, &out.OverallRating, &out.NPSScore, &out.WouldRecommend,
		&out.FreeText, &out.SubmittedAt, &out.GamificationProcessed, &out.PointsAwarded, &processedBy)
	if err != nil {
		return nil, fmt.Errorf("load feedback %s: %w", f.ID, err)
	}
	out.UserID, out.Email, out.ProcessedUserID = deref(userID), deref(email), deref(processedBy)
	return &out, nil
}

// SaveConnection implements trigger.Repository.
func (r *TriggerRepository) SaveConnection(ctx context.Context, c *trigger.Connection) (*trigger.Connection, error) {
	if _, err := r.conn.Exec(ctx, `
		INSERT INTO connections (id, from_user_id, from_email, to_user_id, event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, nullString(c.FromUserID), nullString(c.FromEmail), c.ToUserID, c.EventID, c.CreatedAt); err != nil {
		return nil, fmt.Errorf("save connection %s: %w", c.ID, err)
	}

	var out trigger.Connection
	var fromUserID, fromEmail, processedBy *string
	err := r.conn.QueryRow(ctx, `
		SELECT id, from_user_id, from_email, to_user_id, event_id, created_at,
			gamification_processed, points_awarded, processed_user_id
		FROM connections WHERE id = $1
	`, c.ID).Scan(&out.ID, &fromUserID, &fromEmail, &out.ToUserID, &out.EventID, &out.CreatedAt,
		&out.GamificationProcessed, &out.PointsAwarded, &processedBy)
	if err != nil {
		return nil, fmt.Errorf("load connection %s: %w", c.ID, err)
	}
	out.FromUserID, out.FromEmail, out.ProcessedUserID = deref(fromUserID), deref(fromEmail), deref(processedBy)
	return &out, nil
}
