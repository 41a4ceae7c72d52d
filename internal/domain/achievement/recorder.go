// Package achievement detects milestone crossings and produces the immutable
// achievement log entries shown in a user's history.
package achievement

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
)

// Kind classifies an achievement record.
type Kind string

const (
	KindStreak     Kind = "streak"
	KindAttendance Kind = "attendance"
	KindLevel      Kind = "level"
	KindBadge      Kind = "badge"
)

// Milestones that produce a record when hit exactly.
var (
	StreakMilestones = []int{3, 7, 14, 30}
	EventMilestones  = []int{1, 5, 10, 25, 50, 100}
)

// Achievement is an append-only log entry.
type Achievement struct {
	ID          string
	UserID      string
	EventID     string
	Kind        Kind
	Title       string
	Description string
	Icon        string
	Data        map[string]any
	AchievedAt  time.Time
}

// Repository reads a user's achievement history, newest first.
type Repository interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]Achievement, error)
}

// Recorder turns profile transitions into achievement records.
type Recorder struct {
	newID func() string
}

// NewRecorder creates a recorder that assigns random UUIDs.
func NewRecorder() *Recorder {
	return &Recorder{newID: uuid.NewString}
}

// Detect compares the profile before and after one trigger and returns the
// records to append. Streak and attendance milestones fire only when the
// counter lands exactly on a milestone value and actually moved; point
// milestones fire for every level threshold crossed. One record is added per
// newly earned badge.
func (r *Recorder) Detect(before, after profile.Profile, newBadges []badge.Definition, eventID string, at time.Time) []Achievement {
	var out []Achievement
	add := func(kind Kind, title, desc, icon string, data map[string]any) {
		out = append(out, Achievement{
			ID:          r.newID(),
			UserID:      after.UserID,
			EventID:     eventID,
			Kind:        kind,
			Title:       title,
			Description: desc,
			Icon:        icon,
			Data:        data,
			AchievedAt:  at,
		})
	}

	if after.CurrentStreak != before.CurrentStreak && slices.Contains(StreakMilestones, after.CurrentStreak) {
		n := after.CurrentStreak
		add(KindStreak,
			fmt.Sprintf("%d-Day Streak", n),
			fmt.Sprintf("Attended events on %d consecutive days.", n),
			"🔥",
			map[string]any{"streak": n, "previous_streak": before.CurrentStreak, "longest_streak": after.LongestStreak})
	}

	if after.TotalEventsAttended != before.TotalEventsAttended && slices.Contains(EventMilestones, after.TotalEventsAttended) {
		n := after.TotalEventsAttended
		title := fmt.Sprintf("%d Events Attended", n)
		desc := fmt.Sprintf("Checked in to %d events.", n)
		if n == 1 {
			title = "First Event"
			desc = "Checked in to your first event."
		}
		add(KindAttendance, title, desc, "🎟️", map[string]any{"total_events": n})
	}

	for _, threshold := range profile.CrossedThresholds(before.TotalPoints, after.TotalPoints) {
		level := profile.LevelFor(threshold)
		add(KindLevel,
			fmt.Sprintf("Reached %s", level),
			fmt.Sprintf("Earned %d points and reached the %s level.", threshold, level),
			levelIcon(level),
			map[string]any{"threshold": threshold, "total_points": after.TotalPoints, "level": string(level)})
	}

	for _, b := range newBadges {
		icon := b.Icon
		if icon == "" {
			icon = "🏅"
		}
		add(KindBadge,
			fmt.Sprintf("Badge Unlocked: %s", b.Name),
			b.Description,
			icon,
			map[string]any{"badge_id": b.ID, "badge_type": string(b.Type), "points_reward": b.PointsReward})
	}

	return out
}

func levelIcon(l profile.Level) string {
	switch l {
	case profile.LevelSilver:
		return "🥈"
	case profile.LevelGold:
		return "🥇"
	case profile.LevelPlatinum:
		return "💎"
	default:
		return "🥉"
	}
}
