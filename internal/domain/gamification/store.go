// Package gamification defines the transactional port the trigger dispatcher
// runs against. Every write of one trigger happens inside a single Tx while
// the user's exclusive lock is held, so a trigger either applies completely
// (profile, badges, achievements and the source marker) or not at all.
package gamification

import (
	"context"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/achievement"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
)

// Store serializes work per user.
type Store interface {
	// WithUserLock runs fn while holding the exclusive lock of userID.
	// Writes made through tx are committed only when fn returns nil.
	// Locks of different users are independent.
	WithUserLock(ctx context.Context, userID string, fn func(tx Tx) error) error
}

// Tx is the unit of work of one trigger.
type Tx interface {
	// LoadProfile returns the locked user's profile, or a fresh Bronze
	// profile created at now when none exists yet.
	LoadProfile(ctx context.Context, userID string, now time.Time) (profile.Profile, error)
	SaveProfile(ctx context.Context, p profile.Profile) error

	// IsProcessed re-reads the source marker under the lock.
	IsProcessed(ctx context.Context, kind trigger.Kind, sourceID string) (bool, error)
	// MarkProcessed stores the source record with gamification_processed set,
	// points_awarded and the credited user.
	MarkProcessed(ctx context.Context, src trigger.Source, userID string, points int) error

	EarnedBadgeIDs(ctx context.Context, userID string) (map[string]bool, error)
	// CreateEarnedBadge inserts the (user, badge) row. created is false when
	// the row already existed; no error is returned in that case.
	CreateEarnedBadge(ctx context.Context, eb badge.EarnedBadge) (created bool, err error)

	InsertAchievements(ctx context.Context, list []achievement.Achievement) error

	// CountAttendanceSince counts processed check-ins of the user whose event
	// date is on or after since, including ones marked in this Tx.
	CountAttendanceSince(ctx context.Context, userID string, since time.Time) (int, error)
}
