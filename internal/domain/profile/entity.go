// Package profile contains the per-user gamification aggregate: points, streak,
// level and attendance counters, plus the pure rules that mutate it.
package profile

import (
	"context"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL
// ══════════════════════════════════════════════════════════════════════════════

// Level - уровень участника, чистая функция от общего количества очков.
type Level string

const (
	LevelBronze   Level = "Bronze"
	LevelSilver   Level = "Silver"
	LevelGold     Level = "Gold"
	LevelPlatinum Level = "Platinum"
)

// levelThresholds are ordered from the highest level down.
var levelThresholds = []struct {
	level     Level
	minPoints int
}{
	{LevelPlatinum, 1000},
	{LevelGold, 500},
	{LevelSilver, 200},
	{LevelBronze, 0},
}

// LevelFor возвращает уровень для заданного количества очков.
func LevelFor(points int) Level {
	for _, t := range levelThresholds {
		if points >= t.minPoints {
			return t.level
		}
	}
	return LevelBronze
}

// MinPoints возвращает порог очков для уровня.
func (l Level) MinPoints() int {
	for _, t := range levelThresholds {
		if t.level == l {
			return t.minPoints
		}
	}
	return 0
}

// Ordinal returns 0 for Bronze up to 3 for Platinum. Unknown levels return -1.
func (l Level) Ordinal() int {
	switch l {
	case LevelBronze:
		return 0
	case LevelSilver:
		return 1
	case LevelGold:
		return 2
	case LevelPlatinum:
		return 3
	default:
		return -1
	}
}

// IsValid checks the level is one of the known values.
func (l Level) IsValid() bool {
	return l.Ordinal() >= 0
}

// LevelThresholds returns the point values at which a new level is reached,
// ascending, excluding the Bronze floor.
func LevelThresholds() []int {
	return []int{LevelSilver.MinPoints(), LevelGold.MinPoints(), LevelPlatinum.MinPoints()}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile - агрегат геймификации пользователя. Один на пользователя,
// создаётся лениво и изменяется только движком.
type Profile struct {
	// UserID - идентификатор аккаунта.
	UserID string

	// CurrentStreak - текущая серия последовательных дней посещения.
	CurrentStreak int

	// LongestStreak - лучшая серия, никогда не уменьшается.
	LongestStreak int

	// LastQualifyingDate - дата последнего засчитанного посещения (nil до первого).
	LastQualifyingDate *time.Time

	// TotalEventsAttended - количество обработанных check-in.
	TotalEventsAttended int

	// TotalPoints - сумма очков, только растёт.
	TotalPoints int

	// Level - производный от TotalPoints.
	Level Level

	// TotalConnections - количество обработанных networking-связей.
	TotalConnections int

	// TotalFeedback - количество обработанных отзывов.
	TotalFeedback int

	// ConnectionRewardDate and ConnectionRewardsToday reserve against the
	// daily networking cap inside the profile transaction.
	ConnectionRewardDate   *time.Time
	ConnectionRewardsToday int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProfile creates an empty Bronze profile.
func NewProfile(userID string, now time.Time) (*Profile, error) {
	if userID == "" {
		return nil, shared.ErrEmptyUserID
	}
	return &Profile{
		UserID:    userID,
		Level:     LevelBronze,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Empty returns the zero-valued view of a user that has no profile yet.
// Queries use it instead of failing on missing profiles.
func Empty(userID string) Profile {
	return Profile{UserID: userID, Level: LevelBronze}
}

// Validate checks the aggregate invariants.
func (p Profile) Validate() error {
	if p.UserID == "" {
		return shared.ErrEmptyUserID
	}
	if p.CurrentStreak < 0 || p.LongestStreak < 0 || p.TotalEventsAttended < 0 ||
		p.TotalPoints < 0 || p.TotalConnections < 0 || p.TotalFeedback < 0 {
		return shared.NewDomainError("profile", "Validate", shared.ErrNegativeValue, "counters must be non-negative")
	}
	if p.LongestStreak < p.CurrentStreak {
		return shared.NewDomainError("profile", "Validate", shared.ErrValueOutOfRange, "longest streak below current streak")
	}
	if p.Level != LevelFor(p.TotalPoints) {
		return shared.NewDomainError("profile", "Validate", shared.ErrValueOutOfRange, "level does not match total points")
	}
	return nil
}

// RecordAttendance increments the attended events counter.
func (p *Profile) RecordAttendance() {
	p.TotalEventsAttended++
}

// RecordConnection increments the connection counter.
func (p *Profile) RecordConnection() {
	p.TotalConnections++
}

// RecordFeedback increments the feedback counter.
func (p *Profile) RecordFeedback() {
	p.TotalFeedback++
}

// Touch updates the modification time.
func (p *Profile) Touch(now time.Time) {
	p.UpdatedAt = now
}

// Clone returns a deep copy so callers can keep a "before" snapshot.
func (p Profile) Clone() Profile {
	c := p
	if p.LastQualifyingDate != nil {
		d := *p.LastQualifyingDate
		c.LastQualifyingDate = &d
	}
	if p.ConnectionRewardDate != nil {
		d := *p.ConnectionRewardDate
		c.ConnectionRewardDate = &d
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository provides read access to profiles outside the trigger transaction.
type Repository interface {
	// GetByUserID returns shared.ErrProfileNotFound when the user has no profile.
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
}
