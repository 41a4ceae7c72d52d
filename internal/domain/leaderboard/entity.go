// Package leaderboard ranks users per period with deterministic tie-breaking.
//
// Лидерборд всегда пересчитывается целиком: ранг производный и не хранится
// отдельно от порядка записей.
package leaderboard

import (
	"fmt"
	"sort"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STANDING (input)
// ══════════════════════════════════════════════════════════════════════════════

// Standing is the raw per-user data a ranking is computed from.
// EventsInWindow and BadgesInWindow are the counts within the period window;
// for all_time they equal the lifetime counts.
type Standing struct {
	UserID              string
	TotalPoints         int
	CurrentStreak       int
	TotalEventsAttended int
	EventsInWindow      int
	BadgesInWindow      int
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY (output)
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one ranked row of a leaderboard.
type Entry struct {
	UserID         string        `json:"user_id"`
	Period         shared.Period `json:"period"`
	PeriodKey      time.Time     `json:"period_key"`
	EventsAttended int           `json:"events_attended"`
	PointsEarned   int           `json:"points_earned"`
	CurrentStreak  int           `json:"current_streak"`
	BadgesEarned   int           `json:"badges_earned"`
	Rank           shared.Rank   `json:"rank"`
}

// String возвращает строковое представление для логирования.
func (e Entry) String() string {
	return fmt.Sprintf("Entry{Rank: %d, User: %s, Events: %d, Points: %d, Streak: %d}",
		e.Rank, e.UserID, e.EventsAttended, e.PointsEarned, e.CurrentStreak)
}

// ══════════════════════════════════════════════════════════════════════════════
// ORDERING
// ══════════════════════════════════════════════════════════════════════════════

// Order ranks standings for a period.
//
// all_time: (total_points, current_streak, total_events_attended) desc.
// Bounded periods keep only users with events in the window and order by
// (events_in_window, total_points, current_streak) desc.
//
// Ties beyond these keys keep input order. Ranks are 1-based positions.
func Order(period shared.Period, key time.Time, standings []Standing) []Entry {
	rows := make([]Standing, 0, len(standings))
	for _, s := range standings {
		if period.IsBounded() && s.EventsInWindow <= 0 {
			continue
		}
		rows = append(rows, s)
	}

	if period.IsBounded() {
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i], rows[j]
			if a.EventsInWindow != b.EventsInWindow {
				return a.EventsInWindow > b.EventsInWindow
			}
			if a.TotalPoints != b.TotalPoints {
				return a.TotalPoints > b.TotalPoints
			}
			return a.CurrentStreak > b.CurrentStreak
		})
	} else {
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := rows[i], rows[j]
			if a.TotalPoints != b.TotalPoints {
				return a.TotalPoints > b.TotalPoints
			}
			if a.CurrentStreak != b.CurrentStreak {
				return a.CurrentStreak > b.CurrentStreak
			}
			return a.TotalEventsAttended > b.TotalEventsAttended
		})
	}

	entries := make([]Entry, len(rows))
	for i, s := range rows {
		events := s.EventsInWindow
		if !period.IsBounded() {
			events = s.TotalEventsAttended
		}
		entries[i] = Entry{
			UserID:         s.UserID,
			Period:         period,
			PeriodKey:      key,
			EventsAttended: events,
			PointsEarned:   s.TotalPoints,
			CurrentStreak:  s.CurrentStreak,
			BadgesEarned:   s.BadgesInWindow,
			Rank:           shared.Rank(i + 1),
		}
	}
	return entries
}
