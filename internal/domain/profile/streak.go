package profile

import (
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

// StreakOutcome describes what a qualifying date did to the streak.
type StreakOutcome string

const (
	StreakStarted   StreakOutcome = "started"
	StreakExtended  StreakOutcome = "extended"
	StreakReset     StreakOutcome = "reset"
	StreakSameDay   StreakOutcome = "same_day"
	StreakBackdated StreakOutcome = "backdated"
)

// StreakChange reports the streak transition for events and logging.
type StreakChange struct {
	Outcome  StreakOutcome
	Previous int
	Current  int
	DayGap   int
}

// Changed reports whether the current streak value moved.
func (c StreakChange) Changed() bool {
	return c.Previous != c.Current
}

// UpdateStreak применяет засчитанную дату к серии и возвращает новый профиль.
//
// Разница считается в календарных днях без ограничения снизу:
//   - первой даты нет: серия = 1
//   - разница 1: серия + 1
//   - разница > 1: серия = 1
//   - разница 0 или отрицательная: серия не меняется
//
// LongestStreak = max(LongestStreak, CurrentStreak); LastQualifyingDate
// всегда становится новой датой.
func UpdateStreak(p Profile, qualifyingDate time.Time) (Profile, StreakChange) {
	next := p.Clone()
	date := timeutil.Date(qualifyingDate.Year(), qualifyingDate.Month(), qualifyingDate.Day())
	change := StreakChange{Previous: p.CurrentStreak}

	if p.LastQualifyingDate == nil {
		next.CurrentStreak = 1
		change.Outcome = StreakStarted
	} else {
		days := timeutil.DaysBetween(*p.LastQualifyingDate, date)
		change.DayGap = days
		switch {
		case days == 1:
			next.CurrentStreak++
			change.Outcome = StreakExtended
		case days > 1:
			next.CurrentStreak = 1
			change.Outcome = StreakReset
		case days == 0:
			change.Outcome = StreakSameDay
		default:
			change.Outcome = StreakBackdated
		}
	}

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.LastQualifyingDate = &date
	change.Current = next.CurrentStreak

	return next, change
}
