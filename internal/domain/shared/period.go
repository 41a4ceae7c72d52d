package shared

import (
	"strings"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

// Period is a ranking or counting window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodYearly  Period = "yearly"
	PeriodAllTime Period = "all_time"
)

// AllPeriods returns every period, bounded ones first.
func AllPeriods() []Period {
	return []Period{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly, PeriodAllTime}
}

// ParsePeriod parses a period name. "" and "all" map to all_time.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodYearly, PeriodAllTime:
		return p, nil
	case "", "all", "alltime":
		return PeriodAllTime, nil
	default:
		return "", WrapError("leaderboard", "ParsePeriod", ErrInvalidInput, "unknown leaderboard period", ErrUnknownPeriod)
	}
}

// IsBounded reports whether the period has a start date.
func (p Period) IsBounded() bool {
	return p != PeriodAllTime
}

// String implements fmt.Stringer.
func (p Period) String() string {
	return string(p)
}

// epochKey is the period key stored for all_time snapshots.
var epochKey = timeutil.Date(1970, time.January, 1)

// Start returns the first calendar date of the window containing now, as
// observed in loc. For all_time it returns the zero time and false.
func (p Period) Start(now time.Time, loc *time.Location) (time.Time, bool) {
	d := timeutil.DateOf(now, loc)
	switch p {
	case PeriodDaily:
		return d, true
	case PeriodWeekly:
		return timeutil.StartOfWeek(d), true
	case PeriodMonthly:
		return timeutil.StartOfMonth(d), true
	case PeriodYearly:
		return timeutil.StartOfYear(d), true
	default:
		return time.Time{}, false
	}
}

// Key returns the date that identifies the window containing now.
func (p Period) Key(now time.Time, loc *time.Location) time.Time {
	if start, ok := p.Start(now, loc); ok {
		return start
	}
	return epochKey
}

// Contains reports whether the calendar date falls inside the window that
// contains now.
func (p Period) Contains(date, now time.Time, loc *time.Location) bool {
	start, ok := p.Start(now, loc)
	if !ok {
		return true
	}
	return !timeutil.DateOf(date, loc).Before(start)
}
