package badge

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

// Context carries everything a single trigger knows when badges are checked.
// Profile is the state after the streak and points updates of this trigger.
type Context struct {
	Kind    trigger.Kind
	UserID  string
	EventID string
	Profile profile.Profile
	// Event is nil when the event catalog has no entry for EventID.
	Event *trigger.Event
	// MinutesEarly is set for check-ins whose event has a start time.
	MinutesEarly *int
	// Feedback is set for feedback triggers.
	Feedback *profile.FeedbackInput
	Now      time.Time
}

// AttendanceCounter counts processed check-ins of a user on or after a date.
type AttendanceCounter interface {
	CountAttendanceSince(ctx context.Context, userID string, since time.Time) (int, error)
}

// Skipped reports a definition the evaluator could not test.
type Skipped struct {
	BadgeID string
	Err     error
}

// Result is the outcome of one evaluation pass.
type Result struct {
	Qualified []Definition
	Skipped   []Skipped
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// ══════════════════════════════════════════════════════════════════════════════

// Evaluator tests badge criteria against a trigger context.
type Evaluator struct {
	loc *time.Location
}

// NewEvaluator creates an evaluator. loc defines calendar days for windowed
// attendance criteria; nil means UTC.
func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{loc: loc}
}

// Evaluate scans active definitions not present in earned and returns those
// whose criteria hold. A definition without typed criteria is reported in
// Skipped and evaluation continues. A counter failure aborts the pass, since
// it means storage is unavailable.
func (e *Evaluator) Evaluate(ctx context.Context, ec Context, defs []Definition, earned map[string]bool, counter AttendanceCounter) (Result, error) {
	var res Result
	for _, def := range defs {
		if !def.IsActive || earned[def.ID] {
			continue
		}
		if def.Criteria == nil || def.Criteria.Type() != def.Type {
			res.Skipped = append(res.Skipped, Skipped{
				BadgeID: def.ID,
				Err:     shared.NewDomainError("badge", "Evaluate", shared.ErrInvalidCriteria, "criteria do not match badge type "+string(def.Type)),
			})
			continue
		}

		ok, err := e.qualifies(ctx, ec, def.Criteria, counter)
		if err != nil {
			return Result{}, fmt.Errorf("badge: evaluate %s: %w", def.ID, err)
		}
		if ok {
			res.Qualified = append(res.Qualified, def)
		}
	}
	return res, nil
}

func (e *Evaluator) qualifies(ctx context.Context, ec Context, criteria Criteria, counter AttendanceCounter) (bool, error) {
	p := ec.Profile

	switch c := criteria.(type) {
	case AttendanceCriteria:
		if !c.TimePeriod.IsBounded() {
			return p.TotalEventsAttended >= c.EventsRequired, nil
		}
		if counter == nil {
			return false, nil
		}
		since, _ := c.TimePeriod.Start(ec.Now, e.loc)
		n, err := counter.CountAttendanceSince(ctx, ec.UserID, since)
		if err != nil {
			return false, err
		}
		return n >= c.EventsRequired, nil

	case PunctualityCriteria:
		if ec.Kind != trigger.KindCheckIn || ec.MinutesEarly == nil {
			return false, nil
		}
		m := *ec.MinutesEarly
		if m < c.MinMinutesEarly {
			return false, nil
		}
		return c.MaxMinutesEarly == nil || m <= *c.MaxMinutesEarly, nil

	case StreakCriteria:
		value := p.CurrentStreak
		if c.StreakType == StreakLongest {
			value = p.LongestStreak
		}
		return value >= c.StreakRequired, nil

	case NetworkingCriteria:
		return p.TotalConnections >= c.ConnectionsRequired, nil

	case FeedbackCriteria:
		if c.SubmissionsRequired > 0 && p.TotalFeedback < c.SubmissionsRequired {
			return false, nil
		}
		if c.isQualitySignal() {
			// Quality badges look at the submission in hand only.
			if ec.Kind != trigger.KindFeedback || ec.Feedback == nil {
				return false, nil
			}
			if c.MinRating > 0 && ec.Feedback.OverallRating < c.MinRating {
				return false, nil
			}
			if c.MinTextLength > 0 && ec.Feedback.LongestText() < c.MinTextLength {
				return false, nil
			}
		}
		return true, nil

	case SpecialCriteria:
		if ec.Kind != trigger.KindCheckIn || ec.Event == nil {
			return false, nil
		}
		if c.VIPOnly && !ec.Event.IsVIP && !ec.Event.HasTag("vip") {
			return false, nil
		}
		if c.EventTag != "" && !ec.Event.HasTag(c.EventTag) {
			return false, nil
		}
		return true, nil

	default:
		return false, nil
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress is a user's advancement toward one badge.
type Progress struct {
	Badge    Definition
	Current  int
	Required int
	Percent  float64
	Earned   bool
}

// ProgressPercent returns min(100, current/required*100), rounded to one
// decimal place. A non-positive required yields 0.
func ProgressPercent(current, required int) float64 {
	if required <= 0 || current <= 0 {
		return 0
	}
	pct := float64(current) / float64(required) * 100
	if pct > 100 {
		pct = 100
	}
	return math.Round(pct*10) / 10
}

// Progress computes progress for attendance and streak badges. Other types
// report 0 since they have no generic counter. Earned is reported alongside
// and does not change the percentage.
func (e *Evaluator) Progress(ctx context.Context, def Definition, p profile.Profile, earned bool, now time.Time, counter AttendanceCounter) (Progress, error) {
	pr := Progress{Badge: def, Earned: earned}

	switch c := def.Criteria.(type) {
	case AttendanceCriteria:
		pr.Required = c.EventsRequired
		pr.Current = p.TotalEventsAttended
		if c.TimePeriod.IsBounded() && counter != nil {
			since, _ := c.TimePeriod.Start(now, e.loc)
			n, err := counter.CountAttendanceSince(ctx, p.UserID, since)
			if err != nil {
				return Progress{}, err
			}
			pr.Current = n
		}
		pr.Percent = ProgressPercent(pr.Current, pr.Required)
	case StreakCriteria:
		pr.Required = c.StreakRequired
		pr.Current = p.CurrentStreak
		if c.StreakType == StreakLongest {
			pr.Current = p.LongestStreak
		}
		pr.Percent = ProgressPercent(pr.Current, pr.Required)
	}

	return pr, nil
}
