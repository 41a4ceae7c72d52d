package profile

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORING RULES
// ══════════════════════════════════════════════════════════════════════════════

// Tier awards Bonus once the measured value reaches AtLeast.
type Tier struct {
	AtLeast int
	Bonus   int
}

// ScoringRules holds every point constant used by the trigger dispatcher.
type ScoringRules struct {
	CheckInBase int
	// EarlyTiers and StreakTiers are ordered from the highest threshold down;
	// the first matching tier wins.
	EarlyTiers  []Tier
	StreakTiers []Tier

	FeedbackBase            int
	FeedbackDetailMinChars  int
	FeedbackDetailBonus     int
	FeedbackRatingThreshold int
	FeedbackRatingBonus     int
	FeedbackNPSThreshold    int
	FeedbackNPSBonus        int
	FeedbackRecommendBonus  int
	FeedbackBonusCap        int

	// ConnectionPoints applies when the event does not configure its own amount.
	ConnectionPoints int
	// ConnectionDailyCap is the number of rewarded connections per user per
	// calendar day. Zero or less disables the cap.
	ConnectionDailyCap int
}

// DefaultScoringRules returns the standard point table.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		CheckInBase: 10,
		EarlyTiers:  []Tier{{AtLeast: 30, Bonus: 5}, {AtLeast: 15, Bonus: 3}},
		StreakTiers: []Tier{{AtLeast: 7, Bonus: 10}, {AtLeast: 3, Bonus: 5}},

		FeedbackBase:            15,
		FeedbackDetailMinChars:  50,
		FeedbackDetailBonus:     5,
		FeedbackRatingThreshold: 4,
		FeedbackRatingBonus:     3,
		FeedbackNPSThreshold:    9,
		FeedbackNPSBonus:        5,
		FeedbackRecommendBonus:  3,
		FeedbackBonusCap:        15,

		ConnectionPoints:   5,
		ConnectionDailyCap: 10,
	}
}

func tierBonus(tiers []Tier, value int) int {
	for _, t := range tiers {
		if value >= t.AtLeast {
			return t.Bonus
		}
	}
	return 0
}

// ══════════════════════════════════════════════════════════════════════════════
// CHECK-IN
// ══════════════════════════════════════════════════════════════════════════════

// CheckInAward is the breakdown of points for one check-in.
type CheckInAward struct {
	Base        int
	EarlyBonus  int
	StreakBonus int
}

// Total returns the sum of all components.
func (a CheckInAward) Total() int {
	return a.Base + a.EarlyBonus + a.StreakBonus
}

// MinutesEarly returns whole minutes between check-in and event start.
// A nil start or a late arrival yields 0.
func MinutesEarly(eventStart *time.Time, checkInAt time.Time) int {
	if eventStart == nil {
		return 0
	}
	minutes := int(eventStart.Sub(checkInAt) / time.Minute)
	if minutes < 0 {
		return 0
	}
	return minutes
}

// CheckInPoints scores a check-in. streak is the value after the streak update.
func (r ScoringRules) CheckInPoints(minutesEarly, streak int) CheckInAward {
	return CheckInAward{
		Base:        r.CheckInBase,
		EarlyBonus:  tierBonus(r.EarlyTiers, minutesEarly),
		StreakBonus: tierBonus(r.StreakTiers, streak),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FEEDBACK
// ══════════════════════════════════════════════════════════════════════════════

// FeedbackInput is the scoring-relevant part of a feedback submission.
type FeedbackInput struct {
	OverallRating  int
	NPSScore       *int
	WouldRecommend *bool
	FreeText       []string
}

// LongestText returns the character count of the longest free-text answer.
func (f FeedbackInput) LongestText() int {
	longest := 0
	for _, t := range f.FreeText {
		if n := utf8.RuneCountInString(strings.TrimSpace(t)); n > longest {
			longest = n
		}
	}
	return longest
}

// FeedbackAward is the breakdown of points for one feedback submission.
type FeedbackAward struct {
	Base  int
	Bonus int
}

// Total returns the sum of all components.
func (a FeedbackAward) Total() int {
	return a.Base + a.Bonus
}

// FeedbackPoints scores a submission. The bonus is capped at FeedbackBonusCap.
func (r ScoringRules) FeedbackPoints(f FeedbackInput) FeedbackAward {
	bonus := 0
	for _, t := range f.FreeText {
		if utf8.RuneCountInString(strings.TrimSpace(t)) > r.FeedbackDetailMinChars {
			bonus += r.FeedbackDetailBonus
		}
	}
	if f.OverallRating >= r.FeedbackRatingThreshold {
		bonus += r.FeedbackRatingBonus
	}
	if f.NPSScore != nil && *f.NPSScore >= r.FeedbackNPSThreshold {
		bonus += r.FeedbackNPSBonus
	}
	if f.WouldRecommend != nil && *f.WouldRecommend {
		bonus += r.FeedbackRecommendBonus
	}
	if r.FeedbackBonusCap > 0 && bonus > r.FeedbackBonusCap {
		bonus = r.FeedbackBonusCap
	}
	return FeedbackAward{Base: r.FeedbackBase, Bonus: bonus}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION
// ══════════════════════════════════════════════════════════════════════════════

// ReserveConnectionReward reserves one slot of the daily networking cap on
// the profile and returns the points to award. perConnection <= 0 falls back
// to ConnectionPoints. When the cap is exhausted it returns 0 and leaves the
// counters untouched. The counters only track the latest day seen: a
// connection dated before it is awarded without reserving, so a late
// delivery never resets the current day. Callers must hold the profile lock.
func (r ScoringRules) ReserveConnectionReward(p *Profile, day time.Time, perConnection int) int {
	if perConnection <= 0 {
		perConnection = r.ConnectionPoints
	}

	date := timeutil.Date(day.Year(), day.Month(), day.Day())
	switch {
	case p.ConnectionRewardDate == nil || date.After(*p.ConnectionRewardDate):
		p.ConnectionRewardDate = &date
		p.ConnectionRewardsToday = 0
	case date.Before(*p.ConnectionRewardDate):
		return perConnection
	}

	if r.ConnectionDailyCap > 0 && p.ConnectionRewardsToday >= r.ConnectionDailyCap {
		return 0
	}

	p.ConnectionRewardsToday++
	return perConnection
}
