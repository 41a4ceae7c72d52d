package badge

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA VARIANTS
// ══════════════════════════════════════════════════════════════════════════════

// Criteria is the typed form of a badge's criteria map. Exactly one variant
// exists per badge Type.
type Criteria interface {
	Type() Type
	// Raw returns the canonical key/value form stored with the definition.
	Raw() map[string]any
}

// AttendanceCriteria: events attended (all time or within a window).
type AttendanceCriteria struct {
	EventsRequired int
	TimePeriod     shared.Period
}

func (AttendanceCriteria) Type() Type { return TypeAttendance }
func (c AttendanceCriteria) Raw() map[string]any {
	return map[string]any{"events_required": c.EventsRequired, "time_period": string(c.TimePeriod)}
}

// PunctualityCriteria: minutes early at check-in within [Min, Max] inclusive.
// A nil Max means no upper bound.
type PunctualityCriteria struct {
	MinMinutesEarly int
	MaxMinutesEarly *int
}

func (PunctualityCriteria) Type() Type { return TypePunctuality }
func (c PunctualityCriteria) Raw() map[string]any {
	raw := map[string]any{"min_minutes_early": c.MinMinutesEarly}
	if c.MaxMinutesEarly != nil {
		raw["max_minutes_early"] = *c.MaxMinutesEarly
	}
	return raw
}

// StreakKind selects which streak counter a streak badge compares.
type StreakKind string

const (
	StreakCurrent StreakKind = "current"
	StreakLongest StreakKind = "longest"
)

// StreakCriteria: current or longest streak reaching StreakRequired.
type StreakCriteria struct {
	StreakRequired int
	StreakType     StreakKind
}

func (StreakCriteria) Type() Type { return TypeStreak }
func (c StreakCriteria) Raw() map[string]any {
	return map[string]any{"streak_required": c.StreakRequired, "streak_type": string(c.StreakType)}
}

// NetworkingCriteria: total connections reaching ConnectionsRequired.
// Stored under the "events_for_networking" key.
type NetworkingCriteria struct {
	ConnectionsRequired int
}

func (NetworkingCriteria) Type() Type { return TypeNetworking }
func (c NetworkingCriteria) Raw() map[string]any {
	return map[string]any{"events_for_networking": c.ConnectionsRequired}
}

// FeedbackCriteria combines a cumulative submission milestone with optional
// quality signals of the current submission. Every configured condition must
// hold.
type FeedbackCriteria struct {
	SubmissionsRequired int
	MinRating           int
	MinTextLength       int
}

func (FeedbackCriteria) Type() Type { return TypeFeedback }
func (c FeedbackCriteria) Raw() map[string]any {
	raw := map[string]any{}
	if c.SubmissionsRequired > 0 {
		raw["submissions_required"] = c.SubmissionsRequired
	}
	if c.MinRating > 0 {
		raw["min_rating"] = c.MinRating
	}
	if c.MinTextLength > 0 {
		raw["min_text_length"] = c.MinTextLength
	}
	return raw
}

// isQualitySignal reports whether the badge depends on the content of the
// current submission rather than only on the running count.
func (c FeedbackCriteria) isQualitySignal() bool {
	return c.MinRating > 0 || c.MinTextLength > 0
}

// SpecialCriteria: attended an event that matches the configured attributes.
type SpecialCriteria struct {
	EventTag string
	VIPOnly  bool
}

func (SpecialCriteria) Type() Type { return TypeSpecial }
func (c SpecialCriteria) Raw() map[string]any {
	raw := map[string]any{}
	if c.EventTag != "" {
		raw["event_tag"] = c.EventTag
	}
	if c.VIPOnly {
		raw["vip_only"] = true
	}
	return raw
}

// ══════════════════════════════════════════════════════════════════════════════
// PARSING
// ══════════════════════════════════════════════════════════════════════════════

func criteriaError(t Type, msg string) error {
	return shared.NewDomainError("badge", "ParseCriteria", shared.ErrInvalidCriteria, fmt.Sprintf("%s: %s", t, msg))
}

// ParseCriteria decodes a raw criteria map for the given badge type.
// Any malformed or missing required key yields an error matching
// shared.ErrInvalidCriteria.
func ParseCriteria(t Type, raw map[string]any) (Criteria, error) {
	switch t {
	case TypeAttendance:
		n, err := requiredPositive(t, raw, "events_required")
		if err != nil {
			return nil, err
		}
		period := shared.PeriodAllTime
		if v, ok := raw["time_period"]; ok && v != nil {
			s, ok := v.(string)
			if !ok {
				return nil, criteriaError(t, "time_period must be a string")
			}
			if period, err = shared.ParsePeriod(s); err != nil {
				return nil, criteriaError(t, "unknown time_period "+strconv.Quote(s))
			}
		}
		return AttendanceCriteria{EventsRequired: n, TimePeriod: period}, nil

	case TypePunctuality:
		minEarly, _, err := optionalInt(t, raw, "min_minutes_early")
		if err != nil {
			return nil, err
		}
		if minEarly < 0 {
			return nil, criteriaError(t, "min_minutes_early must be non-negative")
		}
		c := PunctualityCriteria{MinMinutesEarly: minEarly}
		if maxEarly, ok, err := optionalInt(t, raw, "max_minutes_early"); err != nil {
			return nil, err
		} else if ok {
			if maxEarly < minEarly {
				return nil, criteriaError(t, "max_minutes_early below min_minutes_early")
			}
			c.MaxMinutesEarly = &maxEarly
		}
		return c, nil

	case TypeStreak:
		n, err := requiredPositive(t, raw, "streak_required")
		if err != nil {
			return nil, err
		}
		kind := StreakCurrent
		if v, ok := raw["streak_type"]; ok && v != nil {
			s, _ := v.(string)
			switch StreakKind(strings.ToLower(s)) {
			case StreakCurrent:
			case StreakLongest:
				kind = StreakLongest
			default:
				return nil, criteriaError(t, "streak_type must be current or longest")
			}
		}
		return StreakCriteria{StreakRequired: n, StreakType: kind}, nil

	case TypeNetworking:
		n, err := requiredPositive(t, raw, "events_for_networking")
		if err != nil {
			return nil, err
		}
		return NetworkingCriteria{ConnectionsRequired: n}, nil

	case TypeFeedback:
		c := FeedbackCriteria{}
		var err error
		if c.SubmissionsRequired, _, err = optionalInt(t, raw, "submissions_required"); err != nil {
			return nil, err
		}
		if c.MinRating, _, err = optionalInt(t, raw, "min_rating"); err != nil {
			return nil, err
		}
		if c.MinTextLength, _, err = optionalInt(t, raw, "min_text_length"); err != nil {
			return nil, err
		}
		if c.SubmissionsRequired < 0 || c.MinRating < 0 || c.MinTextLength < 0 {
			return nil, criteriaError(t, "thresholds must be non-negative")
		}
		if c.MinRating > 5 {
			return nil, criteriaError(t, "min_rating must be at most 5")
		}
		if c.SubmissionsRequired == 0 && !c.isQualitySignal() {
			return nil, criteriaError(t, "at least one of submissions_required, min_rating, min_text_length is required")
		}
		return c, nil

	case TypeSpecial:
		c := SpecialCriteria{}
		if v, ok := raw["event_tag"]; ok && v != nil {
			s, ok := v.(string)
			if !ok {
				return nil, criteriaError(t, "event_tag must be a string")
			}
			c.EventTag = strings.TrimSpace(s)
		}
		if v, ok := raw["vip_only"]; ok && v != nil {
			b, ok := v.(bool)
			if !ok {
				return nil, criteriaError(t, "vip_only must be a boolean")
			}
			c.VIPOnly = b
		}
		if c.EventTag == "" && !c.VIPOnly {
			return nil, criteriaError(t, "event_tag or vip_only is required")
		}
		return c, nil

	default:
		return nil, shared.WrapError("badge", "ParseCriteria", shared.ErrInvalidCriteria, "unknown badge type "+strconv.Quote(string(t)), shared.ErrUnknownBadgeType)
	}
}

func requiredPositive(t Type, raw map[string]any, key string) (int, error) {
	n, ok, err := optionalInt(t, raw, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, criteriaError(t, key+" is required")
	}
	if n < 1 {
		return 0, criteriaError(t, key+" must be at least 1")
	}
	return n, nil
}

// optionalInt reads an integer that may arrive as int (YAML), float64 (JSON)
// or a numeric string.
func optionalInt(t Type, raw map[string]any, key string) (int, bool, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case int:
		return n, true, nil
	case int32:
		return int(n), true, nil
	case int64:
		return int(n), true, nil
	case uint64:
		return int(n), true, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false, criteriaError(t, key+" must be an integer")
		}
		return int(n), true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false, criteriaError(t, key+" must be an integer")
		}
		return i, true, nil
	default:
		return 0, false, criteriaError(t, fmt.Sprintf("%s has unsupported type %T", key, v))
	}
}
