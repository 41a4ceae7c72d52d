package badge

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
)

type fakeCounter struct {
	n     int
	err   error
	since time.Time
}

func (f *fakeCounter) CountAttendanceSince(_ context.Context, _ string, since time.Time) (int, error) {
	f.since = since
	return f.n, f.err
}

func mustDef(t *testing.T, r Record) Definition {
	t.Helper()
	r.IsActive = true
	if r.Name == "" {
		r.Name = r.ID
	}
	d, err := NewDefinition(r)
	require.NoError(t, err)
	return d
}

func intPtr(v int) *int { return &v }

func TestParseCriteria_Valid(t *testing.T) {
	c, err := ParseCriteria(TypeAttendance, map[string]any{"events_required": 5, "time_period": "monthly"})
	require.NoError(t, err)
	assert.Equal(t, AttendanceCriteria{EventsRequired: 5, TimePeriod: shared.PeriodMonthly}, c)

	// JSON numbers arrive as float64.
	c, err = ParseCriteria(TypeStreak, map[string]any{"streak_required": float64(7), "streak_type": "longest"})
	require.NoError(t, err)
	assert.Equal(t, StreakCriteria{StreakRequired: 7, StreakType: StreakLongest}, c)

	c, err = ParseCriteria(TypePunctuality, map[string]any{"min_minutes_early": 15, "max_minutes_early": 60})
	require.NoError(t, err)
	assert.Equal(t, 60, *c.(PunctualityCriteria).MaxMinutesEarly)

	c, err = ParseCriteria(TypeNetworking, map[string]any{"events_for_networking": "10"})
	require.NoError(t, err)
	assert.Equal(t, NetworkingCriteria{ConnectionsRequired: 10}, c)

	c, err = ParseCriteria(TypeSpecial, map[string]any{"vip_only": true})
	require.NoError(t, err)
	assert.Equal(t, SpecialCriteria{VIPOnly: true}, c)
}

func TestParseCriteria_Invalid(t *testing.T) {
	cases := []struct {
		typ Type
		raw map[string]any
	}{
		{TypeAttendance, map[string]any{}},
		{TypeAttendance, map[string]any{"events_required": 0}},
		{TypeAttendance, map[string]any{"events_required": 3, "time_period": "fortnightly"}},
		{TypeStreak, map[string]any{"streak_required": 2.5}},
		{TypeStreak, map[string]any{"streak_required": 3, "streak_type": "best"}},
		{TypePunctuality, map[string]any{"min_minutes_early": 30, "max_minutes_early": 10}},
		{TypeNetworking, map[string]any{"events_for_networking": []int{1}}},
		{TypeFeedback, map[string]any{}},
		{TypeSpecial, map[string]any{"event_tag": 5}},
		{Type("karma"), map[string]any{"x": 1}},
	}
	for _, tc := range cases {
		_, err := ParseCriteria(tc.typ, tc.raw)
		assert.ErrorIs(t, err, shared.ErrInvalidCriteria, "%s %v", tc.typ, tc.raw)
	}
}

func TestBuildCatalog_SkipsInvalid(t *testing.T) {
	records := []Record{
		{ID: "b1", Name: "First Steps", Type: TypeAttendance, Criteria: map[string]any{"events_required": 1}, IsActive: true},
		{ID: "b2", Name: "Broken", Type: TypeStreak, Criteria: map[string]any{"streak_required": "x"}, IsActive: true},
		{ID: "b3", Name: "first steps", Type: TypeStreak, Criteria: map[string]any{"streak_required": 3}, IsActive: true},
		{ID: "b4", Name: "Retired", Type: TypeStreak, Criteria: map[string]any{"streak_required": 3}, IsActive: false},
	}

	cat, invalid := BuildCatalog(records)

	assert.Equal(t, 2, cat.Len())
	require.Len(t, invalid, 2)
	assert.Equal(t, "b2", invalid[0].ID)
	assert.Equal(t, "b3", invalid[1].ID)
	assert.Len(t, cat.Active(), 1)
	_, ok := cat.Get("b4")
	assert.True(t, ok)
}

func TestLoadRecordsYAML(t *testing.T) {
	src := `
badges:
  - id: early-bird
    name: Early Bird
    description: Arrive 30 minutes early
    icon: "🐦"
    type: punctuality
    criteria:
      min_minutes_early: 30
    points_reward: 20
    is_active: true
  - id: regular
    name: Regular
    type: attendance
    criteria: {events_required: 5}
    points_reward: 25
    is_active: true
`
	records, err := LoadRecordsYAML(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, records, 2)

	cat, invalid := BuildCatalog(records)
	assert.Empty(t, invalid)
	def, ok := cat.Get("early-bird")
	require.True(t, ok)
	assert.Equal(t, PunctualityCriteria{MinMinutesEarly: 30}, def.Criteria)
	assert.Equal(t, 20, def.PointsReward)

	_, err = LoadRecordsYAML(strings.NewReader("badges:\n  - id: x\n    colour: red\n"))
	assert.Error(t, err)
}

func TestEvaluate_PerType(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 15, 18, 0, 0, 0, time.UTC)
	e := NewEvaluator(nil)

	p := profile.Empty("u1")
	p.TotalEventsAttended = 5
	p.CurrentStreak = 2
	p.LongestStreak = 7
	p.TotalConnections = 10
	p.TotalFeedback = 1

	defs := []Definition{
		mustDef(t, Record{ID: "attend-5", Type: TypeAttendance, Criteria: map[string]any{"events_required": 5}}),
		mustDef(t, Record{ID: "attend-6", Type: TypeAttendance, Criteria: map[string]any{"events_required": 6}}),
		mustDef(t, Record{ID: "early", Type: TypePunctuality, Criteria: map[string]any{"min_minutes_early": 15, "max_minutes_early": 30}}),
		mustDef(t, Record{ID: "streak-cur", Type: TypeStreak, Criteria: map[string]any{"streak_required": 7}}),
		mustDef(t, Record{ID: "streak-long", Type: TypeStreak, Criteria: map[string]any{"streak_required": 7, "streak_type": "longest"}}),
		mustDef(t, Record{ID: "net-10", Type: TypeNetworking, Criteria: map[string]any{"events_for_networking": 10}}),
		mustDef(t, Record{ID: "vip", Type: TypeSpecial, Criteria: map[string]any{"vip_only": true}}),
		mustDef(t, Record{ID: "feedback-1", Type: TypeFeedback, Criteria: map[string]any{"submissions_required": 1}}),
	}

	ec := Context{
		Kind:         trigger.KindCheckIn,
		UserID:       "u1",
		Profile:      p,
		Event:        &trigger.Event{ID: "e1", Tags: []string{"VIP"}},
		MinutesEarly: intPtr(30),
		Now:          now,
	}

	res, err := e.Evaluate(ctx, ec, defs, map[string]bool{"net-10": true}, nil)
	require.NoError(t, err)

	var ids []string
	for _, d := range res.Qualified {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"attend-5", "early", "streak-long", "vip", "feedback-1"}, ids)
	assert.Empty(t, res.Skipped)
}

func TestEvaluate_FeedbackQualitySignal(t *testing.T) {
	e := NewEvaluator(nil)
	def := mustDef(t, Record{ID: "insightful", Type: TypeFeedback, Criteria: map[string]any{"min_rating": 4, "min_text_length": 100}})
	p := profile.Empty("u1")
	p.TotalFeedback = 1

	ec := Context{
		Kind:     trigger.KindFeedback,
		UserID:   "u1",
		Profile:  p,
		Feedback: &profile.FeedbackInput{OverallRating: 5, FreeText: []string{strings.Repeat("x", 120)}},
	}
	res, err := e.Evaluate(context.Background(), ec, []Definition{def}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, res.Qualified, 1)

	ec.Feedback = &profile.FeedbackInput{OverallRating: 5, FreeText: []string{"short"}}
	res, err = e.Evaluate(context.Background(), ec, []Definition{def}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Qualified)

	ec.Kind = trigger.KindCheckIn
	ec.Feedback = nil
	res, err = e.Evaluate(context.Background(), ec, []Definition{def}, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Qualified)
}

func TestEvaluate_WindowedAttendance(t *testing.T) {
	now := time.Date(2024, 5, 15, 18, 0, 0, 0, time.UTC)
	e := NewEvaluator(nil)
	def := mustDef(t, Record{ID: "monthly-3", Type: TypeAttendance, Criteria: map[string]any{"events_required": 3, "time_period": "monthly"}})
	p := profile.Empty("u1")
	p.TotalEventsAttended = 40

	counter := &fakeCounter{n: 2}
	res, err := e.Evaluate(context.Background(), Context{UserID: "u1", Profile: p, Now: now}, []Definition{def}, nil, counter)
	require.NoError(t, err)
	assert.Empty(t, res.Qualified)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), counter.since)

	counter.n = 3
	res, err = e.Evaluate(context.Background(), Context{UserID: "u1", Profile: p, Now: now}, []Definition{def}, nil, counter)
	require.NoError(t, err)
	assert.Len(t, res.Qualified, 1)

	counter.err = errors.New("db down")
	_, err = e.Evaluate(context.Background(), Context{UserID: "u1", Profile: p, Now: now}, []Definition{def}, nil, counter)
	assert.Error(t, err)
}

func TestEvaluate_SkipsMismatchedCriteria(t *testing.T) {
	e := NewEvaluator(nil)
	broken := Definition{ID: "broken", Name: "Broken", Type: TypeStreak, Criteria: NetworkingCriteria{ConnectionsRequired: 1}, IsActive: true}
	good := mustDef(t, Record{ID: "net-1", Type: TypeNetworking, Criteria: map[string]any{"events_for_networking": 1}})
	p := profile.Empty("u1")
	p.TotalConnections = 1

	res, err := e.Evaluate(context.Background(), Context{Kind: trigger.KindConnection, Profile: p}, []Definition{broken, good}, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Skipped, 1)
	assert.ErrorIs(t, res.Skipped[0].Err, shared.ErrInvalidCriteria)
	require.Len(t, res.Qualified, 1)
	assert.Equal(t, "net-1", res.Qualified[0].ID)
}

func TestProgress(t *testing.T) {
	e := NewEvaluator(nil)
	p := profile.Empty("u1")
	p.TotalEventsAttended = 3
	p.CurrentStreak = 9

	attend := mustDef(t, Record{ID: "a", Type: TypeAttendance, Criteria: map[string]any{"events_required": 8}})
	streak := mustDef(t, Record{ID: "s", Type: TypeStreak, Criteria: map[string]any{"streak_required": 7}})
	net := mustDef(t, Record{ID: "n", Type: TypeNetworking, Criteria: map[string]any{"events_for_networking": 1}})

	pr, err := e.Progress(context.Background(), attend, p, false, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, 37.5, pr.Percent)

	pr, err = e.Progress(context.Background(), streak, p, true, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, pr.Percent)
	assert.True(t, pr.Earned)

	pr, err = e.Progress(context.Background(), net, p, false, time.Now(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pr.Percent)

	assert.Equal(t, 33.3, ProgressPercent(1, 3))
	assert.Equal(t, 0.0, ProgressPercent(5, 0))
}

func TestSeedCatalogIsValid(t *testing.T) {
	f, err := os.Open("../../../configs/badges.yaml")
	require.NoError(t, err)
	defer f.Close()

	records, err := LoadRecordsYAML(f)
	require.NoError(t, err)

	c, invalid := BuildCatalog(records)
	assert.Empty(t, invalid)
	assert.Equal(t, len(records), c.Len())

	types := map[Type]bool{}
	for _, d := range c.All() {
		types[d.Type] = true
	}
	for _, want := range []Type{TypeAttendance, TypePunctuality, TypeStreak, TypeNetworking, TypeFeedback, TypeSpecial} {
		assert.True(t, types[want], "seed catalog has no %s badge", want)
	}
}
