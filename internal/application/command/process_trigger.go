// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/achievement"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/gamification"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS TRIGGER COMMAND
// Applies one check-in, feedback submission or networking connection to the
// user's gamification profile exactly once.
// ══════════════════════════════════════════════════════════════════════════════

// ProcessTriggerCommand wraps a source record.
type ProcessTriggerCommand struct {
	Source trigger.Source

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c ProcessTriggerCommand) Validate() error {
	if c.Source == nil {
		return errors.New("process_trigger: source is required")
	}
	return c.Source.Validate()
}

// ProcessStatus is the outcome of one Handle call.
type ProcessStatus string

const (
	// StatusProcessed - the trigger was applied and marked.
	StatusProcessed ProcessStatus = "processed"

	// StatusAlreadyProcessed - the marker was already set; nothing changed.
	StatusAlreadyProcessed ProcessStatus = "already_processed"

	// StatusSkipped - no account is linked to the trigger owner.
	StatusSkipped ProcessStatus = "skipped"

	// StatusFailed - the trigger was rolled back and stays unprocessed.
	StatusFailed ProcessStatus = "failed"
)

// ProcessTriggerResult contains the result of processing a trigger.
type ProcessTriggerResult struct {
	Status   ProcessStatus
	Kind     trigger.Kind
	SourceID string
	UserID   string

	// PointsAwarded are the trigger points stored on the source record.
	PointsAwarded int

	// BadgePoints is the sum of rewards of badges earned by this trigger.
	BadgePoints int

	Streak       profile.StreakChange
	Level        profile.LevelChange
	NewBadges    []badge.Definition
	Achievements []achievement.Achievement
	Profile      profile.Profile

	// Events contains domain events published after commit.
	Events []shared.Event

	ProcessedAt time.Time

	// Err is set together with StatusFailed.
	Err error
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// ProcessTriggerHandler is the trigger dispatcher.
type ProcessTriggerHandler struct {
	store     gamification.Store
	resolver  trigger.AccountResolver
	events    trigger.EventCatalog
	publisher shared.EventPublisher
	evaluator *badge.Evaluator
	recorder  *achievement.Recorder
	catalog   atomic.Pointer[badge.Catalog]
	log       *logger.Logger

	rules               profile.ScoringRules
	loc                 *time.Location
	badgesEnabled       bool
	achievementsEnabled bool
	now                 func() time.Time
}

// ProcessTriggerConfig contains configuration for the handler.
type ProcessTriggerConfig struct {
	Rules               profile.ScoringRules
	Location            *time.Location
	BadgesEnabled       bool
	AchievementsEnabled bool

	// Now overrides the clock in tests.
	Now func() time.Time
}

// DefaultProcessTriggerConfig returns default configuration.
func DefaultProcessTriggerConfig() ProcessTriggerConfig {
	return ProcessTriggerConfig{
		Rules:               profile.DefaultScoringRules(),
		Location:            time.UTC,
		BadgesEnabled:       true,
		AchievementsEnabled: true,
	}
}

// NewProcessTriggerHandler creates the dispatcher. catalog may be nil and
// replaced later with SetCatalog.
func NewProcessTriggerHandler(
	store gamification.Store,
	resolver trigger.AccountResolver,
	events trigger.EventCatalog,
	publisher shared.EventPublisher,
	catalog *badge.Catalog,
	log *logger.Logger,
	config ProcessTriggerConfig,
) *ProcessTriggerHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = func() time.Time { return time.Now().UTC() }
	}
	if publisher == nil {
		publisher = shared.NoopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if catalog == nil {
		catalog = badge.EmptyCatalog()
	}

	h := &ProcessTriggerHandler{
		store:               store,
		resolver:            resolver,
		events:              events,
		publisher:           publisher,
		evaluator:           badge.NewEvaluator(config.Location),
		recorder:            achievement.NewRecorder(),
		log:                 log.With(logger.Component("trigger_dispatcher")),
		rules:               config.Rules,
		loc:                 config.Location,
		badgesEnabled:       config.BadgesEnabled,
		achievementsEnabled: config.AchievementsEnabled,
		now:                 config.Now,
	}
	h.catalog.Store(catalog)
	return h
}

// SetCatalog atomically replaces the badge catalog used by later triggers.
func (h *ProcessTriggerHandler) SetCatalog(c *badge.Catalog) {
	if c == nil {
		c = badge.EmptyCatalog()
	}
	h.catalog.Store(c)
}

// Catalog returns the current badge catalog.
func (h *ProcessTriggerHandler) Catalog() *badge.Catalog {
	return h.catalog.Load()
}

// Process is the entry point for collaborators. Failures are logged and
// never returned; the result reports what happened.
func (h *ProcessTriggerHandler) Process(ctx context.Context, src trigger.Source) *ProcessTriggerResult {
	res, err := h.Handle(ctx, ProcessTriggerCommand{Source: src})
	if err == nil {
		return res
	}

	fields := []logger.Field{logger.Err(err)}
	if src != nil {
		fields = append(fields, logger.TriggerKind(src.Kind().String()), logger.SourceID(src.SourceID()))
	}
	if res != nil && res.UserID != "" {
		fields = append(fields, logger.UserID(res.UserID))
	}
	h.log.Ctx(ctx).Error("gamification trigger failed", fields...)

	if res == nil {
		res = &ProcessTriggerResult{}
		if src != nil {
			res.Kind, res.SourceID = src.Kind(), src.SourceID()
		}
	}
	res.Status = StatusFailed
	res.Err = err
	return res
}

// Handle executes the command. A nil error with StatusAlreadyProcessed or
// StatusSkipped means there was nothing to do. Any error leaves the source
// record unprocessed.
func (h *ProcessTriggerHandler) Handle(ctx context.Context, cmd ProcessTriggerCommand) (*ProcessTriggerResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("process_trigger: validation failed: %w", err)
	}
	src := cmd.Source

	res := &ProcessTriggerResult{Kind: src.Kind(), SourceID: src.SourceID()}

	// Fast path; re-checked under the lock.
	if src.IsProcessed() {
		res.Status = StatusAlreadyProcessed
		return res, nil
	}

	userID, err := h.resolver.ResolveUser(ctx, src.Owner())
	if err != nil {
		if shared.IsUserNotResolvable(err) {
			h.log.Ctx(ctx).Debug("trigger owner has no linked account",
				logger.TriggerKind(src.Kind().String()), logger.SourceID(src.SourceID()))
			res.Status = StatusSkipped
			return res, nil
		}
		return res, fmt.Errorf("process_trigger: resolve user: %w", err)
	}
	res.UserID = userID

	event, err := h.lookupEvent(ctx, src.EventRef())
	if err != nil {
		return res, err
	}

	now := h.now()
	var events []shared.Event

	err = h.store.WithUserLock(ctx, userID, func(tx gamification.Tx) error {
		// Reset per attempt so a retried closure never leaks partial state.
		events = nil
		*res = ProcessTriggerResult{Kind: src.Kind(), SourceID: src.SourceID(), UserID: userID}

		processed, err := tx.IsProcessed(ctx, src.Kind(), src.SourceID())
		if err != nil {
			return transient("check marker", err)
		}
		if processed {
			res.Status = StatusAlreadyProcessed
			return nil
		}

		events, err = h.apply(ctx, tx, src, userID, event, now, res)
		return err
	})
	if err != nil {
		return res, err
	}
	if res.Status == StatusAlreadyProcessed {
		return res, nil
	}

	src.MarkProcessed(userID, res.PointsAwarded)
	res.Status = StatusProcessed
	res.ProcessedAt = now
	res.Events = events

	for _, ev := range events {
		if perr := h.publisher.Publish(ev); perr != nil {
			h.log.Warn("failed to publish gamification event",
				logger.String("event_type", string(ev.EventType())), logger.UserID(userID), logger.Err(perr))
		}
	}

	h.log.Ctx(ctx).Info("trigger processed",
		logger.TriggerKind(src.Kind().String()),
		logger.SourceID(src.SourceID()),
		logger.UserID(userID),
		logger.Points(res.PointsAwarded),
		logger.Int("badge_points", res.BadgePoints),
		logger.Int("new_badges", len(res.NewBadges)),
		logger.Int("achievements", len(res.Achievements)),
	)
	return res, nil
}

func (h *ProcessTriggerHandler) lookupEvent(ctx context.Context, eventID string) (*trigger.Event, error) {
	if eventID == "" || h.events == nil {
		return nil, nil
	}
	e, err := h.events.GetEvent(ctx, eventID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, nil
		}
		return nil, transient("load event", err)
	}
	return e, nil
}

// apply runs steps 2 to 6 inside the user's transaction and returns the
// events to publish after commit.
func (h *ProcessTriggerHandler) apply(
	ctx context.Context,
	tx gamification.Tx,
	src trigger.Source,
	userID string,
	event *trigger.Event,
	now time.Time,
	res *ProcessTriggerResult,
) ([]shared.Event, error) {
	before, err := tx.LoadProfile(ctx, userID, now)
	if err != nil {
		return nil, transient("load profile", err)
	}
	after := before.Clone()

	ec := badge.Context{
		Kind:    src.Kind(),
		UserID:  userID,
		EventID: src.EventRef(),
		Event:   event,
		Now:     now,
	}
	occurredOn := timeutil.DateOf(src.OccurredAt(), h.loc)

	// ── Streak Tracker and scoring ───────────────────────────────────────────
	var points int
	switch s := src.(type) {
	case *trigger.CheckIn:
		occurredOn = timeutil.Date(s.EventDate.Date())
		after, res.Streak = profile.UpdateStreak(after, occurredOn)
		after.RecordAttendance()

		start := s.EventStartAt
		if start == nil && event != nil {
			start = event.StartAt
		}
		minutesEarly := 0
		if start != nil {
			minutesEarly = profile.MinutesEarly(start, s.CheckInAt)
			ec.MinutesEarly = &minutesEarly
		}
		points = h.rules.CheckInPoints(minutesEarly, after.CurrentStreak).Total()

	case *trigger.Feedback:
		after.RecordFeedback()
		input := profile.FeedbackInput{
			OverallRating:  s.OverallRating,
			NPSScore:       s.NPSScore,
			WouldRecommend: s.WouldRecommend,
			FreeText:       s.FreeText,
		}
		ec.Feedback = &input
		points = h.rules.FeedbackPoints(input).Total()

	case *trigger.Connection:
		after.RecordConnection()
		perConnection := 0
		if event != nil {
			perConnection = event.ConnectionPoints
		}
		points = h.rules.ReserveConnectionReward(&after, occurredOn, perConnection)

	default:
		return nil, shared.ErrUnknownTriggerKind
	}

	// ── Points Ledger ────────────────────────────────────────────────────────
	after, _, err = profile.AddPoints(after, points)
	if err != nil {
		return nil, err
	}
	res.PointsAwarded = points
	afterTrigger := after.TotalPoints

	if err := tx.MarkProcessed(ctx, src, userID, points); err != nil {
		return nil, transient("mark processed", err)
	}

	// ── Badge Evaluator ──────────────────────────────────────────────────────
	if h.badgesEnabled {
		after, err = h.awardBadges(ctx, tx, ec, after, now, res)
		if err != nil {
			return nil, err
		}
	}

	// ── Achievement Recorder ─────────────────────────────────────────────────
	if h.achievementsEnabled {
		res.Achievements = h.recorder.Detect(before, after, res.NewBadges, src.EventRef(), now)
		if len(res.Achievements) > 0 {
			if err := tx.InsertAchievements(ctx, res.Achievements); err != nil {
				return nil, transient("insert achievements", err)
			}
		}
	}

	after.Touch(now)
	if err := tx.SaveProfile(ctx, after); err != nil {
		return nil, transient("save profile", err)
	}
	res.Profile = after
	res.Level = profile.LevelChange{From: before.Level, To: after.Level}

	return h.collectEvents(src, userID, before, after, afterTrigger, occurredOn, now, res), nil
}

func (h *ProcessTriggerHandler) awardBadges(
	ctx context.Context,
	tx gamification.Tx,
	ec badge.Context,
	p profile.Profile,
	now time.Time,
	res *ProcessTriggerResult,
) (profile.Profile, error) {
	earned, err := tx.EarnedBadgeIDs(ctx, p.UserID)
	if err != nil {
		return p, transient("load earned badges", err)
	}

	ec.Profile = p
	outcome, err := h.evaluator.Evaluate(ctx, ec, h.catalog.Load().Active(), earned, tx)
	if err != nil {
		return p, transient("evaluate badges", err)
	}
	for _, sk := range outcome.Skipped {
		h.log.Warn("badge skipped: invalid criteria", logger.BadgeID(sk.BadgeID), logger.Err(sk.Err))
	}

	for _, def := range outcome.Qualified {
		created, err := tx.CreateEarnedBadge(ctx, badge.EarnedBadge{
			ID:       uuid.NewString(),
			UserID:   p.UserID,
			BadgeID:  def.ID,
			EventID:  ec.EventID,
			EarnedAt: now,
		})
		if err != nil {
			return p, transient("create earned badge", err)
		}
		if !created {
			continue
		}
		p, _, err = profile.AddPoints(p, def.PointsReward)
		if err != nil {
			return p, err
		}
		res.NewBadges = append(res.NewBadges, def)
		res.BadgePoints += def.PointsReward
	}
	return p, nil
}

func (h *ProcessTriggerHandler) collectEvents(
	src trigger.Source,
	userID string,
	before, after profile.Profile,
	afterTrigger int,
	occurredOn, now time.Time,
	res *ProcessTriggerResult,
) []shared.Event {
	var out []shared.Event
	eventID := src.EventRef()

	if res.Streak.Changed() {
		out = append(out, shared.NewStreakUpdatedEvent(userID, res.Streak.Previous, res.Streak.Current, after.LongestStreak, now))
	}
	if res.PointsAwarded > 0 {
		out = append(out, shared.NewPointsAwardedEvent(userID, res.PointsAwarded, afterTrigger, src.Kind().String(), eventID, now))
	}
	for _, b := range res.NewBadges {
		out = append(out, shared.NewBadgeEarnedEvent(userID, b.ID, b.Name, b.PointsReward, eventID, now))
	}
	if before.Level != after.Level {
		out = append(out, shared.NewLevelUpEvent(userID, string(before.Level), string(after.Level), after.TotalPoints, now))
	}
	for _, a := range res.Achievements {
		out = append(out, shared.NewAchievementRecordedEvent(userID, a.ID, a.Title, now))
	}
	out = append(out, shared.NewTriggerProcessedEvent(userID, src.Kind().String(), src.SourceID(),
		res.PointsAwarded+res.BadgePoints, occurredOn, now))
	return out
}

func transient(op string, err error) error {
	if errors.Is(err, shared.ErrTransientPersistence) {
		return err
	}
	return shared.WrapError("trigger", op, shared.ErrTransientPersistence, "persistence failure", err)
}
