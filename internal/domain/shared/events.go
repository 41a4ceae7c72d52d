// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. They are published after the trigger transaction commits.
const (
	// Profile events
	EventPointsAwarded  EventType = "points.awarded"
	EventLevelUp        EventType = "profile.level_up"
	EventStreakUpdated  EventType = "profile.streak_updated"
	EventProfileCreated EventType = "profile.created"

	// Badge and achievement events
	EventBadgeEarned         EventType = "badge.earned"
	EventAchievementRecorded EventType = "achievement.recorded"

	// Trigger lifecycle
	EventTriggerProcessed EventType = "trigger.processed"

	// Leaderboard events
	EventLeaderboardRebuilt EventType = "leaderboard.rebuilt"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Profile Events
// ═══════════════════════════════════════════════════════════════════════════

// PointsAwardedEvent is emitted when a trigger or a badge adds points.
type PointsAwardedEvent struct {
	BaseEvent
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
	Reason   string `json:"reason"`
	EventID  string `json:"event_id,omitempty"`
}

// Payload implements Event interface.
func (e PointsAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"reason":    e.Reason,
		"event_id":  e.EventID,
	}
}

// NewPointsAwardedEvent creates a new PointsAwardedEvent.
func NewPointsAwardedEvent(userID string, amount, newTotal int, reason, eventID string, at time.Time) PointsAwardedEvent {
	return PointsAwardedEvent{
		BaseEvent: NewBaseEvent(EventPointsAwarded, userID, at),
		Amount:    amount,
		NewTotal:  newTotal,
		Reason:    reason,
		EventID:   eventID,
	}
}

// LevelUpEvent is emitted when total points cross a level threshold.
type LevelUpEvent struct {
	BaseEvent
	From   string `json:"from"`
	To     string `json:"to"`
	Points int    `json:"points"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"from":   e.From,
		"to":     e.To,
		"points": e.Points,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(userID, from, to string, points int, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, at),
		From:      from,
		To:        to,
		Points:    points,
	}
}

// StreakUpdatedEvent is emitted when a check-in changes the streak.
type StreakUpdatedEvent struct {
	BaseEvent
	Previous int  `json:"previous"`
	Current  int  `json:"current"`
	Longest  int  `json:"longest"`
	Broken   bool `json:"broken"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous": e.Previous,
		"current":  e.Current,
		"longest":  e.Longest,
		"broken":   e.Broken,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID string, previous, current, longest int, at time.Time) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent: NewBaseEvent(EventStreakUpdated, userID, at),
		Previous:  previous,
		Current:   current,
		Longest:   longest,
		Broken:    previous > 1 && current == 1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge & Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeEarnedEvent is emitted once per newly created earned badge.
type BadgeEarnedEvent struct {
	BaseEvent
	BadgeID      string `json:"badge_id"`
	BadgeName    string `json:"badge_name"`
	PointsReward int    `json:"points_reward"`
	EventID      string `json:"event_id,omitempty"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"badge_id":      e.BadgeID,
		"badge_name":    e.BadgeName,
		"points_reward": e.PointsReward,
		"event_id":      e.EventID,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent.
func NewBadgeEarnedEvent(userID, badgeID, badgeName string, reward int, eventID string, at time.Time) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent:    NewBaseEvent(EventBadgeEarned, userID, at),
		BadgeID:      badgeID,
		BadgeName:    badgeName,
		PointsReward: reward,
		EventID:      eventID,
	}
}

// AchievementRecordedEvent is emitted for every appended achievement.
type AchievementRecordedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	Title         string `json:"title"`
}

// Payload implements Event interface.
func (e AchievementRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"title":          e.Title,
	}
}

// NewAchievementRecordedEvent creates a new AchievementRecordedEvent.
func NewAchievementRecordedEvent(userID, achievementID, title string, at time.Time) AchievementRecordedEvent {
	return AchievementRecordedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementRecorded, userID, at),
		AchievementID: achievementID,
		Title:         title,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Trigger & Leaderboard Events
// ═══════════════════════════════════════════════════════════════════════════

// TriggerProcessedEvent is emitted after a trigger commits.
type TriggerProcessedEvent struct {
	BaseEvent
	Kind          string    `json:"kind"`
	SourceID      string    `json:"source_id"`
	PointsAwarded int       `json:"points_awarded"`
	OccurredOn    time.Time `json:"occurred_on"`
}

// Payload implements Event interface.
func (e TriggerProcessedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"kind":           e.Kind,
		"source_id":      e.SourceID,
		"points_awarded": e.PointsAwarded,
		"occurred_on":    e.OccurredOn,
	}
}

// NewTriggerProcessedEvent creates a new TriggerProcessedEvent.
func NewTriggerProcessedEvent(userID, kind, sourceID string, points int, occurredOn, at time.Time) TriggerProcessedEvent {
	return TriggerProcessedEvent{
		BaseEvent:     NewBaseEvent(EventTriggerProcessed, userID, at),
		Kind:          kind,
		SourceID:      sourceID,
		PointsAwarded: points,
		OccurredOn:    occurredOn,
	}
}

// LeaderboardRebuiltEvent is emitted after a period snapshot is recomputed.
type LeaderboardRebuiltEvent struct {
	BaseEvent
	Period       string `json:"period"`
	Participants int    `json:"participants"`
}

// Payload implements Event interface.
func (e LeaderboardRebuiltEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"period":       e.Period,
		"participants": e.Participants,
	}
}

// NewLeaderboardRebuiltEvent creates a new LeaderboardRebuiltEvent.
func NewLeaderboardRebuiltEvent(period string, participants int, at time.Time) LeaderboardRebuiltEvent {
	return LeaderboardRebuiltEvent{
		BaseEvent:    NewBaseEvent(EventLeaderboardRebuilt, period, at),
		Period:       period,
		Participants: participants,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

// Publish implements EventPublisher.
func (NoopPublisher) Publish(Event) error { return nil }
