// Package badge contains the badge catalog, the typed criteria variants and
// the evaluator that decides which badges a trigger newly unlocks.
package badge

import (
	"context"
	"strings"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// Type is the badge family. It selects the criteria variant.
type Type string

const (
	TypeAttendance  Type = "attendance"
	TypePunctuality Type = "punctuality"
	TypeStreak      Type = "streak"
	TypeNetworking  Type = "networking"
	TypeFeedback    Type = "feedback"
	TypeSpecial     Type = "special"
)

// Record is the raw catalog form of a badge, as seeded from YAML or read
// from storage. Criteria is kept as a free-form map at this boundary.
type Record struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Description  string         `yaml:"description" json:"description"`
	Icon         string         `yaml:"icon" json:"icon"`
	Type         Type           `yaml:"type" json:"type"`
	Criteria     map[string]any `yaml:"criteria" json:"criteria"`
	PointsReward int            `yaml:"points_reward" json:"points_reward"`
	IsActive     bool           `yaml:"is_active" json:"is_active"`
}

// Definition is a validated catalog entry with typed criteria.
type Definition struct {
	ID           string
	Name         string
	Description  string
	Icon         string
	Type         Type
	Criteria     Criteria
	PointsReward int
	IsActive     bool
}

// NewDefinition validates a record and decodes its criteria.
func NewDefinition(r Record) (Definition, error) {
	if strings.TrimSpace(r.ID) == "" {
		return Definition{}, shared.NewDomainError("badge", "Validate", shared.ErrInvalidID, "badge id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return Definition{}, shared.NewDomainError("badge", "Validate", shared.ErrInvalidInput, "badge name is required")
	}
	if r.PointsReward < 0 {
		return Definition{}, shared.ErrNegativeBadgeReward
	}
	t := Type(strings.ToLower(string(r.Type)))
	criteria, err := ParseCriteria(t, r.Criteria)
	if err != nil {
		return Definition{}, err
	}
	return Definition{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Icon:         r.Icon,
		Type:         t,
		Criteria:     criteria,
		PointsReward: r.PointsReward,
		IsActive:     r.IsActive,
	}, nil
}

// Record converts the definition back to its storage form.
func (d Definition) Record() Record {
	var raw map[string]any
	if d.Criteria != nil {
		raw = d.Criteria.Raw()
	}
	return Record{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		Icon:         d.Icon,
		Type:         d.Type,
		Criteria:     raw,
		PointsReward: d.PointsReward,
		IsActive:     d.IsActive,
	}
}

// EarnedBadge is the unique (user, badge) grant.
type EarnedBadge struct {
	ID       string
	UserID   string
	BadgeID  string
	EventID  string
	EarnedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// CatalogRepository loads and seeds badge definitions.
type CatalogRepository interface {
	ListRecords(ctx context.Context) ([]Record, error)
	UpsertRecords(ctx context.Context, records []Record) error
}

// Repository reads earned badges outside the trigger transaction.
type Repository interface {
	ListEarned(ctx context.Context, userID string) ([]EarnedBadge, error)
}
