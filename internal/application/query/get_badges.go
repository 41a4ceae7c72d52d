package query

import (
	"context"
	"errors"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BADGES QUERY
// Список заработанных значков пользователя, от старых к новым.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogProvider exposes the badge catalog currently in use.
type CatalogProvider interface {
	Catalog() *badge.Catalog
}

// GetBadgesQuery содержит параметры запроса.
type GetBadgesQuery struct {
	UserID string
}

// Validate проверяет корректность параметров запроса.
func (q GetBadgesQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// BadgeDTO describes a badge definition.
type BadgeDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Icon         string `json:"icon"`
	Type         string `json:"type"`
	PointsReward int    `json:"points_reward"`
}

// NewBadgeDTO builds the DTO from a definition.
func NewBadgeDTO(d badge.Definition) BadgeDTO {
	return BadgeDTO{
		ID:           d.ID,
		Name:         d.Name,
		Description:  d.Description,
		Icon:         d.Icon,
		Type:         string(d.Type),
		PointsReward: d.PointsReward,
	}
}

// EarnedBadgeDTO is one earned badge.
type EarnedBadgeDTO struct {
	Badge    BadgeDTO  `json:"badge"`
	EventID  string    `json:"event_id,omitempty"`
	EarnedAt time.Time `json:"earned_at"`
}

// GetBadgesHandler обрабатывает запросы значков.
type GetBadgesHandler struct {
	earned  badge.Repository
	catalog CatalogProvider
}

// NewGetBadgesHandler создаёт обработчик.
func NewGetBadgesHandler(earned badge.Repository, catalog CatalogProvider) *GetBadgesHandler {
	return &GetBadgesHandler{earned: earned, catalog: catalog}
}

// Handle выполняет запрос.
func (h *GetBadgesHandler) Handle(ctx context.Context, query GetBadgesQuery) ([]EarnedBadgeDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetBadges", shared.ErrValidation, err.Error(), err)
	}

	list, err := h.earned.ListEarned(ctx, query.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetBadges", shared.ErrServiceUnavailable, "failed to list badges", err)
	}

	catalog := h.catalog.Catalog()
	out := make([]EarnedBadgeDTO, 0, len(list))
	for _, eb := range list {
		dto := EarnedBadgeDTO{Badge: BadgeDTO{ID: eb.BadgeID}, EventID: eb.EventID, EarnedAt: eb.EarnedAt}
		// Retired badges stay visible with their id only.
		if def, ok := catalog.Get(eb.BadgeID); ok {
			dto.Badge = NewBadgeDTO(def)
		}
		out = append(out, dto)
	}
	return out, nil
}
