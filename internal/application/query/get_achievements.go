package query

import (
	"context"
	"errors"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/achievement"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// Лента достижений пользователя, новые первыми.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultAchievementsLimit = 20
	maxAchievementsLimit     = 200
)

// GetAchievementsQuery содержит параметры запроса.
type GetAchievementsQuery struct {
	UserID string
	Limit  int
}

// Validate проверяет корректность параметров запроса.
func (q *GetAchievementsQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultAchievementsLimit
	}
	if q.Limit > maxAchievementsLimit {
		q.Limit = maxAchievementsLimit
	}
	return nil
}

// AchievementDTO is one achievement log entry.
type AchievementDTO struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	EventID     string         `json:"event_id,omitempty"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Icon        string         `json:"icon"`
	Data        map[string]any `json:"data"`
	AchievedAt  time.Time      `json:"achieved_at"`
}

// GetAchievementsHandler обрабатывает запросы достижений.
type GetAchievementsHandler struct {
	repo         achievement.Repository
	defaultLimit int
}

// NewGetAchievementsHandler создаёт обработчик. defaultLimit applies when
// the query has no limit; non-positive means 20.
func NewGetAchievementsHandler(repo achievement.Repository, defaultLimit int) *GetAchievementsHandler {
	if defaultLimit <= 0 {
		defaultLimit = defaultAchievementsLimit
	}
	return &GetAchievementsHandler{repo: repo, defaultLimit: defaultLimit}
}

// Handle выполняет запрос.
func (h *GetAchievementsHandler) Handle(ctx context.Context, query GetAchievementsQuery) ([]AchievementDTO, error) {
	if query.Limit == 0 {
		query.Limit = h.defaultLimit
	}
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetAchievements", shared.ErrValidation, err.Error(), err)
	}

	list, err := h.repo.ListByUser(ctx, query.UserID, query.Limit)
	if err != nil {
		return nil, shared.WrapError("query", "GetAchievements", shared.ErrServiceUnavailable, "failed to list achievements", err)
	}

	out := make([]AchievementDTO, 0, len(list))
	for _, a := range list {
		out = append(out, AchievementDTO{
			ID:          a.ID,
			Kind:        string(a.Kind),
			EventID:     a.EventID,
			Title:       a.Title,
			Description: a.Description,
			Icon:        a.Icon,
			Data:        a.Data,
			AchievedAt:  a.AchievedAt,
		})
	}
	return out, nil
}
