package query

import (
	"context"
	"errors"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BADGE PROGRESS QUERY
// Прогресс по каждому активному значку. Считается только для attendance и
// streak; остальные типы всегда 0.
// ══════════════════════════════════════════════════════════════════════════════

// GetBadgeProgressQuery содержит параметры запроса.
type GetBadgeProgressQuery struct {
	UserID string
}

// Validate проверяет корректность параметров запроса.
func (q GetBadgeProgressQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// BadgeProgressDTO is the progress toward one badge.
type BadgeProgressDTO struct {
	Badge           BadgeDTO `json:"badge"`
	Current         int      `json:"current"`
	Required        int      `json:"required"`
	ProgressPercent float64  `json:"progress_percent"`
	Earned          bool     `json:"earned"`
}

// GetBadgeProgressHandler обрабатывает запросы прогресса.
type GetBadgeProgressHandler struct {
	profiles  profile.Repository
	earned    badge.Repository
	counter   badge.AttendanceCounter
	catalog   CatalogProvider
	evaluator *badge.Evaluator
	now       func() time.Time
}

// NewGetBadgeProgressHandler создаёт обработчик. loc defines calendar days
// of windowed attendance badges.
func NewGetBadgeProgressHandler(
	profiles profile.Repository,
	earned badge.Repository,
	counter badge.AttendanceCounter,
	catalog CatalogProvider,
	loc *time.Location,
	now func() time.Time,
) *GetBadgeProgressHandler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &GetBadgeProgressHandler{
		profiles:  profiles,
		earned:    earned,
		counter:   counter,
		catalog:   catalog,
		evaluator: badge.NewEvaluator(loc),
		now:       now,
	}
}

// Handle выполняет запрос.
func (h *GetBadgeProgressHandler) Handle(ctx context.Context, query GetBadgeProgressQuery) ([]BadgeProgressDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetBadgeProgress", shared.ErrValidation, err.Error(), err)
	}

	p, _, err := loadProfile(ctx, h.profiles, query.UserID)
	if err != nil {
		return nil, err
	}

	list, err := h.earned.ListEarned(ctx, query.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "GetBadgeProgress", shared.ErrServiceUnavailable, "failed to list badges", err)
	}
	earned := make(map[string]bool, len(list))
	for _, eb := range list {
		earned[eb.BadgeID] = true
	}

	now := h.now()
	defs := h.catalog.Catalog().Active()
	out := make([]BadgeProgressDTO, 0, len(defs))
	for _, def := range defs {
		pr, err := h.evaluator.Progress(ctx, def, p, earned[def.ID], now, h.counter)
		if err != nil {
			return nil, shared.WrapError("query", "GetBadgeProgress", shared.ErrServiceUnavailable, "failed to count attendance", err)
		}
		out = append(out, BadgeProgressDTO{
			Badge:           NewBadgeDTO(def),
			Current:         pr.Current,
			Required:        pr.Required,
			ProgressPercent: pr.Percent,
			Earned:          pr.Earned,
		})
	}
	return out, nil
}
