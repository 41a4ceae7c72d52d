package query

import (
	"context"
	"errors"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER RANK QUERY
// Позиция пользователя в лидерборде периода. Nil, если пользователь не ранжирован.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserRankQuery содержит параметры запроса позиции.
type GetUserRankQuery struct {
	UserID string
	Period string
}

// Validate проверяет корректность параметров запроса.
func (q GetUserRankQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	_, err := shared.ParsePeriod(q.Period)
	return err
}

// GetUserRankResult - позиция пользователя.
type GetUserRankResult struct {
	UserID            string               `json:"user_id"`
	Period            string               `json:"period"`
	Rank              *int                 `json:"rank"`
	Podium            bool                 `json:"podium"`
	TotalParticipants int                  `json:"total_participants"`
	Entry             *LeaderboardEntryDTO `json:"entry,omitempty"`
}

// GetUserRankHandler обрабатывает запросы позиции пользователя.
type GetUserRankHandler struct {
	loader *BoardLoader
}

// NewGetUserRankHandler создаёт обработчик.
func NewGetUserRankHandler(loader *BoardLoader) *GetUserRankHandler {
	return &GetUserRankHandler{loader: loader}
}

// Handle выполняет запрос.
func (h *GetUserRankHandler) Handle(ctx context.Context, query GetUserRankQuery) (*GetUserRankResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetUserRank", shared.ErrValidation, err.Error(), err)
	}
	period, _ := shared.ParsePeriod(query.Period)

	board, _, err := h.loader.Load(ctx, period)
	if err != nil {
		return nil, shared.WrapError("query", "GetUserRank", shared.ErrServiceUnavailable, "failed to compute leaderboard", err)
	}

	result := &GetUserRankResult{
		UserID:            query.UserID,
		Period:            period.String(),
		TotalParticipants: board.TotalParticipants(),
	}
	if e, ok := board.EntryFor(query.UserID); ok {
		r := int(e.Rank)
		dto := toEntryDTO(e)
		result.Rank = &r
		result.Podium = e.Rank.IsTop(3)
		result.Entry = &dto
	}
	return result, nil
}
