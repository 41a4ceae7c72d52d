package query

import (
	"context"
	"errors"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/profile"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// Возвращает профиль геймификации. Отсутствующий профиль отдаётся с нулями,
// а не как ошибка.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileQuery содержит параметры запроса профиля.
type GetProfileQuery struct {
	UserID string
}

// Validate проверяет корректность параметров запроса.
func (q GetProfileQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id is required")
	}
	return nil
}

// ProfileDTO - представление профиля для внешних потребителей.
type ProfileDTO struct {
	UserID              string     `json:"user_id"`
	TotalPoints         int        `json:"total_points"`
	Level               string     `json:"level"`
	CurrentStreak       int        `json:"current_streak"`
	LongestStreak       int        `json:"longest_streak"`
	LastQualifyingDate  *string    `json:"last_qualifying_date"`
	TotalEventsAttended int        `json:"total_events_attended"`
	TotalConnections    int        `json:"total_connections"`
	TotalFeedback       int        `json:"total_feedback_submissions"`
	NextLevel           string     `json:"next_level,omitempty"`
	PointsToNextLevel   int        `json:"points_to_next_level"`
	UpdatedAt           *time.Time `json:"updated_at,omitempty"`

	// Exists is false when the user has no profile yet.
	Exists bool `json:"exists"`
}

// NewProfileDTO builds the DTO. exists is false for zero-valued profiles.
func NewProfileDTO(p profile.Profile, exists bool) ProfileDTO {
	dto := ProfileDTO{
		UserID:              p.UserID,
		TotalPoints:         p.TotalPoints,
		Level:               string(p.Level),
		CurrentStreak:       p.CurrentStreak,
		LongestStreak:       p.LongestStreak,
		TotalEventsAttended: p.TotalEventsAttended,
		TotalConnections:    p.TotalConnections,
		TotalFeedback:       p.TotalFeedback,
		Exists:              exists,
	}
	if p.LastQualifyingDate != nil {
		s := p.LastQualifyingDate.Format(time.DateOnly)
		dto.LastQualifyingDate = &s
	}
	if exists {
		updated := p.UpdatedAt
		dto.UpdatedAt = &updated
	}
	for _, threshold := range profile.LevelThresholds() {
		if p.TotalPoints < threshold {
			dto.NextLevel = string(profile.LevelFor(threshold))
			dto.PointsToNextLevel = threshold - p.TotalPoints
			break
		}
	}
	return dto
}

// GetProfileHandler обрабатывает запросы профиля.
type GetProfileHandler struct {
	profiles profile.Repository
}

// NewGetProfileHandler создаёт обработчик.
func NewGetProfileHandler(profiles profile.Repository) *GetProfileHandler {
	return &GetProfileHandler{profiles: profiles}
}

// Handle выполняет запрос.
func (h *GetProfileHandler) Handle(ctx context.Context, query GetProfileQuery) (*ProfileDTO, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProfile", shared.ErrValidation, err.Error(), err)
	}

	p, exists, err := loadProfile(ctx, h.profiles, query.UserID)
	if err != nil {
		return nil, err
	}
	dto := NewProfileDTO(p, exists)
	return &dto, nil
}

// loadProfile returns the stored profile or the zero-valued one.
func loadProfile(ctx context.Context, repo profile.Repository, userID string) (profile.Profile, bool, error) {
	p, err := repo.GetByUserID(ctx, userID)
	if err != nil {
		if shared.IsNotFound(err) {
			return profile.Empty(userID), false, nil
		}
		return profile.Profile{}, false, shared.WrapError("query", "GetProfile", shared.ErrServiceUnavailable, "failed to load profile", err)
	}
	return *p, true, nil
}
