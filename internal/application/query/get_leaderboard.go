// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/circuitbreaker"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Получает ранжированный лидерборд за период и позицию запрашивающего.
// Ранг пользователя берётся из того же снапшота, что и записи.
// ══════════════════════════════════════════════════════════════════════════════

// MaxLeaderboardLimit caps the number of returned entries.
const MaxLeaderboardLimit = 100

// GetLeaderboardQuery содержит параметры запроса лидерборда.
type GetLeaderboardQuery struct {
	// Period - daily, weekly, monthly, yearly или all_time (пустая строка = all_time).
	Period string

	// Limit - количество записей (0 = значение по умолчанию, максимум 100).
	Limit int

	// UserID - пользователь, для которого вернуть user_rank (опционально).
	UserID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetLeaderboardQuery) Validate(defaultLimit int) error {
	if q.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if q.Limit == 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > MaxLeaderboardLimit {
		q.Limit = MaxLeaderboardLimit
	}
	_, err := shared.ParsePeriod(q.Period)
	return err
}

// LeaderboardEntryDTO - одна строка лидерборда.
type LeaderboardEntryDTO struct {
	Rank           int    `json:"rank"`
	UserID         string `json:"user_id"`
	EventsAttended int    `json:"events_attended"`
	PointsEarned   int    `json:"points_earned"`
	CurrentStreak  int    `json:"current_streak"`
	BadgesEarned   int    `json:"badges_earned"`
	Medal          string `json:"medal,omitempty"`
}

func toEntryDTO(e leaderboard.Entry) LeaderboardEntryDTO {
	return LeaderboardEntryDTO{
		Rank:           int(e.Rank),
		UserID:         e.UserID,
		EventsAttended: e.EventsAttended,
		PointsEarned:   e.PointsEarned,
		CurrentStreak:  e.CurrentStreak,
		BadgesEarned:   e.BadgesEarned,
		Medal:          e.Rank.Medal(),
	}
}

// GetLeaderboardResult содержит результат запроса лидерборда.
type GetLeaderboardResult struct {
	Period            string                `json:"period"`
	PeriodKey         string                `json:"period_key"`
	Entries           []LeaderboardEntryDTO `json:"entries"`
	UserRank          *int                  `json:"user_rank"`
	TotalParticipants int                   `json:"total_participants"`
	ComputedAt        time.Time             `json:"computed_at"`
	FromCache         bool                  `json:"-"`
}

// ══════════════════════════════════════════════════════════════════════════════
// BOARD LOADER
// ══════════════════════════════════════════════════════════════════════════════

// BoardSnapshots reads boards persisted by the rebuild job.
type BoardSnapshots interface {
	GetBoard(ctx context.Context, period shared.Period, key time.Time) (*leaderboard.Board, error)
}

// BoardLoader returns the current board of a period: from the cache when it
// is reachable, otherwise by recomputing. Cache failures trip the circuit
// breaker and reads fall through to recomputation. When recomputation fails
// the last persisted snapshot of the same window is served instead.
type BoardLoader struct {
	service   *leaderboard.Service
	cache     leaderboard.Cache
	breaker   *circuitbreaker.CircuitBreaker
	snapshots BoardSnapshots
	log       *logger.Logger
	now       func() time.Time
}

// NewBoardLoader creates a loader. cache and breaker may be nil.
func NewBoardLoader(
	service *leaderboard.Service,
	cache leaderboard.Cache,
	breaker *circuitbreaker.CircuitBreaker,
	log *logger.Logger,
	now func() time.Time,
) *BoardLoader {
	if log == nil {
		log = logger.Nop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if cache != nil && breaker == nil {
		breaker = circuitbreaker.CacheBreaker(nil)
	}
	return &BoardLoader{
		service: service,
		cache:   cache,
		breaker: breaker,
		log:     log.With(logger.Component("leaderboard_loader")),
		now:     now,
	}
}

// WithSnapshots sets the store read when recomputation fails.
func (l *BoardLoader) WithSnapshots(s BoardSnapshots) *BoardLoader {
	l.snapshots = s
	return l
}

// Load returns the board of the window containing now.
func (l *BoardLoader) Load(ctx context.Context, period shared.Period) (*leaderboard.Board, bool, error) {
	now := l.now()
	key := period.Key(now, l.service.Location())

	if l.cache != nil {
		var cached *leaderboard.Board
		err := l.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			cached, err = l.cache.Get(ctx, period, key)
			return err
		})
		if err != nil {
			l.log.Warn("leaderboard cache read failed", logger.Period(period.String()), logger.Err(err))
		} else if cached != nil {
			return cached, true, nil
		}
	}

	board, err := l.service.Compute(ctx, period, now)
	if err != nil {
		if snap := l.snapshot(ctx, period, key); snap != nil {
			l.log.Warn("leaderboard recompute failed, serving snapshot",
				logger.Period(period.String()), logger.Err(err))
			return snap, false, nil
		}
		return nil, false, err
	}

	if l.cache != nil {
		err := l.breaker.Execute(ctx, func(ctx context.Context) error {
			return l.cache.Set(ctx, board)
		})
		if err != nil {
			l.log.Warn("leaderboard cache write failed", logger.Period(period.String()), logger.Err(err))
		}
	}
	return board, false, nil
}

// snapshot returns nil when no snapshot of (period, key) can be read.
func (l *BoardLoader) snapshot(ctx context.Context, period shared.Period, key time.Time) *leaderboard.Board {
	if l.snapshots == nil {
		return nil
	}
	b, err := l.snapshots.GetBoard(ctx, period, key)
	if err != nil {
		if !errors.Is(err, shared.ErrSnapshotNotFound) {
			l.log.Warn("leaderboard snapshot read failed", logger.Period(period.String()), logger.Err(err))
		}
		return nil
	}
	return b
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardHandler обрабатывает запросы на получение лидерборда.
type GetLeaderboardHandler struct {
	loader       *BoardLoader
	defaultLimit int
}

// NewGetLeaderboardHandler создаёт новый обработчик запроса лидерборда.
func NewGetLeaderboardHandler(loader *BoardLoader, defaultLimit int) *GetLeaderboardHandler {
	if defaultLimit <= 0 {
		defaultLimit = 10
	}
	return &GetLeaderboardHandler{loader: loader, defaultLimit: defaultLimit}
}

// Handle выполняет запрос на получение лидерборда.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, query GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := query.Validate(h.defaultLimit); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, err.Error(), err)
	}
	period, _ := shared.ParsePeriod(query.Period)

	board, fromCache, err := h.loader.Load(ctx, period)
	if err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrServiceUnavailable, "failed to compute leaderboard", err)
	}

	top := board.Top(query.Limit)
	entries := make([]LeaderboardEntryDTO, 0, len(top))
	for _, e := range top {
		entries = append(entries, toEntryDTO(e))
	}

	result := &GetLeaderboardResult{
		Period:            period.String(),
		PeriodKey:         board.PeriodKey.Format(time.DateOnly),
		Entries:           entries,
		TotalParticipants: board.TotalParticipants(),
		ComputedAt:        board.ComputedAt,
		FromCache:         fromCache,
	}
	if query.UserID != "" {
		if rank, ok := board.RankOf(query.UserID); ok {
			r := int(rank)
			result.UserRank = &r
		}
	}
	return result, nil
}
