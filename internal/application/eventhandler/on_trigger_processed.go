// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"time"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/leaderboard"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON TRIGGER PROCESSED HANDLER
// Сбрасывает кэш лидербордов после каждого применённого триггера.
//
// Очки пользователя входят в ключ сортировки каждого периода, поэтому
// сбрасываются все периоды, а не только окно, содержащее дату триггера.
// ═══════════════════════════════════════════════════════════════════════════

// OnTriggerProcessedHandler инвалидирует закэшированные доски.
type OnTriggerProcessedHandler struct {
	cache   leaderboard.Cache
	log     *logger.Logger
	timeout time.Duration
}

// NewOnTriggerProcessedHandler создаёт обработчик. cache может быть nil,
// тогда обработчик ничего не делает.
func NewOnTriggerProcessedHandler(cache leaderboard.Cache, log *logger.Logger) *OnTriggerProcessedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnTriggerProcessedHandler{
		cache:   cache,
		log:     log.With(logger.String("handler", "on_trigger_processed")),
		timeout: 2 * time.Second,
	}
}

// Register подписывает обработчик на шину.
func (h *OnTriggerProcessedHandler) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventTriggerProcessed, h.Handle)
}

// Handle реализует shared.EventHandler. Ошибка кэша только логируется:
// запросы всё равно переживут устаревшую доску до истечения TTL.
func (h *OnTriggerProcessedHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventTriggerProcessed || h.cache == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx, shared.AllPeriods()...); err != nil {
		h.log.Warn("leaderboard cache invalidation failed",
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
		return nil
	}

	h.log.Debug("leaderboard cache invalidated", logger.UserID(event.AggregateID()))
	return nil
}
