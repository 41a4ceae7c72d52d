// Package messaging delivers domain events emitted after a trigger commits.
// It provides an in-memory bus for a single worker and a Redis Pub/Sub bus
// that fans events out to every worker sharing the same Redis.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

var (
	// ErrEventBusClosed is returned by Publish and Subscribe after Close.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	errNilHandler = errors.New("handler cannot be nil")
	errNilEvent   = errors.New("event cannot be nil")
)

// everyEvent keys handlers registered with SubscribeAll.
const everyEvent shared.EventType = "*"

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig configures NewInMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers off the publishing goroutine, at most
	// WorkerPoolSize at a time. Otherwise handlers run inline, in
	// subscription order.
	AsyncMode      bool
	WorkerPoolSize int

	Logger *logger.Logger

	// EnableMetrics turns on Stats.
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns the worker defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// InMemoryEventBus dispatches events to handlers registered in this process.
// Handler errors and panics are logged and counted; they never reach the
// publisher, which has already committed.
type InMemoryEventBus struct {
	mu       sync.RWMutex
	handlers map[shared.EventType][]shared.EventHandler
	closed   bool

	async bool
	slots *semaphore.Weighted
	// done is cancelled by Close so queued async deliveries give up.
	done    context.Context
	stop    context.CancelFunc
	pending sync.WaitGroup

	stats *busStats
	log   *logger.Logger
}

// NewInMemoryEventBus creates a bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	done, stop := context.WithCancel(context.Background())
	b := &InMemoryEventBus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		async:    config.AsyncMode,
		slots:    semaphore.NewWeighted(int64(config.WorkerPoolSize)),
		done:     done,
		stop:     stop,
		log:      config.Logger.With(logger.Component("event_bus")),
	}
	if config.EnableMetrics {
		b.stats = newBusStats()
	}
	return b
}

// Subscribe registers handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.subscribe(eventType, handler)
}

// SubscribeAll registers handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.subscribe(everyEvent, handler)
}

func (b *InMemoryEventBus) subscribe(key shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[key] = append(b.handlers[key], handler)
	return nil
}

// Publish delivers event to the handlers of its type, then to the
// catch-all handlers.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed, all := b.handlers[event.EventType()], b.handlers[everyEvent]
	targets := make([]shared.EventHandler, 0, len(typed)+len(all))
	targets = append(append(targets, typed...), all...)
	if b.async {
		// Counted under the read lock so Close cannot miss a delivery.
		b.pending.Add(len(targets))
	}
	b.mu.RUnlock()

	if b.stats != nil {
		b.stats.published(event.EventType())
	}

	for _, h := range targets {
		if b.async {
			go b.deliverAsync(event, h)
			continue
		}
		b.deliver(event, h)
	}
	return nil
}

func (b *InMemoryEventBus) deliverAsync(event shared.Event, h shared.EventHandler) {
	defer b.pending.Done()

	if err := b.slots.Acquire(b.done, 1); err != nil {
		return
	}
	defer b.slots.Release(1)
	b.deliver(event, h)
}

func (b *InMemoryEventBus) deliver(event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := runHandler(event, h)
	if b.stats != nil {
		b.stats.handled(time.Since(start), err)
	}
	if err != nil {
		b.log.Error("event handler failed",
			logger.String("event_type", string(event.EventType())),
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
	}
}

func runHandler(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h(event)
}

// Close rejects further publishes, drops async deliveries still waiting for
// a slot and waits for the running ones. Safe to call more than once.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.stop()
	b.mu.Unlock()

	b.pending.Wait()
	b.log.Info("event bus closed")
	return nil
}

// Stats returns a snapshot of the delivery counters. The zero Stats is
// returned when metrics are disabled.
func (b *InMemoryEventBus) Stats() Stats {
	if b.stats == nil {
		return Stats{}
	}
	return b.stats.snapshot()
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// Stats counts publishes per event type and handler runs overall.
type Stats struct {
	Published       map[shared.EventType]int64
	HandlerRuns     int64
	HandlerFailures int64
	HandlerTime     time.Duration
}

// TotalPublished sums Published.
func (s Stats) TotalPublished() int64 {
	var n int64
	for _, v := range s.Published {
		n += v
	}
	return n
}

// AverageHandlerTime is zero before the first run.
func (s Stats) AverageHandlerTime() time.Duration {
	if s.HandlerRuns == 0 {
		return 0
	}
	return s.HandlerTime / time.Duration(s.HandlerRuns)
}

type busStats struct {
	mu sync.Mutex
	s  Stats
}

func newBusStats() *busStats {
	return &busStats{s: Stats{Published: make(map[shared.EventType]int64)}}
}

func (m *busStats) published(t shared.EventType) {
	m.mu.Lock()
	m.s.Published[t]++
	m.mu.Unlock()
}

func (m *busStats) handled(d time.Duration, err error) {
	m.mu.Lock()
	m.s.HandlerRuns++
	m.s.HandlerTime += d
	if err != nil {
		m.s.HandlerFailures++
	}
	m.mu.Unlock()
}

func (m *busStats) snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.s
	out.Published = make(map[shared.EventType]int64, len(m.s.Published))
	for k, v := range m.s.Published {
		out.Published[k] = v
	}
	return out
}
