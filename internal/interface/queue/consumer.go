package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sabiut/qr-checkin-system-sub000/internal/application/command"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/trigger"
	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/persistence/redis"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// Popper blocks for the next raw message. It returns redis.ErrQueueEmpty when
// nothing arrived before timeout.
type Popper interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// Pusher appends raw messages to a queue.
type Pusher interface {
	Push(ctx context.Context, messages ...[]byte) error
}

// Queue is the intake list: the consumer pops from it and pushes back
// messages that failed for a transient reason.
type Queue interface {
	Popper
	Pusher
}

// Dispatcher applies a stored source record. It never returns an error; the
// result carries the outcome.
type Dispatcher interface {
	Process(ctx context.Context, src trigger.Source) *command.ProcessTriggerResult
}

var _ Queue = (*redis.TriggerQueue)(nil)

// ══════════════════════════════════════════════════════════════════════════════
// CONSUMER
// Читает сообщения из очереди Redis и передаёт их диспетчеру триггеров.
// ══════════════════════════════════════════════════════════════════════════════

const pushTimeout = 2 * time.Second

// ConsumerConfig tunes the consumer loop.
type ConsumerConfig struct {
	// Workers is the number of concurrent poppers.
	Workers int

	// PollTimeout is the BLPOP timeout of a single wait.
	PollTimeout time.Duration

	// ErrorBackoff is the pause after a transport error or a requeue.
	ErrorBackoff time.Duration
}

// DefaultConsumerConfig returns sensible defaults.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:      4,
		PollTimeout:  5 * time.Second,
		ErrorBackoff: time.Second,
	}
}

// ConsumerStats counts message outcomes since start.
type ConsumerStats struct {
	Received         int64
	Processed        int64
	AlreadyProcessed int64
	Skipped          int64
	Failed           int64
	Invalid          int64
	Requeued         int64
}

// Consumer drains a trigger queue.
type Consumer struct {
	queue      Queue
	deadLetter Pusher
	repo       trigger.Repository
	dispatcher Dispatcher
	codec      *Codec
	log        *logger.Logger
	config     ConsumerConfig

	received, processed, already, skipped, failed, invalid, requeued atomic.Int64
}

// NewConsumer creates a consumer. deadLetter may be nil; rejected messages
// are then only logged.
func NewConsumer(
	queue Queue,
	deadLetter Pusher,
	repo trigger.Repository,
	dispatcher Dispatcher,
	log *logger.Logger,
	config ConsumerConfig,
) *Consumer {
	defaults := DefaultConsumerConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = defaults.PollTimeout
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = defaults.ErrorBackoff
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{
		queue:      queue,
		deadLetter: deadLetter,
		repo:       repo,
		dispatcher: dispatcher,
		codec:      NewCodec(),
		log:        log.With(logger.Component("queue_consumer")),
		config:     config,
	}
}

// Run blocks until ctx is cancelled. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("queue consumer started", logger.Int("workers", c.config.Workers))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.config.Workers; i++ {
		wctx := logger.WithContext(gctx, logger.Int("worker", i))
		g.Go(func() error { return c.loop(wctx) })
	}
	err := g.Wait()

	c.log.Info("queue consumer stopped", logger.Any("stats", c.Stats()))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Consumer) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := c.queue.Pop(ctx, c.config.PollTimeout)
		switch {
		case err == nil:
			c.Handle(ctx, data)
		case errors.Is(err, redis.ErrQueueEmpty):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			c.log.Ctx(ctx).Warn("queue pop failed", logger.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.ErrorBackoff):
			}
		}
	}
}

// Handle processes one raw message.
func (c *Consumer) Handle(ctx context.Context, data []byte) *command.ProcessTriggerResult {
	c.received.Add(1)

	src, err := c.codec.Decode(data)
	if err != nil {
		c.invalid.Add(1)
		c.reject(ctx, data, err)
		return nil
	}

	stored, err := c.persist(ctx, src)
	if err != nil {
		c.failed.Add(1)
		c.log.Ctx(ctx).Error("store trigger failed",
			logger.TriggerKind(src.Kind().String()), logger.SourceID(src.SourceID()), logger.Err(err))
		c.requeue(ctx, data, err)
		return nil
	}

	res := c.dispatcher.Process(ctx, stored)
	switch res.Status {
	case command.StatusProcessed:
		c.processed.Add(1)
	case command.StatusAlreadyProcessed:
		c.already.Add(1)
	case command.StatusSkipped:
		c.skipped.Add(1)
	default:
		c.failed.Add(1)
		if shared.IsRetryable(res.Err) {
			c.requeue(ctx, data, res.Err)
		} else {
			c.reject(ctx, data, res.Err)
		}
	}
	return res
}

// persist stores the record and returns the stored copy with its marker.
func (c *Consumer) persist(ctx context.Context, src trigger.Source) (trigger.Source, error) {
	switch s := src.(type) {
	case *trigger.CheckIn:
		return c.repo.SaveCheckIn(ctx, s)
	case *trigger.Feedback:
		return c.repo.SaveFeedback(ctx, s)
	case *trigger.Connection:
		return c.repo.SaveConnection(ctx, s)
	default:
		return nil, fmt.Errorf("queue: unsupported source %T", src)
	}
}

// requeue pushes data back to the intake queue and pauses the worker so a
// storage outage does not turn into a hot loop. The source record is kept
// unprocessed, so the retry is idempotent.
func (c *Consumer) requeue(ctx context.Context, data []byte, cause error) {
	pushCtx, cancel := detached(ctx)
	err := c.queue.Push(pushCtx, data)
	cancel()
	if err != nil {
		c.log.Ctx(ctx).Error("requeue failed", logger.Err(err))
		c.reject(ctx, data, cause)
		return
	}
	c.requeued.Add(1)
	c.log.Ctx(ctx).Warn("queue message requeued", logger.Err(cause), logger.Duration("backoff", c.config.ErrorBackoff))

	select {
	case <-ctx.Done():
	case <-time.After(c.config.ErrorBackoff):
	}
}

func (c *Consumer) reject(ctx context.Context, data []byte, cause error) {
	c.log.Ctx(ctx).Warn("queue message rejected", logger.Err(cause), logger.Int("bytes", len(data)))
	if c.deadLetter == nil {
		return
	}
	pushCtx, cancel := detached(ctx)
	defer cancel()
	if err := c.deadLetter.Push(pushCtx, data); err != nil {
		c.log.Ctx(ctx).Error("dead letter push failed", logger.Err(err))
	}
}

// detached keeps a message write alive when shutdown cancels ctx, so a
// popped message is never dropped on the floor.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
}

// Stats returns a snapshot of outcome counters.
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Received:         c.received.Load(),
		Processed:        c.processed.Load(),
		AlreadyProcessed: c.already.Load(),
		Skipped:          c.skipped.Load(),
		Failed:           c.failed.Load(),
		Invalid:          c.invalid.Load(),
		Requeued:         c.requeued.Load(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PRODUCER
// ══════════════════════════════════════════════════════════════════════════════

// Producer validates and enqueues trigger messages.
type Producer struct {
	queue Pusher
	codec *Codec
}

// NewProducer creates a producer.
func NewProducer(queue Pusher) *Producer {
	return &Producer{queue: queue, codec: NewCodec()}
}

// EnqueueCheckIn pushes a check-in trigger.
func (p *Producer) EnqueueCheckIn(ctx context.Context, m CheckInMessage) error {
	return p.enqueue(ctx, trigger.KindCheckIn, m)
}

// EnqueueFeedback pushes a feedback trigger.
func (p *Producer) EnqueueFeedback(ctx context.Context, m FeedbackMessage) error {
	return p.enqueue(ctx, trigger.KindFeedback, m)
}

// EnqueueConnection pushes a connection trigger.
func (p *Producer) EnqueueConnection(ctx context.Context, m ConnectionMessage) error {
	return p.enqueue(ctx, trigger.KindConnection, m)
}

func (p *Producer) enqueue(ctx context.Context, kind trigger.Kind, payload any) error {
	data, err := p.codec.Encode(kind, payload)
	if err != nil {
		return err
	}
	return p.queue.Push(ctx, data)
}
