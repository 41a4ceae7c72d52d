package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient is the Pub/Sub surface the Redis bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
}

// RedisMessage is one message received on a subscription.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig configures NewRedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName defaults to "checkin:events".
	ChannelName string

	// InstanceID marks messages this process published so the subscription
	// can skip them. Random when empty.
	InstanceID string

	// PublishTimeout bounds a single Redis PUBLISH. Default 2s.
	PublishTimeout time.Duration

	LocalBusConfig InMemoryEventBusConfig
	Logger         *logger.Logger
}

// RedisEventBus delivers every event to local handlers and mirrors it to a
// Redis channel. Events from other workers are replayed on the local bus as
// RemoteEvent values, so every worker drops its own cached boards when any
// worker processes a trigger.
type RedisEventBus struct {
	local      *InMemoryEventBus
	client     RedisClient
	channel    string
	instanceID string
	timeout    time.Duration
	log        *logger.Logger

	listen  context.CancelFunc
	running sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewRedisEventBus subscribes to the channel and starts replaying foreign
// events.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "checkin:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 2 * time.Second
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	messages, err := config.Client.Subscribe(ctx, config.ChannelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", config.ChannelName, err)
	}

	b := &RedisEventBus{
		local:      NewInMemoryEventBus(config.LocalBusConfig),
		client:     config.Client,
		channel:    config.ChannelName,
		instanceID: config.InstanceID,
		timeout:    config.PublishTimeout,
		log:        config.Logger.With(logger.Component("redis_event_bus"), logger.String("instance_id", config.InstanceID)),
		listen:     cancel,
	}

	b.running.Add(1)
	go func() {
		defer b.running.Done()
		b.replay(ctx, messages)
	}()
	return b, nil
}

func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish mirrors event to Redis, then delivers it locally. A Redis failure
// only costs the other workers their invalidation and is logged.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errNilEvent
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := json.Marshal(eventEnvelope{
		InstanceID:  b.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	err = b.client.Publish(ctx, b.channel, string(data))
	cancel()
	if err != nil {
		b.log.Warn("redis publish failed",
			logger.String("event_type", string(event.EventType())),
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
	}

	return b.local.Publish(event)
}

func (b *RedisEventBus) replay(ctx context.Context, messages <-chan RedisMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				b.log.Warn("redis subscription closed")
				return
			}
			if msg.Err != nil {
				b.log.Error("redis subscription error", logger.Err(msg.Err))
				continue
			}
			b.replayOne(msg.Payload)
		}
	}
}

func (b *RedisEventBus) replayOne(payload string) {
	var env eventEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.log.Error("undecodable remote event", logger.Err(err))
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}

	if err := b.local.Publish(&RemoteEvent{env: env}); err != nil && !errors.Is(err, ErrEventBusClosed) {
		b.log.Error("failed to replay remote event", logger.Err(err))
	}
}

// Close stops the subscription, then drains the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.listen()
	b.running.Wait()
	return b.local.Close()
}

// Stats returns the local delivery counters, remote replays included.
func (b *RedisEventBus) Stats() Stats {
	return b.local.Stats()
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type eventEnvelope struct {
	InstanceID  string           `json:"instance_id"`
	EventType   shared.EventType `json:"event_type"`
	AggregateID string           `json:"aggregate_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Payload     map[string]any   `json:"payload"`
}

// RemoteEvent is an event published by another worker. Payload values are
// JSON-decoded: numbers are float64 and times are RFC 3339 strings.
type RemoteEvent struct {
	env eventEnvelope
}

func (e *RemoteEvent) EventType() shared.EventType { return e.env.EventType }
func (e *RemoteEvent) AggregateID() string         { return e.env.AggregateID }
func (e *RemoteEvent) OccurredAt() time.Time       { return e.env.OccurredAt }
func (e *RemoteEvent) Payload() map[string]any     { return e.env.Payload }

// Origin returns the instance id of the publishing worker.
func (e *RemoteEvent) Origin() string { return e.env.InstanceID }
