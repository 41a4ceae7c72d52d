package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/shared"
)

var at = time.Date(2024, time.May, 15, 10, 0, 0, 0, time.UTC)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{EnableMetrics: true})
}

func TestInMemoryEventBus_DeliversByTypeAndToGlobalHandlers(t *testing.T) {
	bus := syncBus()

	var typed, global []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventBadgeEarned, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		global = append(global, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent("u1", "b1", "First", 10, "e1", at)))
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", "Bronze", "Silver", 100, at)))

	assert.Equal(t, []shared.EventType{shared.EventBadgeEarned}, typed)
	assert.Equal(t, []shared.EventType{shared.EventBadgeEarned, shared.EventLevelUp}, global)
}

func TestInMemoryEventBus_HandlerFailuresDoNotFailPublisher(t *testing.T) {
	bus := syncBus()
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("kaboom") }))

	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", "Bronze", "Silver", 100, at)))

	stats := bus.Stats()
	assert.Equal(t, int64(1), stats.TotalPublished())
	assert.Equal(t, int64(1), stats.Published[shared.EventLevelUp])
	assert.Equal(t, int64(2), stats.HandlerRuns)
	assert.Equal(t, int64(2), stats.HandlerFailures)
}

func TestInMemoryEventBus_StatsDisabled(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", "Bronze", "Silver", 100, at)))
	assert.Zero(t, bus.Stats().TotalPublished())
	assert.Zero(t, bus.Stats().AverageHandlerTime())
}

func TestInMemoryEventBus_CloseWaitsForAsyncHandlers(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var handled atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(5 * time.Millisecond)
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewLevelUpEvent("u1", "Bronze", "Silver", 100, at)))
	}
	require.NoError(t, bus.Close())

	assert.LessOrEqual(t, handled.Load(), int32(5))
	assert.ErrorIs(t, bus.Publish(shared.NewLevelUpEvent("u1", "a", "b", 1, at)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventLevelUp, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.NoError(t, bus.Close())
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

type fakeRedis struct {
	mu        sync.Mutex
	published []string
	messages  chan RedisMessage
	pubErr    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{messages: make(chan RedisMessage, 4)}
}

func (f *fakeRedis) Publish(_ context.Context, _ string, message any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, message.(string))
	return f.pubErr
}

func (f *fakeRedis) Subscribe(context.Context, ...string) (<-chan RedisMessage, error) {
	return f.messages, nil
}

func TestRedisEventBus_PublishesRemotelyAndLocally(t *testing.T) {
	client := newFakeRedis()
	client.pubErr = errors.New("redis down")
	bus, err := NewRedisEventBus(RedisEventBusConfig{Client: client, InstanceID: "i1"})
	require.NoError(t, err)
	defer bus.Close()

	var local int
	require.NoError(t, bus.Subscribe(shared.EventTriggerProcessed, func(shared.Event) error {
		local++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewTriggerProcessedEvent("u1", "check_in", "c1", 15, at, at)))

	assert.Equal(t, 1, local)
	require.Len(t, client.published, 1)

	var env eventEnvelope
	require.NoError(t, json.Unmarshal([]byte(client.published[0]), &env))
	assert.Equal(t, "i1", env.InstanceID)
	assert.Equal(t, shared.EventTriggerProcessed, env.EventType)
	assert.Equal(t, "u1", env.AggregateID)
}

func TestRedisEventBus_ReplaysOnlyForeignMessages(t *testing.T) {
	client := newFakeRedis()
	bus, err := NewRedisEventBus(RedisEventBusConfig{Client: client, InstanceID: "i1"})
	require.NoError(t, err)

	received := make(chan shared.Event, 2)
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		received <- e
		return nil
	}))

	own, _ := json.Marshal(eventEnvelope{InstanceID: "i1", EventType: shared.EventLevelUp, AggregateID: "u1"})
	foreign, _ := json.Marshal(eventEnvelope{
		InstanceID:  "i2",
		EventType:   shared.EventTriggerProcessed,
		AggregateID: "u2",
		OccurredAt:  at,
		Payload:     map[string]any{"kind": "feedback"},
	})
	client.messages <- RedisMessage{Payload: string(own)}
	client.messages <- RedisMessage{Payload: string(foreign)}

	select {
	case e := <-received:
		assert.Equal(t, shared.EventTriggerProcessed, e.EventType())
		assert.Equal(t, "u2", e.AggregateID())
		assert.Equal(t, "feedback", e.Payload()["kind"])
		require.IsType(t, &RemoteEvent{}, e)
		assert.Equal(t, "i2", e.(*RemoteEvent).Origin())
	case <-time.After(time.Second):
		t.Fatal("remote event not delivered")
	}

	require.NoError(t, bus.Close())
	assert.Empty(t, received)
}

func TestNewRedisEventBus_RequiresClient(t *testing.T) {
	_, err := NewRedisEventBus(RedisEventBusConfig{})
	assert.Error(t, err)
}
