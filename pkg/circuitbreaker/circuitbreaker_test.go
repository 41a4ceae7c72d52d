package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	var transitions []string
	cb := New("test", WithThresholds(2, 1), WithTimeout(time.Minute),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		}))
	cb.now = func() time.Time { return now }

	fail := func(context.Context) error { return errors.New("redis down") }
	ok := func(context.Context) error { return nil }

	assert.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Execute(context.Background(), fail))
	assert.Equal(t, StateOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(context.Background(), ok), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	assert.NoError(t, cb.Execute(context.Background(), ok))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := New("test", WithThresholds(1, 1), WithTimeout(time.Second))
	cb.now = func() time.Time { return now }

	fail := func(context.Context) error { return errors.New("boom") }
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())

	now = now.Add(2 * time.Second)
	_ = cb.Execute(context.Background(), fail)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreaker_HalfOpenProbeBudget(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cb := New("test", WithThresholds(1, 1), WithTimeout(time.Second))
	cb.now = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("x") })
	now = now.Add(2 * time.Second)

	err := cb.Execute(context.Background(), func(context.Context) error {
		// The first probe is still running.
		assert.ErrorIs(t, cb.Execute(context.Background(), func(context.Context) error { return nil }), ErrTooManyRequests)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCacheBreaker_IgnoresCancellation(t *testing.T) {
	cb := CacheBreaker(nil)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, cb.State())

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("dial tcp: refused") })
	}
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, 3, cb.Counts().TotalFailures)
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	miss := errors.New("miss")
	cb := New("test", WithThresholds(1, 1), WithIsFailure(func(err error) bool { return !errors.Is(err, miss) }))

	_ = cb.Execute(context.Background(), func(context.Context) error { return miss })
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 1, cb.Counts().Requests)
}
