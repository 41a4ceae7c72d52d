package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetrier(opts ...Option) *Retrier {
	base := []Option{WithBackoff(time.Millisecond, 2*time.Millisecond, 1.0), WithJitter(0)}
	return New(append(base, opts...)...)
}

func TestRetrier_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := fastRetrier(WithMaxAttempts(3)).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("busy"))
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsOnPlainErrorByDefault(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastRetrier().Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetrier_PermanentIsUnwrapped(t *testing.T) {
	boom := errors.New("bad request")
	calls := 0
	err := fastRetrier(RetryAll()).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(boom)
	})

	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_GivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("down")
	var retries []int
	err := fastRetrier(WithMaxAttempts(4), RetryAll(), WithOnRetry(func(attempt int, _ error, _ time.Duration) {
		retries = append(retries, attempt)
	})).Do(context.Background(), func(context.Context) error {
		return boom
	})

	assert.Equal(t, boom, err)
	assert.Equal(t, []int{1, 2, 3}, retries)
}

func TestValue(t *testing.T) {
	calls := 0
	v, err := Value(context.Background(), fastRetrier(), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 7, Retryable(errors.New("once"))
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, calls)
}

func TestRetrier_CancelledContextSkipsOperation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastRetrier(RetryAll()).Do(ctx, func(context.Context) error {
		t.Fatal("must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrier_DelayIsCapped(t *testing.T) {
	r := New(WithBackoff(time.Second, 3*time.Second, 2), WithJitter(0))
	assert.Equal(t, time.Second, r.delay(1))
	assert.Equal(t, 2*time.Second, r.delay(2))
	assert.Equal(t, 3*time.Second, r.delay(5))
}
