package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueEmpty is returned by Pop when nothing arrived before the timeout.
var ErrQueueEmpty = errors.New("queue: empty")

// TriggerQueue is a FIFO list of encoded trigger messages.
type TriggerQueue struct {
	cache *Cache
	key   string
}

// NewTriggerQueue creates a queue stored under QueueKey(name).
func NewTriggerQueue(cache *Cache, name string) *TriggerQueue {
	return &TriggerQueue{cache: cache, key: QueueKey(name)}
}

// Key returns the Redis list key.
func (q *TriggerQueue) Key() string {
	return q.key
}

// Push appends messages to the tail of the queue.
func (q *TriggerQueue) Push(ctx context.Context, messages ...[]byte) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, len(messages))
	for i, m := range messages {
		values[i] = m
	}
	if err := q.cache.Client().RPush(ctx, q.key, values...).Err(); err != nil {
		return fmt.Errorf("push %s: %w", q.key, err)
	}
	return nil
}

// Pop blocks up to timeout for the head of the queue.
func (q *TriggerQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.cache.Client().BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrQueueEmpty
		}
		return nil, fmt.Errorf("pop %s: %w", q.key, err)
	}
	// BLPOP replies with [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("pop %s: unexpected reply length %d", q.key, len(res))
	}
	return []byte(res[1]), nil
}

// Len returns the number of pending messages.
func (q *TriggerQueue) Len(ctx context.Context) (int64, error) {
	return q.cache.Client().LLen(ctx, q.key).Result()
}
