package redis

import (
	"context"
	"fmt"

	"github.com/sabiut/qr-checkin-system-sub000/internal/infrastructure/messaging"
)

var _ messaging.RedisClient = (*PubSub)(nil)

// PubSub adapts Cache to messaging.RedisClient.
type PubSub struct {
	cache  *Cache
	buffer int
}

// NewPubSub creates the adapter.
func NewPubSub(cache *Cache) *PubSub {
	return &PubSub{cache: cache, buffer: 64}
}

// Publish implements messaging.RedisClient.
func (p *PubSub) Publish(ctx context.Context, channel string, message interface{}) error {
	return p.cache.Publish(ctx, channel, message)
}

// Subscribe implements messaging.RedisClient. The returned channel closes
// when ctx is done or the subscription drops.
func (p *PubSub) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	sub := p.cache.Client().Subscribe(ctx, channels...)

	// Wait for the subscription confirmation so publishes are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}

	out := make(chan messaging.RedisMessage, p.buffer)
	go func() {
		defer close(out)
		defer sub.Close()

		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
