// Package redis implements the Redis side of the engine: the leaderboard
// board cache, Pub/Sub for cross-instance events and the trigger queue.
//
// Key components:
//   - Cache: shared client plus JSON helpers
//   - LeaderboardCache: computed boards per (period, period_key)
//   - TriggerQueue: list-backed intake and dead-letter queues
//   - PubSub: adapter that feeds messaging.RedisEventBus
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds the client settings.
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int

	// Command-level retries inside go-redis, not the startup wait.
	MaxRetries int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultConfig returns the client defaults used by the worker.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr returns "host:port".
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// options maps the config onto go-redis. ReadTimeout must stay above the
// BLPOP timeout of the queue or idle pops fail with i/o timeouts.
func (c Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolTimeout:  c.PoolTimeout,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrCacheMiss is returned when a key does not exist.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection wraps a failed PING at connect time.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization wraps JSON failures in either direction.
	ErrCacheSerialization = errors.New("cache: serialization failed")

	ErrCacheInvalidTTL = errors.New("cache: invalid TTL")
	ErrCacheKeyEmpty   = errors.New("cache: key cannot be empty")
	ErrCacheNilValue   = errors.New("cache: value cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

const (
	PrefixLeaderboard = "leaderboard:"
	PrefixQueue       = "queue:"
	PrefixPubSub      = "pubsub:"
)

// TTLLeaderboardCache bounds how stale a cached board can get when an
// invalidation is lost.
const TTLLeaderboardCache = 5 * time.Minute

// QueueKey returns the list key of a trigger queue.
func QueueKey(name string) string {
	return PrefixQueue + name
}

// PubSubChannel returns the namespaced channel name.
func PubSubChannel(name string) string {
	return PrefixPubSub + name
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache owns the go-redis client shared by the cache, queue and pub/sub
// adapters of one process.
type Cache struct {
	client *redis.Client
}

// NewCache connects and verifies the connection with PING.
func NewCache(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(cfg.options())

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{client: client}, nil
}

// Client returns the underlying client.
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Close closes the client and its pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Get decodes the JSON value at key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return ErrCacheMiss
	case err != nil:
		return err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}

// Publish sends message on channel. Strings and byte slices go out as is,
// anything else as JSON.
func (c *Cache) Publish(ctx context.Context, channel string, message any) error {
	if channel == "" {
		return ErrCacheKeyEmpty
	}

	var payload any = message
	if _, raw := message.(string); !raw {
		if _, raw = message.([]byte); !raw {
			data, err := json.Marshal(message)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
			}
			payload = data
		}
	}
	return c.client.Publish(ctx, channel, payload).Err()
}

// encode validates a cache write and returns its JSON form.
func encode(key string, value any, ttl time.Duration) ([]byte, error) {
	switch {
	case key == "":
		return nil, ErrCacheKeyEmpty
	case value == nil:
		return nil, ErrCacheNilValue
	case ttl < 0:
		return nil, ErrCacheInvalidTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return data, nil
}
