package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hostelhub/hostelhub/internal/booking"
	"github.com/redis/go-redis/v9"
)

// Config contains configuration options for the Redis status cache.
type Config struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number
	DB int

	// KeyPrefix is prepended to all keys, typically ending with a colon.
	KeyPrefix string

	// TTL bounds how stale a cached status board may be.
	TTL time.Duration
}

// StatusCache caches the machine status board in Redis. The board is
// recomputed from the session store on every miss; the cache only absorbs
// the polling load, it is never the source of truth.
type StatusCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// New creates a Redis status cache and verifies the connection.
func New(cfg Config) (*StatusCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "hostelhub:"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Second
	}

	return &StatusCache{
		client: client,
		key:    prefix + "machine-status",
		ttl:    ttl,
	}, nil
}

// Get returns the cached status board, or ok=false on a miss or any cache
// failure.
func (c *StatusCache) Get(ctx context.Context) ([]booking.MachineView, bool) {
	payload, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		return nil, false
	}

	var views []booking.MachineView
	if err := json.Unmarshal(payload, &views); err != nil {
		return nil, false
	}
	return views, true
}

// Set stores the status board with the configured TTL.
func (c *StatusCache) Set(ctx context.Context, views []booking.MachineView) error {
	payload, err := json.Marshal(views)
	if err != nil {
		return fmt.Errorf("redis: failed to encode status board: %w", err)
	}
	return c.client.Set(ctx, c.key, payload, c.ttl).Err()
}

// Invalidate drops the cached board. Called after any mutation so clients
// never wait a full TTL to observe their own booking.
func (c *StatusCache) Invalidate(ctx context.Context) error {
	err := c.client.Del(ctx, c.key).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: failed to invalidate status board: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *StatusCache) Close() error {
	return c.client.Close()
}
