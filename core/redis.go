package core

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionKV is the minimal key-value surface the session manager needs.
// GetEx lets a read refresh the key's TTL in a single round trip, which is
// what keeps the inactivity window sliding.
type SessionKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetEx(ctx context.Context, key string, expiration time.Duration) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// CounterKV exposes the subset used for login metrics.
type CounterKV interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}
