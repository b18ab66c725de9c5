package core

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const (
	loginSuccessKey = "metrics:login:success"
	loginFailureKey = "metrics:login:failure"
)

// LoginMetrics is the current login counter snapshot.
type LoginMetrics struct {
	Success int64 `json:"success"`
	Failure int64 `json:"failure"`
}

// AuthMetrics keeps login counters in Redis so they survive restarts and
// aggregate across replicas.
type AuthMetrics struct {
	redis CounterKV
}

func NewAuthMetrics(redis CounterKV) *AuthMetrics {
	return &AuthMetrics{redis: redis}
}

func (m *AuthMetrics) LoginSucceeded(ctx context.Context) error {
	return m.redis.Incr(ctx, loginSuccessKey).Err()
}

func (m *AuthMetrics) LoginFailed(ctx context.Context) error {
	return m.redis.Incr(ctx, loginFailureKey).Err()
}

// Snapshot reads both counters; missing keys count as zero.
func (m *AuthMetrics) Snapshot(ctx context.Context) (LoginMetrics, error) {
	var lm LoginMetrics
	var err error
	if lm.Success, err = m.counter(ctx, loginSuccessKey); err != nil {
		return LoginMetrics{}, err
	}
	if lm.Failure, err = m.counter(ctx, loginFailureKey); err != nil {
		return LoginMetrics{}, err
	}
	return lm, nil
}

func (m *AuthMetrics) counter(ctx context.Context, key string) (int64, error) {
	v, err := m.redis.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}
