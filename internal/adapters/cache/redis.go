package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"

	"github.com/okian/spc/pkg/logger"
	"github.com/okian/spc/pkg/metrics"
)

// RedisLayerName labels the Redis layer in metrics and logs.
const RedisLayerName = "redis"

const (
	redisDialTimeout = 5 * time.Second

	// After this many consecutive failures the layer stops calling Redis
	// for redisBreakerCooldown and reports every lookup as failed.
	redisBreakerFailures = 5
	redisBreakerCooldown = 30 * time.Second
)

// Redis is a shared layer so several service replicas reuse each other's
// results. Calls go through a circuit breaker so an unreachable Redis costs
// one fast error per lookup instead of a timeout.
type Redis struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewRedis wraps an existing client; entries expire after ttl (0 = never).
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        RedisLayerName,
			MaxRequests: 1,
			Timeout:     redisBreakerCooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= redisBreakerFailures
			},
			OnStateChange: redisStateChanged,
		}),
	}
}

func redisStateChanged(name string, from, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		metrics.RecordErrorByComponent("cache", "breaker_open")
	}
	logger.Get().Named("cache").Warn(context.Background(), "circuit breaker state changed",
		logger.String("layer", name),
		logger.String("from", from.String()),
		logger.String("to", to.String()))
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// Name implements Layer.
func (r *Redis) Name() string { return RedisLayerName }

// Get implements Layer. A missing key is not a failure for the breaker.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := r.breaker.Execute(func() (interface{}, error) {
		val, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return val, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	val, ok := res.([]byte)
	if !ok {
		return nil, false, nil
	}
	return val, true, nil
}

// Set implements Layer.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.breaker.Execute(func() (interface{}, error) {
		return nil, r.client.Set(ctx, key, string(value), r.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Open reports whether the breaker is currently short-circuiting calls.
func (r *Redis) Open() bool {
	return r.breaker.State() == gobreaker.StateOpen
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
