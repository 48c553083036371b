package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisWrapper guards a go-redis client with a circuit breaker. A key
// miss (redis.Nil) is a normal outcome, not a breaker failure.
type RedisWrapper struct {
	client  *redis.Client
	cb      *Breaker
	name    string
	service string
	logger  *zap.Logger
}

// NewRedisWrapper wraps client with a breaker registered for metrics.
func NewRedisWrapper(client *redis.Client, name, service string, logger *zap.Logger) *RedisWrapper {
	cb := New(name, RedisConfig().ToConfig(), logger)
	GlobalMetricsCollector.Register(name, service, cb)
	return &RedisWrapper{
		client:  client,
		cb:      cb,
		name:    name,
		service: service,
		logger:  logger,
	}
}

func (rw *RedisWrapper) execute(ctx context.Context, fn func() error) error {
	err := rw.cb.Execute(ctx, fn)
	GlobalMetricsCollector.RecordRequest(rw.name, rw.service, rw.cb.State(), err == nil)
	return err
}

// Ping checks connectivity through the breaker.
func (rw *RedisWrapper) Ping(ctx context.Context) *redis.StatusCmd {
	var cmd *redis.StatusCmd
	err := rw.execute(ctx, func() error {
		cmd = rw.client.Ping(ctx)
		return cmd.Err()
	})
	if cmd == nil {
		cmd = redis.NewStatusCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Get fetches a key. redis.Nil passes through without tripping the breaker.
func (rw *RedisWrapper) Get(ctx context.Context, key string) *redis.StringCmd {
	var cmd *redis.StringCmd
	err := rw.execute(ctx, func() error {
		cmd = rw.client.Get(ctx, key)
		if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		return nil
	})
	if cmd == nil {
		cmd = redis.NewStringCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Set writes a key with TTL.
func (rw *RedisWrapper) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	var cmd *redis.StatusCmd
	err := rw.execute(ctx, func() error {
		cmd = rw.client.Set(ctx, key, value, expiration)
		return cmd.Err()
	})
	if cmd == nil {
		cmd = redis.NewStatusCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Del removes keys.
func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var cmd *redis.IntCmd
	err := rw.execute(ctx, func() error {
		cmd = rw.client.Del(ctx, keys...)
		return cmd.Err()
	})
	if cmd == nil {
		cmd = redis.NewIntCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// Expire resets a key's TTL. Used for sliding session expiry.
func (rw *RedisWrapper) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	var cmd *redis.BoolCmd
	err := rw.execute(ctx, func() error {
		cmd = rw.client.Expire(ctx, key, expiration)
		return cmd.Err()
	})
	if cmd == nil {
		cmd = redis.NewBoolCmd(ctx)
		cmd.SetErr(err)
	}
	return cmd
}

// TTL reports a key's remaining lifetime.
func (rw *RedisWrapper) TTL(ctx context.Context, key string) *redis.DurationCmd {
	var cmd *redis.DurationCmd
	err := rw.execute(ctx, func() error {
		cmd = rw.client.TTL(ctx, key)
		return cmd.Err()
	})
	if cmd == nil {
		cmd = redis.NewDurationCmd(ctx, time.Second)
		cmd.SetErr(err)
	}
	return cmd
}

// IsOpen reports whether the breaker currently rejects requests.
func (rw *RedisWrapper) IsOpen() bool {
	return rw.cb.State() == StateOpen
}

// Client exposes the underlying client for operations the wrapper does
// not cover, such as shutdown.
func (rw *RedisWrapper) Client() *redis.Client {
	return rw.client
}
