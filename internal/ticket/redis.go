package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyNextTicket = "ticket:next"
	keyNowServing = "ticket:serving"
)

// RedisCounter implements Counter over two Redis keys mutated with INCR.
// Transient errors are retried with bounded exponential backoff before the
// call fails.
type RedisCounter struct {
	redis   *redis.Client
	retries int
	backoff time.Duration
}

func NewRedisCounter(redisClient *redis.Client, retries int, backoff time.Duration) *RedisCounter {
	if retries < 1 {
		retries = 1
	}
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return &RedisCounter{
		redis:   redisClient,
		retries: retries,
		backoff: backoff,
	}
}

func (c *RedisCounter) Next(ctx context.Context) (uint64, error) {
	return c.incr(ctx, keyNextTicket)
}

func (c *RedisCounter) AdvanceNowServing(ctx context.Context) (uint64, error) {
	return c.incr(ctx, keyNowServing)
}

func (c *RedisCounter) Snapshot(ctx context.Context) (Snapshot, error) {
	var vals []interface{}
	err := c.withRetry(ctx, func() error {
		var err error
		vals, err = c.redis.MGet(ctx, keyNextTicket, keyNowServing).Result()
		return err
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("counter snapshot: %w", err)
	}
	return Snapshot{
		NextTicket: parseCounter(vals[0]),
		NowServing: parseCounter(vals[1]),
	}, nil
}

func (c *RedisCounter) incr(ctx context.Context, key string) (uint64, error) {
	var n int64
	err := c.withRetry(ctx, func() error {
		var err error
		n, err = c.redis.Incr(ctx, key).Result()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counter incr %s: %w", key, err)
	}
	return uint64(n), nil
}

func (c *RedisCounter) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := c.backoff
	for attempt := 0; attempt < c.retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == c.retries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}

func parseCounter(v interface{}) uint64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	var n uint64
	fmt.Sscanf(s, "%d", &n)
	return n
}
