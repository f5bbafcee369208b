package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipgen/api/internal/model"
)

// TransitionGuard admits each (job, newStatus) transition exactly once.
// The change feed delivers at-least-once, possibly to several workers at
// the same time, so the guard must be a single conditional write.
type TransitionGuard interface {
	// Admit returns true when this caller won the right to handle the
	// transition. Every other delivery of the same transition gets false.
	Admit(ctx context.Context, jobID string, status model.JobStatus) (bool, error)
}

// RedisGuard implements TransitionGuard with SET NX. The TTL must exceed
// the feed's maximum redelivery window.
type RedisGuard struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisGuard(redisClient *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisGuard{redis: redisClient, ttl: ttl}
}

func (g *RedisGuard) Admit(ctx context.Context, jobID string, status model.JobStatus) (bool, error) {
	key := fmt.Sprintf("notified:%s:%s", jobID, status)
	ok, err := g.redis.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("transition guard %s: %w", key, err)
	}
	return ok, nil
}

// MemoryGuard is the in-process TransitionGuard.
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]struct{})}
}

func (g *MemoryGuard) Admit(ctx context.Context, jobID string, status model.JobStatus) (bool, error) {
	key := fmt.Sprintf("%s:%s", jobID, status)
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = struct{}{}
	return true, nil
}
