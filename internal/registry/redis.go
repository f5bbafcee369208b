package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipgen/api/internal/model"
)

const keyAllConnections = "conns:all"

// RedisRegistry stores each connection as a JSON value with a TTL, indexed
// by a per-job set and a global set. Index sets can briefly reference
// expired entries; lookups skip and prune them.
type RedisRegistry struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisRegistry(redisClient *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisRegistry{
		redis: redisClient,
		ttl:   ttl,
	}
}

func connKey(connectionID string) string {
	return fmt.Sprintf("conn:%s", connectionID)
}

func jobIndexKey(jobID string) string {
	return fmt.Sprintf("conns:job:%s", jobID)
}

func (r *RedisRegistry) Register(ctx context.Context, conn model.Connection) error {
	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("marshal connection: %w", err)
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, connKey(conn.ConnectionID), data, r.ttl)
	pipe.SAdd(ctx, jobIndexKey(conn.JobID), conn.ConnectionID)
	pipe.SAdd(ctx, keyAllConnections, conn.ConnectionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register connection %s: %w", conn.ConnectionID, err)
	}
	return nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, connectionID string) error {
	// Resolve the job index before deleting the entry. If the entry already
	// expired the index membership is cleaned up lazily at lookup time.
	data, err := r.redis.Get(ctx, connKey(connectionID)).Bytes()
	var jobID string
	if err == nil {
		var conn model.Connection
		if jsonErr := json.Unmarshal(data, &conn); jsonErr == nil {
			jobID = conn.JobID
		}
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("unregister connection %s: %w", connectionID, err)
	}

	pipe := r.redis.TxPipeline()
	pipe.Del(ctx, connKey(connectionID))
	pipe.SRem(ctx, keyAllConnections, connectionID)
	if jobID != "" {
		pipe.SRem(ctx, jobIndexKey(jobID), connectionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("unregister connection %s: %w", connectionID, err)
	}
	return nil
}

func (r *RedisRegistry) FindByJob(ctx context.Context, jobID string) ([]model.Connection, error) {
	return r.resolveSet(ctx, jobIndexKey(jobID))
}

func (r *RedisRegistry) FindAll(ctx context.Context) ([]model.Connection, error) {
	return r.resolveSet(ctx, keyAllConnections)
}

// resolveSet loads the connections referenced by an index set, pruning IDs
// whose entries have expired.
func (r *RedisRegistry) resolveSet(ctx context.Context, indexKey string) ([]model.Connection, error) {
	ids, err := r.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", indexKey, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = connKey(id)
	}
	vals, err := r.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read connections: %w", err)
	}

	now := time.Now()
	conns := make([]model.Connection, 0, len(ids))
	var stale []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var conn model.Connection
		if err := json.Unmarshal([]byte(s), &conn); err != nil || conn.Expired(now) {
			stale = append(stale, ids[i])
			continue
		}
		conns = append(conns, conn)
	}

	if len(stale) > 0 {
		members := make([]interface{}, len(stale))
		for i, id := range stale {
			members[i] = id
		}
		pipe := r.redis.Pipeline()
		pipe.SRem(ctx, indexKey, members...)
		pipe.SRem(ctx, keyAllConnections, members...)
		if _, err := pipe.Exec(ctx); err != nil {
			// Pruning is opportunistic; the next lookup retries it.
			return conns, nil
		}
	}
	return conns, nil
}
