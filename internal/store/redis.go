package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipgen/api/internal/model"
)

const changeChannel = "jobs:changes"

// RedisStore keeps job records as JSON blobs with a retention TTL and
// publishes every status transition on a pub/sub channel, which serves as
// the change feed.
type RedisStore struct {
	redis     *redis.Client
	retention time.Duration
}

func NewRedisStore(redisClient *redis.Client, retention time.Duration) *RedisStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RedisStore{
		redis:     redisClient,
		retention: retention,
	}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func (s *RedisStore) GetJob(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	job, err := s.fetch(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && job.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return job, nil
}

func (s *RedisStore) PutJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := s.redis.Set(ctx, jobKey(job.ID), data, s.retention).Err(); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// UpdateStatus performs the transition under WATCH so that concurrent workers
// racing on the same record cannot both win; the loser observes ErrConflict.
func (s *RedisStore) UpdateStatus(ctx context.Context, jobID string, from, to model.JobStatus, mutate func(*model.Job)) (*model.Job, error) {
	key := jobKey(jobID)
	var oldJob, newJob *model.Job

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}
		if job.Status != from {
			return ErrConflict
		}

		old := job
		oldJob = &old

		job.Status = to
		if mutate != nil {
			mutate(&job)
		}
		newJob = &job

		updated, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.retention)
			return nil
		})
		return err
	}

	if err := s.redis.Watch(ctx, txn, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}

	s.publishChange(ctx, ChangeRecord{JobID: jobID, Old: oldJob, New: newJob})
	return newJob, nil
}

func (s *RedisStore) publishChange(ctx context.Context, record ChangeRecord) {
	data, err := json.Marshal(record)
	if err != nil {
		log.Printf("Failed to marshal change record for job %s: %v", record.JobID, err)
		return
	}
	if err := s.redis.Publish(ctx, changeChannel, data).Err(); err != nil {
		log.Printf("Failed to publish change for job %s: %v", record.JobID, err)
	}
}

func (s *RedisStore) SubscribeChanges(ctx context.Context) (<-chan ChangeRecord, error) {
	pubsub := s.redis.Subscribe(ctx, changeChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe changes: %w", err)
	}

	out := make(chan ChangeRecord, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var record ChangeRecord
				if err := json.Unmarshal([]byte(msg.Payload), &record); err != nil {
					log.Printf("Dropping malformed change record: %v", err)
					continue
				}
				select {
				case out <- record:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStore) fetch(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}
