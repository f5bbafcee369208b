package store

import (
	"context"
	"sync"

	"github.com/clipgen/api/internal/model"
)

// MemoryStore is an in-process Store for single-process deployments and
// tests. Change records are fanned out to all subscribers.
type MemoryStore struct {
	mu          sync.RWMutex
	jobs        map[string]model.Job
	subscribers map[chan ChangeRecord]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:        make(map[string]model.Job),
		subscribers: make(map[chan ChangeRecord]struct{}),
	}
}

func (s *MemoryStore) GetJob(ctx context.Context, ownerID, jobID string) (*model.Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	if ownerID != "" && job.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	copy := job
	return &copy, nil
}

func (s *MemoryStore) PutJob(ctx context.Context, job *model.Job) error {
	s.mu.Lock()
	s.jobs[job.ID] = *job
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, jobID string, from, to model.JobStatus, mutate func(*model.Job)) (*model.Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if job.Status != from {
		s.mu.Unlock()
		return nil, ErrConflict
	}

	old := job
	job.Status = to
	if mutate != nil {
		mutate(&job)
	}
	s.jobs[jobID] = job

	subs := make([]chan ChangeRecord, 0, len(s.subscribers))
	for ch := range s.subscribers {
		subs = append(subs, ch)
	}
	s.mu.Unlock()

	newJob := job
	record := ChangeRecord{JobID: jobID, Old: &old, New: &newJob}
	for _, ch := range subs {
		select {
		case ch <- record:
		default:
			// Slow subscriber; drop rather than block the transition.
		}
	}

	result := job
	return &result, nil
}

func (s *MemoryStore) SubscribeChanges(ctx context.Context) (<-chan ChangeRecord, error) {
	ch := make(chan ChangeRecord, 64)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
