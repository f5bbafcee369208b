package registry

import (
	"context"
	"sync"
	"time"

	"github.com/clipgen/api/internal/model"
)

// MemoryRegistry is an in-process Registry for single-process deployments
// and tests.
type MemoryRegistry struct {
	mu    sync.RWMutex
	conns map[string]model.Connection
	byJob map[string]map[string]struct{}
	ttl   time.Duration
}

func NewMemoryRegistry(ttl time.Duration) *MemoryRegistry {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &MemoryRegistry{
		conns: make(map[string]model.Connection),
		byJob: make(map[string]map[string]struct{}),
		ttl:   ttl,
	}
}

func (r *MemoryRegistry) Register(ctx context.Context, conn model.Connection) error {
	if conn.ExpiresAt.IsZero() {
		conn.ExpiresAt = time.Now().Add(r.ttl)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[conn.ConnectionID]; ok {
		r.dropFromIndex(prev.JobID, conn.ConnectionID)
	}
	r.conns[conn.ConnectionID] = conn
	if r.byJob[conn.JobID] == nil {
		r.byJob[conn.JobID] = make(map[string]struct{})
	}
	r.byJob[conn.JobID][conn.ConnectionID] = struct{}{}
	return nil
}

func (r *MemoryRegistry) Unregister(ctx context.Context, connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[connectionID]
	if !ok {
		return nil
	}
	delete(r.conns, connectionID)
	r.dropFromIndex(conn.JobID, connectionID)
	return nil
}

func (r *MemoryRegistry) FindByJob(ctx context.Context, jobID string) ([]model.Connection, error) {
	now := time.Now()

	r.mu.RLock()
	ids := make([]string, 0, len(r.byJob[jobID]))
	for id := range r.byJob[jobID] {
		ids = append(ids, id)
	}
	conns := make([]model.Connection, 0, len(ids))
	var stale []string
	for _, id := range ids {
		conn, ok := r.conns[id]
		if !ok || conn.Expired(now) {
			stale = append(stale, id)
			continue
		}
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	r.reap(stale)
	return conns, nil
}

func (r *MemoryRegistry) FindAll(ctx context.Context) ([]model.Connection, error) {
	now := time.Now()

	r.mu.RLock()
	conns := make([]model.Connection, 0, len(r.conns))
	var stale []string
	for id, conn := range r.conns {
		if conn.Expired(now) {
			stale = append(stale, id)
			continue
		}
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	r.reap(stale)
	return conns, nil
}

func (r *MemoryRegistry) reap(ids []string) {
	if len(ids) == 0 {
		return
	}
	r.mu.Lock()
	for _, id := range ids {
		if conn, ok := r.conns[id]; ok {
			delete(r.conns, id)
			r.dropFromIndex(conn.JobID, id)
		}
	}
	r.mu.Unlock()
}

// dropFromIndex requires r.mu held.
func (r *MemoryRegistry) dropFromIndex(jobID, connectionID string) {
	if set, ok := r.byJob[jobID]; ok {
		delete(set, connectionID)
		if len(set) == 0 {
			delete(r.byJob, jobID)
		}
	}
}
