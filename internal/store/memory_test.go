package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clipgen/api/internal/model"
)

func TestMemoryStore_PutAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	job := &model.Job{ID: "j1", OwnerID: "u1", TicketNumber: 1, Status: model.JobStatusQueued}
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("PutJob failed: %v", err)
	}

	found, err := s.GetJob(ctx, "u1", "j1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if found.ID != "j1" || found.TicketNumber != 1 {
		t.Errorf("job mismatch: got %+v", found)
	}
}

func TestMemoryStore_GetJob_WrongOwner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.PutJob(ctx, &model.Job{ID: "j1", OwnerID: "u1", Status: model.JobStatusQueued})

	_, err := s.GetJob(ctx, "u2", "j1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign owner, got %v", err)
	}
}

func TestMemoryStore_UpdateStatus_EmitsChangeRecord(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = s.PutJob(ctx, &model.Job{ID: "j1", OwnerID: "u1", Status: model.JobStatusQueued})

	feed, err := s.SubscribeChanges(ctx)
	if err != nil {
		t.Fatalf("SubscribeChanges failed: %v", err)
	}

	updated, err := s.UpdateStatus(ctx, "j1", model.JobStatusQueued, model.JobStatusProcessing, nil)
	if err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}
	if updated.Status != model.JobStatusProcessing {
		t.Errorf("expected processing, got %s", updated.Status)
	}

	select {
	case record := <-feed:
		if record.JobID != "j1" {
			t.Errorf("expected change for j1, got %s", record.JobID)
		}
		if record.Old.Status != model.JobStatusQueued || record.New.Status != model.JobStatusProcessing {
			t.Errorf("unexpected transition: %s -> %s", record.Old.Status, record.New.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("no change record received")
	}
}

func TestMemoryStore_UpdateStatus_Conflict(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.PutJob(ctx, &model.Job{ID: "j1", OwnerID: "u1", Status: model.JobStatusProcessing})

	_, err := s.UpdateStatus(ctx, "j1", model.JobStatusQueued, model.JobStatusProcessing, nil)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestMemoryStore_UpdateStatus_ConcurrentSingleWinner(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = s.PutJob(ctx, &model.Job{ID: "j1", OwnerID: "u1", Status: model.JobStatusProcessing})

	const workers = 10
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateStatus(ctx, "j1", model.JobStatusProcessing, model.JobStatusCompleted, nil)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winning transition, got %d", wins)
	}
}
