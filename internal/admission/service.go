package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clipgen/api/internal/model"
	"github.com/clipgen/api/internal/store"
	"github.com/clipgen/api/internal/ticket"
)

// Enqueuer hands an admitted job to the processing worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID, ownerID string) error
}

// Service admits new generation jobs: it allocates a ticket, persists the
// job record, and enqueues it for processing. The three effects are not one
// transaction; a crash after ticket allocation leaks a ticket number, which
// is harmless since tickets are sparse ordinals. Enqueue failure is fatal to
// the admission call.
type Service struct {
	counter  ticket.Counter
	store    store.Store
	enqueuer Enqueuer
}

func NewService(counter ticket.Counter, jobStore store.Store, enqueuer Enqueuer) *Service {
	return &Service{
		counter:  counter,
		store:    jobStore,
		enqueuer: enqueuer,
	}
}

// Admit creates a job in the queued state with a freshly issued ticket.
func (s *Service) Admit(ctx context.Context, ownerID string, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	spec, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal job spec: %w", err)
	}

	ticketNumber, err := s.counter.Next(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate ticket: %w", err)
	}

	job := &model.Job{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		TicketNumber: ticketNumber,
		Status:       model.JobStatusQueued,
		Spec:         spec,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.PutJob(ctx, job); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	if err := s.enqueuer.Enqueue(ctx, job.ID, ownerID); err != nil {
		// The persisted record is now orphaned in queued state and needs
		// external reconciliation; surface the admission as failed.
		log.Printf("Enqueue failed for job %s (ticket %d): %v", job.ID, ticketNumber, err)
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return &model.GenerateResponse{
		JobID:         job.ID,
		TicketNumber:  ticketNumber,
		Status:        model.JobStatusQueued,
		QueuePosition: s.queuePosition(ctx, ticketNumber),
		CreatedAt:     job.CreatedAt,
	}, nil
}

// queuePosition is best-effort; a stale snapshot only affects the displayed
// position, never the job itself.
func (s *Service) queuePosition(ctx context.Context, ticketNumber uint64) uint64 {
	snap, err := s.counter.Snapshot(ctx)
	if err != nil {
		log.Printf("Counter snapshot failed: %v", err)
		return ticket.Position(ticketNumber, 0)
	}
	return ticket.Position(ticketNumber, snap.NowServing)
}
