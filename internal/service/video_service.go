package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/clipgen/api/internal/client"
	"github.com/clipgen/api/internal/model"
	"github.com/clipgen/api/internal/store"
	"github.com/clipgen/api/internal/ticket"
)

// ErrNotCompleted is returned when a result is requested before the job
// reaches the completed state.
var ErrNotCompleted = fmt.Errorf("job not completed")

// VideoService serves job status and results. Writes go through the
// admission service; this is the read side.
type VideoService struct {
	store        store.Store
	counter      ticket.Counter
	media        client.MediaStore
	signedExpiry time.Duration
}

// NewVideoService creates the read-side service. media may be nil when no
// object store is configured.
func NewVideoService(jobStore store.Store, counter ticket.Counter, media client.MediaStore, signedExpiry time.Duration) *VideoService {
	if signedExpiry <= 0 {
		signedExpiry = time.Hour
	}
	return &VideoService{
		store:        jobStore,
		counter:      counter,
		media:        media,
		signedExpiry: signedExpiry,
	}
}

// GetStatus returns the job's current status with a live queue position.
func (s *VideoService) GetStatus(ctx context.Context, ownerID, jobID string) (*model.StatusResponse, error) {
	job, err := s.store.GetJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}

	var position uint64
	if !job.Status.IsTerminal() {
		snap, err := s.counter.Snapshot(ctx)
		if err != nil {
			// Stale position beats a failed status read.
			log.Printf("Counter snapshot failed: %v", err)
		} else {
			position = ticket.Position(job.TicketNumber, snap.NowServing)
		}
	}

	return &model.StatusResponse{
		JobID:         job.ID,
		Status:        job.Status,
		TicketNumber:  job.TicketNumber,
		QueuePosition: position,
		ErrorMessage:  job.ErrorMessage,
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
	}, nil
}

// GetResult returns the playable video URL for a completed job. The URL is
// presigned when an object store is configured.
func (s *VideoService) GetResult(ctx context.Context, ownerID, jobID string) (*model.ResultResponse, error) {
	job, err := s.store.GetJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrNotCompleted
	}

	videoURL := job.VideoURL
	if s.media != nil && job.VideoKey != "" {
		signed, err := s.media.GetSignedURL(ctx, job.VideoKey, s.signedExpiry)
		if err != nil {
			log.Printf("Presign failed for job %s, falling back to stored URL: %v", jobID, err)
		} else {
			videoURL = signed
		}
	}

	completedAt := job.CreatedAt
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}

	return &model.ResultResponse{
		JobID:       job.ID,
		VideoURL:    videoURL,
		ExpiresAt:   time.Now().UTC().Add(s.signedExpiry),
		CompletedAt: completedAt,
	}, nil
}

// GetQueue returns the global counters.
func (s *VideoService) GetQueue(ctx context.Context) (*model.QueueResponse, error) {
	snap, err := s.counter.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &model.QueueResponse{
		NextTicket: snap.NextTicket,
		NowServing: snap.NowServing,
	}, nil
}
