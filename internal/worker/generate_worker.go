package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clipgen/api/internal/client"
	"github.com/clipgen/api/internal/model"
	"github.com/clipgen/api/internal/store"
)

// GenerateWorker processes video generation tasks. All status transitions go
// through the job store, whose change feed drives client notifications; the
// worker itself never talks to connections.
type GenerateWorker struct {
	store     store.Store
	inference *client.InferenceClient
	media     client.MediaStore
}

// NewGenerateWorker creates a generation worker. media may be nil when no
// object store is configured; mock URLs are used instead.
func NewGenerateWorker(jobStore store.Store, inference *client.InferenceClient, media client.MediaStore) *GenerateWorker {
	return &GenerateWorker{
		store:     jobStore,
		inference: inference,
		media:     media,
	}
}

// ProcessTask handles one generation task
func (w *GenerateWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload taskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID := payload.JobID
	log.Printf("Starting generation job: %s", jobID)

	job, err := w.claim(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		// Another delivery of this task already claimed the job.
		return nil
	}

	var req model.GenerateRequest
	if err := json.Unmarshal(job.Spec, &req); err != nil {
		w.failJob(ctx, jobID, "Invalid job spec")
		return fmt.Errorf("failed to unmarshal job spec: %v: %w", err, asynq.SkipRetry)
	}

	outputKey := fmt.Sprintf("videos/%s/%s.mp4", payload.OwnerID, jobID)
	videoURL, err := w.generate(ctx, jobID, &req, outputKey)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("Generation job %s cancelled", jobID)
			return err
		}
		w.failJob(ctx, jobID, err.Error())
		return err
	}

	now := time.Now().UTC()
	_, err = w.store.UpdateStatus(ctx, jobID, model.JobStatusProcessing, model.JobStatusCompleted, func(j *model.Job) {
		j.VideoKey = outputKey
		j.VideoURL = videoURL
		j.CompletedAt = &now
	})
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", jobID, err)
	}

	log.Printf("Generation job %s completed", jobID)
	return nil
}

// claim moves the job into processing. Returns (nil, nil) when the job is no
// longer queued, which means a concurrent delivery won the claim.
func (w *GenerateWorker) claim(ctx context.Context, jobID string) (*model.Job, error) {
	now := time.Now().UTC()
	job, err := w.store.UpdateStatus(ctx, jobID, model.JobStatusQueued, model.JobStatusProcessing, func(j *model.Job) {
		j.StartedAt = &now
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, nil
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("job %s vanished: %w", jobID, asynq.SkipRetry)
		}
		return nil, err
	}
	return job, nil
}

func (w *GenerateWorker) generate(ctx context.Context, jobID string, req *model.GenerateRequest, outputKey string) (string, error) {
	if w.inference.IsConfigured() {
		result, err := w.inference.Generate(ctx, &client.GenerateVideoRequest{
			JobID:          jobID,
			Prompt:         req.Prompt,
			NegativePrompt: req.NegativePrompt,
			DurationSec:    req.DurationSec,
			Width:          req.Width,
			Height:         req.Height,
			Seed:           req.Seed,
			GuidanceScale:  req.GuidanceScale,
			OutputKey:      outputKey,
		})
		if err != nil {
			return "", fmt.Errorf("generation failed: %w", err)
		}
		return w.resolveURL(result.OutputKey), nil
	}

	// Mock pipeline for local development without a GPU service.
	steps := []struct {
		step     string
		duration time.Duration
	}{
		{"Encoding prompt...", 500 * time.Millisecond},
		{"Sampling latents...", 2 * time.Second},
		{"Decoding frames...", time.Second},
		{"Encoding video...", 500 * time.Millisecond},
	}
	for _, s := range steps {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.duration):
		}
		log.Printf("Job %s: %s", jobID, s.step)
	}
	return w.resolveURL(outputKey), nil
}

func (w *GenerateWorker) resolveURL(key string) string {
	if w.media != nil {
		return w.media.GetPublicURL(key)
	}
	return fmt.Sprintf("https://cdn.clipgen.dev/%s", key)
}

func (w *GenerateWorker) failJob(ctx context.Context, jobID, errMsg string) {
	now := time.Now().UTC()
	_, err := w.store.UpdateStatus(ctx, jobID, model.JobStatusProcessing, model.JobStatusFailed, func(j *model.Job) {
		j.ErrorMessage = errMsg
		j.CompletedAt = &now
	})
	if err != nil {
		log.Printf("Failed to mark job %s as failed: %v", jobID, err)
	}
}
