package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskTypeGenerate is the asynq task type for video generation jobs
	TaskTypeGenerate = "video:generate"

	// QueueVideo is the asynq queue generation tasks are routed to
	QueueVideo = "video"
)

type taskPayload struct {
	JobID   string `json:"jobId"`
	OwnerID string `json:"ownerId"`
}

// Enqueuer dispatches admitted jobs to the asynq worker pool. It satisfies
// admission.Enqueuer.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(client *asynq.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) Enqueue(ctx context.Context, jobID, ownerID string) error {
	data, err := json.Marshal(taskPayload{JobID: jobID, OwnerID: ownerID})
	if err != nil {
		return fmt.Errorf("failed to marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskTypeGenerate, data)
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueVideo),
		asynq.MaxRetry(3),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
