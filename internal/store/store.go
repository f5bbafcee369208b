package store

import (
	"context"
	"errors"

	"github.com/clipgen/api/internal/model"
)

var (
	// ErrNotFound is returned when a job does not exist or belongs to a
	// different owner.
	ErrNotFound = errors.New("job not found")

	// ErrConflict is returned when a status transition's precondition no
	// longer holds (another worker got there first).
	ErrConflict = errors.New("job status conflict")
)

// ChangeRecord describes one observed job mutation, as delivered by the
// change feed. Delivery is at-least-once; consumers must be idempotent.
type ChangeRecord struct {
	JobID string     `json:"jobId"`
	Old   *model.Job `json:"old,omitempty"`
	New   *model.Job `json:"new"`
}

// Store persists job records and exposes their mutations as a change feed.
type Store interface {
	// GetJob returns the job, or ErrNotFound if it does not exist or is not
	// owned by ownerID.
	GetJob(ctx context.Context, ownerID, jobID string) (*model.Job, error)

	// PutJob creates or replaces a job record.
	PutJob(ctx context.Context, job *model.Job) error

	// UpdateStatus transitions a job from one status to another as a single
	// conditional write, applies mutate to the record, and emits a
	// ChangeRecord on the feed. Returns ErrConflict when the job is no
	// longer in the from status.
	UpdateStatus(ctx context.Context, jobID string, from, to model.JobStatus, mutate func(*model.Job)) (*model.Job, error)

	// SubscribeChanges yields job mutations until ctx is cancelled.
	SubscribeChanges(ctx context.Context) (<-chan ChangeRecord, error)
}
