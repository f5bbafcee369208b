package detector

import (
	"context"
	"log"

	"github.com/clipgen/api/internal/model"
	"github.com/clipgen/api/internal/notify"
	"github.com/clipgen/api/internal/store"
	"github.com/clipgen/api/internal/ticket"
)

// Notifier is the slice of the dispatcher the detector needs.
type Notifier interface {
	NotifyJob(ctx context.Context, jobID string, event interface{}) (*notify.DeliveryReport, error)
	BroadcastAll(ctx context.Context, event interface{}) (*notify.DeliveryReport, error)
}

// Detector classifies observed job status transitions and emits the
// corresponding notifications. It is purely reactive: the change feed tells
// it what happened, it decides who hears about it.
type Detector struct {
	counter  ticket.Counter
	guard    TransitionGuard
	notifier Notifier
}

func NewDetector(counter ticket.Counter, guard TransitionGuard, notifier Notifier) *Detector {
	return &Detector{
		counter:  counter,
		guard:    guard,
		notifier: notifier,
	}
}

// OnJobChange handles one change record. A transition into a terminal status
// advances the now-serving counter and triggers the queue-wide broadcast;
// every real transition triggers a job-targeted update. Redelivered records
// are suppressed by the guard, so nowServing moves exactly once per
// transition no matter how many times the feed replays it.
func (d *Detector) OnJobChange(ctx context.Context, jobID string, old, new *model.Job) error {
	if new == nil {
		return nil
	}
	if old != nil && old.Status == new.Status {
		// Payload-only mutation, not a status transition.
		return nil
	}

	won, err := d.guard.Admit(ctx, jobID, new.Status)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	// Any exit from the queue frees a serving slot, whether the job was
	// being processed or failed before pickup.
	if new.Status.IsTerminal() && (old == nil || !old.Status.IsTerminal()) {
		d.advanceAndBroadcast(ctx, jobID)
	}

	if _, err := d.notifier.NotifyJob(ctx, jobID, model.NewJobUpdate(new)); err != nil {
		// Notification failures affect timeliness only; the recorded status
		// is already correct.
		log.Printf("Job notification for %s failed: %v", jobID, err)
	}
	return nil
}

func (d *Detector) advanceAndBroadcast(ctx context.Context, jobID string) {
	nowServing, err := d.counter.AdvanceNowServing(ctx)
	if err != nil {
		// The transition itself must not block on the counter. A missed
		// increment only delays queue-position accuracy.
		log.Printf("Failed to advance now-serving for job %s: %v", jobID, err)
		return
	}
	if _, err := d.notifier.BroadcastAll(ctx, model.NewQueueUpdate(nowServing)); err != nil {
		log.Printf("Queue broadcast failed at now-serving %d: %v", nowServing, err)
	}
}

// Run consumes the change feed until ctx is cancelled. Intended to be run
// as a goroutine from main.
func (d *Detector) Run(ctx context.Context, feed <-chan store.ChangeRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case record, ok := <-feed:
			if !ok {
				return
			}
			if err := d.OnJobChange(ctx, record.JobID, record.Old, record.New); err != nil {
				log.Printf("Change record for job %s not processed: %v", record.JobID, err)
			}
		}
	}
}
