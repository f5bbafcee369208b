package detector

import (
	"context"
	"sync"
	"testing"

	"github.com/clipgen/api/internal/model"
	"github.com/clipgen/api/internal/notify"
	"github.com/clipgen/api/internal/ticket"
)

// recordingNotifier captures emitted events instead of delivering them.
type recordingNotifier struct {
	mu         sync.Mutex
	jobEvents  map[string][]interface{}
	broadcasts []interface{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{jobEvents: make(map[string][]interface{})}
}

func (n *recordingNotifier) NotifyJob(ctx context.Context, jobID string, event interface{}) (*notify.DeliveryReport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobEvents[jobID] = append(n.jobEvents[jobID], event)
	return &notify.DeliveryReport{}, nil
}

func (n *recordingNotifier) BroadcastAll(ctx context.Context, event interface{}) (*notify.DeliveryReport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, event)
	return &notify.DeliveryReport{}, nil
}

func (n *recordingNotifier) broadcastCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.broadcasts)
}

func job(id string, status model.JobStatus) *model.Job {
	return &model.Job{ID: id, OwnerID: "u1", TicketNumber: 1, Status: status}
}

func TestOnJobChange_TerminalTransitionAdvancesNowServing(t *testing.T) {
	counter := ticket.NewMemoryCounter()
	notifier := newRecordingNotifier()
	d := NewDetector(counter, NewMemoryGuard(), notifier)
	ctx := context.Background()

	counter.Next(ctx)

	err := d.OnJobChange(ctx, "j1", job("j1", model.JobStatusProcessing), job("j1", model.JobStatusCompleted))
	if err != nil {
		t.Fatalf("OnJobChange failed: %v", err)
	}

	snap, _ := counter.Snapshot(ctx)
	if snap.NowServing != 1 {
		t.Errorf("expected nowServing 1, got %d", snap.NowServing)
	}
	if notifier.broadcastCount() != 1 {
		t.Errorf("expected 1 queue broadcast, got %d", notifier.broadcastCount())
	}
	if len(notifier.jobEvents["j1"]) != 1 {
		t.Errorf("expected 1 job notification, got %d", len(notifier.jobEvents["j1"]))
	}
}

func TestOnJobChange_RedeliveryIsIdempotent(t *testing.T) {
	counter := ticket.NewMemoryCounter()
	notifier := newRecordingNotifier()
	d := NewDetector(counter, NewMemoryGuard(), notifier)
	ctx := context.Background()

	counter.Next(ctx)

	old := job("j1", model.JobStatusProcessing)
	new := job("j1", model.JobStatusCompleted)
	for i := 0; i < 2; i++ {
		if err := d.OnJobChange(ctx, "j1", old, new); err != nil {
			t.Fatalf("OnJobChange failed: %v", err)
		}
	}

	snap, _ := counter.Snapshot(ctx)
	if snap.NowServing != 1 {
		t.Errorf("redelivery double-incremented nowServing: got %d, want 1", snap.NowServing)
	}
	if len(notifier.jobEvents["j1"]) != 1 {
		t.Errorf("redelivery duplicated job notification: got %d", len(notifier.jobEvents["j1"]))
	}
}

func TestOnJobChange_ConcurrentRedelivery(t *testing.T) {
	counter := ticket.NewMemoryCounter()
	d := NewDetector(counter, NewMemoryGuard(), newRecordingNotifier())
	ctx := context.Background()

	counter.Next(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.OnJobChange(ctx, "j1", job("j1", model.JobStatusProcessing), job("j1", model.JobStatusFailed))
		}()
	}
	wg.Wait()

	snap, _ := counter.Snapshot(ctx)
	if snap.NowServing != 1 {
		t.Errorf("concurrent redelivery advanced nowServing %d times, want 1", snap.NowServing)
	}
}

func TestOnJobChange_NonTerminalTransitionDoesNotAdvance(t *testing.T) {
	counter := ticket.NewMemoryCounter()
	notifier := newRecordingNotifier()
	d := NewDetector(counter, NewMemoryGuard(), notifier)
	ctx := context.Background()

	counter.Next(ctx)

	err := d.OnJobChange(ctx, "j1", job("j1", model.JobStatusQueued), job("j1", model.JobStatusProcessing))
	if err != nil {
		t.Fatalf("OnJobChange failed: %v", err)
	}

	snap, _ := counter.Snapshot(ctx)
	if snap.NowServing != 0 {
		t.Errorf("non-terminal transition advanced nowServing to %d", snap.NowServing)
	}
	if notifier.broadcastCount() != 0 {
		t.Errorf("non-terminal transition triggered %d broadcasts", notifier.broadcastCount())
	}
	if len(notifier.jobEvents["j1"]) != 1 {
		t.Errorf("expected job notification for status change, got %d", len(notifier.jobEvents["j1"]))
	}
}

func TestOnJobChange_QueuedToFailedAdvances(t *testing.T) {
	counter := ticket.NewMemoryCounter()
	d := NewDetector(counter, NewMemoryGuard(), newRecordingNotifier())
	ctx := context.Background()

	counter.Next(ctx)

	// A job failing before pickup still leaves the queue.
	err := d.OnJobChange(ctx, "j1", job("j1", model.JobStatusQueued), job("j1", model.JobStatusFailed))
	if err != nil {
		t.Fatalf("OnJobChange failed: %v", err)
	}

	snap, _ := counter.Snapshot(ctx)
	if snap.NowServing != 1 {
		t.Errorf("queued->failed should advance nowServing, got %d", snap.NowServing)
	}
}

func TestOnJobChange_SameStatusIsIgnored(t *testing.T) {
	counter := ticket.NewMemoryCounter()
	notifier := newRecordingNotifier()
	d := NewDetector(counter, NewMemoryGuard(), notifier)

	err := d.OnJobChange(context.Background(), "j1", job("j1", model.JobStatusProcessing), job("j1", model.JobStatusProcessing))
	if err != nil {
		t.Fatalf("OnJobChange failed: %v", err)
	}
	if len(notifier.jobEvents["j1"]) != 0 {
		t.Errorf("payload-only change emitted %d notifications", len(notifier.jobEvents["j1"]))
	}
}

func TestOnJobChange_TerminalPayloadOnJobUpdate(t *testing.T) {
	counter := ticket.NewMemoryCounter()
	notifier := newRecordingNotifier()
	d := NewDetector(counter, NewMemoryGuard(), notifier)
	ctx := context.Background()

	counter.Next(ctx)

	completed := job("j1", model.JobStatusCompleted)
	completed.VideoURL = "https://cdn.example.com/videos/j1.mp4"
	if err := d.OnJobChange(ctx, "j1", job("j1", model.JobStatusProcessing), completed); err != nil {
		t.Fatalf("OnJobChange failed: %v", err)
	}

	events := notifier.jobEvents["j1"]
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	msg, ok := events[0].(model.JobUpdateMessage)
	if !ok {
		t.Fatalf("expected JobUpdateMessage, got %T", events[0])
	}
	if msg.Type != model.MessageTypeJobUpdate || msg.Status != model.JobStatusCompleted {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.VideoURL != completed.VideoURL {
		t.Errorf("terminal payload missing: %+v", msg)
	}
}
