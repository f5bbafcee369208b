// Package e2e exercises the ticketing and notification core end to end with
// in-memory backends: admission -> store -> change feed -> detector ->
// dispatcher -> transport.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/clipgen/api/internal/admission"
	"github.com/clipgen/api/internal/detector"
	"github.com/clipgen/api/internal/model"
	"github.com/clipgen/api/internal/notify"
	"github.com/clipgen/api/internal/registry"
	"github.com/clipgen/api/internal/store"
	"github.com/clipgen/api/internal/ticket"
)

// memTransport collects delivered payloads per connection.
type memTransport struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func newMemTransport() *memTransport {
	return &memTransport{messages: make(map[string][][]byte)}
}

func (t *memTransport) Send(ctx context.Context, connectionID string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	buf := make([]byte, len(payload))
	copy(buf, payload)
	t.messages[connectionID] = append(t.messages[connectionID], buf)
	return nil
}

func (t *memTransport) received(connectionID string) [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messages[connectionID]
}

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(ctx context.Context, jobID, ownerID string) error { return nil }

type fixture struct {
	counter   *ticket.MemoryCounter
	store     *store.MemoryStore
	registry  *registry.MemoryRegistry
	transport *memTransport
	admission *admission.Service
	detector  *detector.Detector
	cancel    context.CancelFunc
}

func setup(t *testing.T) *fixture {
	t.Helper()

	counter := ticket.NewMemoryCounter()
	jobStore := store.NewMemoryStore()
	reg := registry.NewMemoryRegistry(time.Hour)
	transport := newMemTransport()
	dispatcher := notify.NewDispatcher(reg, transport, 100, 8, time.Second)
	det := detector.NewDetector(counter, detector.NewMemoryGuard(), dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	feed, err := jobStore.SubscribeChanges(ctx)
	if err != nil {
		t.Fatalf("SubscribeChanges failed: %v", err)
	}
	go det.Run(ctx, feed)

	return &fixture{
		counter:   counter,
		store:     jobStore,
		registry:  reg,
		transport: transport,
		admission: admission.NewService(counter, jobStore, noopEnqueuer{}),
		detector:  det,
		cancel:    cancel,
	}
}

func (f *fixture) subscribe(t *testing.T, connID, ownerID, jobID string) {
	t.Helper()
	now := time.Now()
	err := f.registry.Register(context.Background(), model.Connection{
		ConnectionID:  connID,
		OwnerID:       ownerID,
		JobID:         jobID,
		EstablishedAt: now,
		ExpiresAt:     now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestAdmitTransitionNotifyFlow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := &model.GenerateRequest{Prompt: "a lighthouse in a storm"}

	j1, err := f.admission.Admit(ctx, "u1", req)
	if err != nil {
		t.Fatalf("admit j1 failed: %v", err)
	}
	j2, err := f.admission.Admit(ctx, "u2", req)
	if err != nil {
		t.Fatalf("admit j2 failed: %v", err)
	}
	if j2.TicketNumber != j1.TicketNumber+1 {
		t.Errorf("expected consecutive tickets, got %d then %d", j1.TicketNumber, j2.TicketNumber)
	}

	// One watcher on j1, one on j2.
	f.subscribe(t, "watcher-j1", "u1", j1.JobID)
	f.subscribe(t, "watcher-j2", "u2", j2.JobID)

	// j1 runs to completion.
	if _, err := f.store.UpdateStatus(ctx, j1.JobID, model.JobStatusQueued, model.JobStatusProcessing, nil); err != nil {
		t.Fatalf("transition to processing failed: %v", err)
	}
	now := time.Now().UTC()
	_, err = f.store.UpdateStatus(ctx, j1.JobID, model.JobStatusProcessing, model.JobStatusCompleted, func(j *model.Job) {
		j.VideoURL = "https://cdn.clipgen.dev/videos/u1/j1.mp4"
		j.CompletedAt = &now
	})
	if err != nil {
		t.Fatalf("transition to completed failed: %v", err)
	}

	// The j1 watcher eventually sees a completed JOB_UPDATE.
	waitFor(t, func() bool {
		for _, payload := range f.transport.received("watcher-j1") {
			var msg model.JobUpdateMessage
			if json.Unmarshal(payload, &msg) == nil &&
				msg.Type == model.MessageTypeJobUpdate &&
				msg.JobID == j1.JobID &&
				msg.Status == model.JobStatusCompleted {
				return true
			}
		}
		return false
	})

	// nowServing advanced exactly once.
	waitFor(t, func() bool {
		snap, err := f.counter.Snapshot(ctx)
		return err == nil && snap.NowServing == 1
	})

	// The j2 watcher got the queue-wide broadcast but no j1 update.
	waitFor(t, func() bool {
		for _, payload := range f.transport.received("watcher-j2") {
			var msg model.QueueUpdateMessage
			if json.Unmarshal(payload, &msg) == nil && msg.Type == model.MessageTypeQueueUpdate && msg.NowServing == 1 {
				return true
			}
		}
		return false
	})
	for _, payload := range f.transport.received("watcher-j2") {
		var msg model.JobUpdateMessage
		if json.Unmarshal(payload, &msg) == nil && msg.Type == model.MessageTypeJobUpdate && msg.JobID == j1.JobID {
			t.Error("watcher-j2 received a JOB_UPDATE for j1")
		}
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := &model.GenerateRequest{Prompt: "timelapse of a city at night"}
	j1, err := f.admission.Admit(ctx, "u1", req)
	if err != nil {
		t.Fatalf("admit failed: %v", err)
	}

	const subscribers = 50
	for i := 0; i < subscribers; i++ {
		f.subscribe(t, connName(i), "u1", j1.JobID)
	}

	if _, err := f.store.UpdateStatus(ctx, j1.JobID, model.JobStatusQueued, model.JobStatusProcessing, nil); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if _, err := f.store.UpdateStatus(ctx, j1.JobID, model.JobStatusProcessing, model.JobStatusFailed, func(j *model.Job) {
		j.ErrorMessage = "CUDA out of memory"
	}); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	// Every subscriber gets exactly one QUEUE_UPDATE and one failed
	// JOB_UPDATE carrying the error message.
	waitFor(t, func() bool {
		for i := 0; i < subscribers; i++ {
			var queueUpdates, jobUpdates int
			for _, payload := range f.transport.received(connName(i)) {
				var generic model.WSMessage
				if json.Unmarshal(payload, &generic) != nil {
					continue
				}
				switch generic.Type {
				case model.MessageTypeQueueUpdate:
					queueUpdates++
				case model.MessageTypeJobUpdate:
					jobUpdates++
				}
			}
			if queueUpdates != 1 || jobUpdates < 2 {
				return false
			}
		}
		return true
	})

	payloads := f.transport.received(connName(0))
	var sawError bool
	for _, payload := range payloads {
		var msg model.JobUpdateMessage
		if json.Unmarshal(payload, &msg) == nil && msg.Status == model.JobStatusFailed {
			if msg.ErrorMessage != "CUDA out of memory" {
				t.Errorf("expected error message in terminal payload, got %q", msg.ErrorMessage)
			}
			sawError = true
		}
	}
	if !sawError {
		t.Error("no failed JOB_UPDATE observed")
	}
}

func connName(i int) string {
	return fmt.Sprintf("sub-%d", i)
}
