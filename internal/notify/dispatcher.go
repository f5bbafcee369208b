package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clipgen/api/internal/model"
	"github.com/clipgen/api/internal/registry"
)

// ErrUnreachable is returned by a Transport when the connection is dead or
// unknown.
var ErrUnreachable = errors.New("connection unreachable")

// Transport pushes one payload to one subscriber connection.
type Transport interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}

// DeliveryReport summarizes one fan-out call. Failed connections have been
// unregistered as a side effect.
type DeliveryReport struct {
	Attempted int
	Delivered int
	Failed    []string
}

// Dispatcher delivers notification events to registry-matched connections.
// Delivery is best-effort and at-most-once per connection per call: failures
// are pruned, never retried.
type Dispatcher struct {
	registry    registry.Registry
	transport   Transport
	batchSize   int
	concurrency int
	sendTimeout time.Duration
}

func NewDispatcher(reg registry.Registry, transport Transport, batchSize, concurrency int, sendTimeout time.Duration) *Dispatcher {
	if batchSize < 1 {
		batchSize = 100
	}
	if concurrency < 1 {
		concurrency = 16
	}
	if sendTimeout <= 0 {
		sendTimeout = 5 * time.Second
	}
	return &Dispatcher{
		registry:    reg,
		transport:   transport,
		batchSize:   batchSize,
		concurrency: concurrency,
		sendTimeout: sendTimeout,
	}
}

// NotifyJob delivers an event to every connection subscribed to jobID. An
// unknown job simply matches zero connections.
func (d *Dispatcher) NotifyJob(ctx context.Context, jobID string, event interface{}) (*DeliveryReport, error) {
	conns, err := d.registry.FindByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("resolve connections for job %s: %w", jobID, err)
	}
	return d.deliver(ctx, conns, event)
}

// BroadcastAll delivers an event to every live connection.
func (d *Dispatcher) BroadcastAll(ctx context.Context, event interface{}) (*DeliveryReport, error) {
	conns, err := d.registry.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve connections for broadcast: %w", err)
	}
	return d.deliver(ctx, conns, event)
}

func (d *Dispatcher) deliver(ctx context.Context, conns []model.Connection, event interface{}) (*DeliveryReport, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	report := &DeliveryReport{Attempted: len(conns)}
	if len(conns) == 0 {
		return report, nil
	}

	var mu sync.Mutex
	// Batches shape the load on the downstream transport; within a batch the
	// sends run with bounded parallelism.
	for start := 0; start < len(conns); start += d.batchSize {
		end := start + d.batchSize
		if end > len(conns) {
			end = len(conns)
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(d.concurrency)
		for _, conn := range conns[start:end] {
			conn := conn
			g.Go(func() error {
				sendCtx, cancel := context.WithTimeout(gctx, d.sendTimeout)
				err := d.transport.Send(sendCtx, conn.ConnectionID, payload)
				cancel()

				mu.Lock()
				if err != nil {
					report.Failed = append(report.Failed, conn.ConnectionID)
				} else {
					report.Delivered++
				}
				mu.Unlock()

				if err != nil {
					d.prune(ctx, conn.ConnectionID, err)
				}
				return nil
			})
		}
		// Send errors are absorbed into the report, so Wait is a join only.
		g.Wait()
	}
	return report, nil
}

func (d *Dispatcher) prune(ctx context.Context, connectionID string, sendErr error) {
	if !errors.Is(sendErr, ErrUnreachable) && !errors.Is(sendErr, context.DeadlineExceeded) {
		log.Printf("Delivery to %s failed: %v", connectionID, sendErr)
	}
	if err := d.registry.Unregister(ctx, connectionID); err != nil {
		log.Printf("Failed to unregister dead connection %s: %v", connectionID, err)
	}
}
