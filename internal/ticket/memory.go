package ticket

import (
	"context"
	"sync/atomic"
)

// MemoryCounter implements Counter with process-local atomics. Suitable for
// single-process deployments and tests.
type MemoryCounter struct {
	nextTicket atomic.Uint64
	nowServing atomic.Uint64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func (c *MemoryCounter) Next(ctx context.Context) (uint64, error) {
	return c.nextTicket.Add(1), nil
}

func (c *MemoryCounter) AdvanceNowServing(ctx context.Context) (uint64, error) {
	return c.nowServing.Add(1), nil
}

func (c *MemoryCounter) Snapshot(ctx context.Context) (Snapshot, error) {
	return Snapshot{
		NextTicket: c.nextTicket.Load(),
		NowServing: c.nowServing.Load(),
	}, nil
}
