package ticket

import (
	"context"
	"sort"
	"sync"
	"testing"
)

func TestMemoryCounter_NextIsSequential(t *testing.T) {
	c := NewMemoryCounter()
	for want := uint64(1); want <= 5; want++ {
		got, err := c.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if got != want {
			t.Errorf("expected ticket %d, got %d", want, got)
		}
	}
}

func TestMemoryCounter_ConcurrentNextIsPermutation(t *testing.T) {
	const n = 1000
	c := NewMemoryCounter()

	tickets := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := c.Next(context.Background())
			if err != nil {
				t.Errorf("Next failed: %v", err)
				return
			}
			tickets[i] = ticket
		}(i)
	}
	wg.Wait()

	sort.Slice(tickets, func(i, j int) bool { return tickets[i] < tickets[j] })
	for i, ticket := range tickets {
		if ticket != uint64(i+1) {
			t.Fatalf("expected ticket %d at position %d, got %d (duplicate or gap)", i+1, i, ticket)
		}
	}
}

func TestMemoryCounter_NowServingNeverOvertakesNextTicket(t *testing.T) {
	c := NewMemoryCounter()
	ctx := context.Background()

	const jobs = 100
	var wg sync.WaitGroup
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Next(ctx); err != nil {
				t.Errorf("Next failed: %v", err)
				return
			}
			if _, err := c.AdvanceNowServing(ctx); err != nil {
				t.Errorf("AdvanceNowServing failed: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.NowServing > snap.NextTicket {
		t.Errorf("invariant violated: nowServing %d > nextTicket %d", snap.NowServing, snap.NextTicket)
	}
	if snap.NextTicket != jobs {
		t.Errorf("expected nextTicket %d, got %d", jobs, snap.NextTicket)
	}
}

func TestPosition(t *testing.T) {
	tests := []struct {
		name       string
		ticket     uint64
		nowServing uint64
		want       uint64
	}{
		{"ahead of serving", 10, 4, 6},
		{"next in line", 5, 4, 1},
		{"already served", 4, 4, 0},
		{"stale ticket", 3, 7, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Position(tt.ticket, tt.nowServing); got != tt.want {
				t.Errorf("Position(%d, %d) = %d, want %d", tt.ticket, tt.nowServing, got, tt.want)
			}
		})
	}
}
