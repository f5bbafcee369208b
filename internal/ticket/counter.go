package ticket

import "context"

// Snapshot is a best-effort consistent read of the two queue counters. It may
// race with concurrent increments; callers must tolerate staleness.
type Snapshot struct {
	NextTicket uint64 `json:"nextTicket"`
	NowServing uint64 `json:"nowServing"`
}

// Counter is the shared "take a number" counter pair. NextTicket is bumped
// once per admitted job, NowServing once per job leaving the queue, and
// NowServing never overtakes NextTicket.
type Counter interface {
	// Next atomically increments and returns the next ticket ordinal.
	Next(ctx context.Context) (uint64, error)

	// AdvanceNowServing atomically increments and returns the now-serving
	// ordinal.
	AdvanceNowServing(ctx context.Context) (uint64, error)

	Snapshot(ctx context.Context) (Snapshot, error)
}

// Position computes a ticket's remaining queue position given the counters.
func Position(ticket, nowServing uint64) uint64 {
	if ticket <= nowServing {
		return 0
	}
	return ticket - nowServing
}
