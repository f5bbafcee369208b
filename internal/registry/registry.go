package registry

import (
	"context"

	"github.com/clipgen/api/internal/model"
)

// Registry tracks active subscriber connections. Entries carry a TTL and the
// active set is eventually consistent: expired entries are skipped at lookup
// time and reaped lazily.
type Registry interface {
	// Register records a connection. Re-registering the same connectionID
	// overwrites the previous entry.
	Register(ctx context.Context, conn model.Connection) error

	// Unregister removes a connection. Unknown IDs are a no-op.
	Unregister(ctx context.Context, connectionID string) error

	// FindByJob returns the live connections subscribed to jobID.
	FindByJob(ctx context.Context, jobID string) ([]model.Connection, error)

	// FindAll returns every live connection, for queue-wide broadcast.
	FindAll(ctx context.Context) ([]model.Connection, error)
}
