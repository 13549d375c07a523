package store

import "context"

// EventStoreInterface defines the interface for event stores
type EventStoreInterface interface {
	// Append atomically writes all pending events at sequential versions
	// following expectedVersion. It fails with ErrConcurrencyConflict when the
	// stream head is not at expectedVersion. Partial writes never happen.
	Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, pending []PendingEvent) ([]Event, error)

	// ReadStream returns the events of one aggregate with version > fromVersion,
	// strictly ordered by version. Pass 0 for the full stream.
	ReadStream(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)

	// ReadAll returns events across all aggregates with a global position greater
	// than afterPosition, in global append order. limit <= 0 means no limit.
	ReadAll(ctx context.Context, afterPosition int64, limit int) ([]Event, error)

	// SaveSnapshot upserts the snapshot for an aggregate (keep-latest policy)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error

	// GetSnapshot returns the latest snapshot for an aggregate, or nil
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
}
