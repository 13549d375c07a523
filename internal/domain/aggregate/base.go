package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
)

// Aggregate defines the interface for event-sourced aggregates.
// ApplyEvent must be a pure state transition: deterministic and free of I/O,
// using only what is embedded in the event.
type Aggregate interface {
	GetID() string
	GetVersion() int
	ApplyEvent(store.Event) error
}

// Recorder is the pending-event buffer side of an aggregate
type Recorder interface {
	PendingEvents() []store.PendingEvent
	ClearPending()
}

// Root is embedded by aggregates to buffer recorded events until Persist.
// Its fields are unexported so snapshots never serialize the buffer.
type Root struct {
	pending []store.PendingEvent
}

// RecordThat buffers a domain event for the next Persist
func (r *Root) RecordThat(eventType string, data any) {
	r.RecordWithMetadata(eventType, data, store.EventMetadata{})
}

// RecordWithMetadata buffers a domain event carrying correlation metadata
func (r *Root) RecordWithMetadata(eventType string, data any, metadata store.EventMetadata) {
	r.pending = append(r.pending, store.PendingEvent{
		EventType: eventType,
		Data:      data,
		Metadata:  metadata,
	})
}

// PendingEvents returns the buffered events
func (r *Root) PendingEvents() []store.PendingEvent { return r.pending }

// ClearPending empties the buffer
func (r *Root) ClearPending() { r.pending = nil }

// Load hydrates an aggregate by replaying events, using a snapshot if one
// exists. It returns the aggregate, a boolean indicating whether any data was
// found, and any error.
func Load[T Aggregate](
	ctx context.Context,
	eventStore store.EventStoreInterface,
	id string,
	newAggregate func() T,
) (T, bool, error) {
	agg := newAggregate()

	snapshot, err := eventStore.GetSnapshot(ctx, id)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("failed to get snapshot: %w", err)
	}

	fromVersion := 0
	if snapshot != nil {
		if err := json.Unmarshal(snapshot.State, agg); err != nil {
			var zero T
			return zero, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
		}
		fromVersion = snapshot.Version
	}

	events, err := eventStore.ReadStream(ctx, id, fromVersion)
	if err != nil {
		var zero T
		return zero, false, fmt.Errorf("failed to read stream: %w", err)
	}

	hasData := snapshot != nil || len(events) > 0

	for _, event := range events {
		if err := agg.ApplyEvent(event); err != nil {
			var zero T
			return zero, false, fmt.Errorf("failed to apply event: %w", err)
		}
	}

	return agg, hasData, nil
}

// Persist appends the aggregate's pending events at the version it was loaded
// at, then applies the stored events so the instance reflects the new head.
// A store.ErrConcurrencyConflict means another writer got there first; the
// caller should reload and reapply the command.
func Persist[T interface {
	Aggregate
	Recorder
}](ctx context.Context, eventStore store.EventStoreInterface, agg T, aggregateType string) ([]store.Event, error) {
	pending := agg.PendingEvents()
	if len(pending) == 0 {
		return nil, nil
	}

	stored, err := eventStore.Append(ctx, agg.GetID(), aggregateType, agg.GetVersion(), pending)
	if err != nil {
		return nil, err
	}
	agg.ClearPending()

	for _, event := range stored {
		if err := agg.ApplyEvent(event); err != nil {
			return stored, fmt.Errorf("failed to apply stored event: %w", err)
		}
	}
	return stored, nil
}

// TakeSnapshot serializes the aggregate state and saves it at its current version
func TakeSnapshot(ctx context.Context, eventStore store.EventStoreInterface, agg Aggregate, aggregateType string) error {
	state, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate state: %w", err)
	}

	snapshot := &store.Snapshot{
		AggregateID:   agg.GetID(),
		AggregateType: aggregateType,
		Version:       agg.GetVersion(),
		State:         state,
		CreatedAt:     time.Now(),
	}

	if err := eventStore.SaveSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}
