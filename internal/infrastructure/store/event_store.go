package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/ledger-event-driven/internal/infrastructure/kafka"
	"github.com/google/uuid"
)

// EventStore is an in-memory event store with optimistic concurrency,
// used for tests and local development
type EventStore struct {
	mu             sync.RWMutex
	events         map[string][]Event // aggregateID -> events
	all            []Event            // global append order
	snapshots      map[string]*Snapshot
	globalPosition int64
	producer       *kafka.Producer
}

func NewEventStore(producer *kafka.Producer) *EventStore {
	return &EventStore{
		events:    make(map[string][]Event),
		snapshots: make(map[string]*Snapshot),
		producer:  producer,
	}
}

// Append writes all pending events with sequential versions after checking the
// expected version, then publishes the committed events to Kafka
func (es *EventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, pending []PendingEvent) ([]Event, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	es.mu.Lock()
	currentVersion := len(es.events[aggregateID])
	if currentVersion != expectedVersion {
		es.mu.Unlock()
		return nil, fmt.Errorf("%w: aggregate %s at version %d, expected %d",
			ErrConcurrencyConflict, aggregateID, currentVersion, expectedVersion)
	}

	stored := make([]Event, 0, len(pending))
	for i, p := range pending {
		jsonData, err := json.Marshal(p.Data)
		if err != nil {
			es.mu.Unlock()
			return nil, err
		}
		es.globalPosition++
		event := Event{
			ID:             uuid.New().String(),
			AggregateID:    aggregateID,
			AggregateType:  aggregateType,
			EventType:      p.EventType,
			SchemaVersion:  schemaVersionOrDefault(p.SchemaVersion),
			Data:           jsonData,
			Metadata:       p.Metadata,
			Version:        expectedVersion + i + 1,
			GlobalPosition: es.globalPosition,
			Timestamp:      time.Now(),
		}
		stored = append(stored, event)
	}
	es.events[aggregateID] = append(es.events[aggregateID], stored...)
	es.all = append(es.all, stored...)
	es.mu.Unlock()

	// Publish after commit. A publish failure does not undo the append; the
	// events remain in the log and consumers catch up via ReadAll checkpoints.
	if es.producer != nil {
		for _, event := range stored {
			if err := es.producer.Publish(ctx, aggregateID, event); err != nil {
				log.Printf("[EventStore] Failed to publish event %s: %v", event.ID, err)
			}
		}
	}

	return stored, nil
}

// ReadStream returns events for an aggregate with version > fromVersion
func (es *EventStore) ReadStream(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	stream := es.events[aggregateID]
	if fromVersion >= len(stream) {
		return nil, nil
	}
	out := make([]Event, len(stream)-fromVersion)
	copy(out, stream[fromVersion:])
	return out, nil
}

// ReadAll returns events across all aggregates after the given global position
func (es *EventStore) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]Event, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()

	var out []Event
	for _, event := range es.all {
		if event.GlobalPosition <= afterPosition {
			continue
		}
		out = append(out, event)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SaveSnapshot upserts the snapshot for an aggregate, keeping only the latest
func (es *EventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	es.mu.Lock()
	defer es.mu.Unlock()

	existing := es.snapshots[snapshot.AggregateID]
	if existing != nil && existing.Version >= snapshot.Version {
		return nil
	}
	es.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

// GetSnapshot returns the latest snapshot for an aggregate, or nil
func (es *EventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.snapshots[aggregateID], nil
}

func schemaVersionOrDefault(v int) int {
	if v <= 0 {
		return 1
	}
	return v
}
