package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/google/uuid"
)

// MockEventStore is a mock implementation of EventStoreInterface for testing
type MockEventStore struct {
	mu             sync.RWMutex
	events         map[string][]store.Event
	all            []store.Event
	snapshots      map[string]*store.Snapshot
	globalPosition int64

	// For tracking calls in tests
	AppendCalls    []AppendCall
	AppendErr      error
	AppendCallback func(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, pending []store.PendingEvent) ([]store.Event, error)
}

// AppendCall records parameters passed to Append
type AppendCall struct {
	AggregateID     string
	AggregateType   string
	ExpectedVersion int
	Pending         []store.PendingEvent
}

// NewMockEventStore creates a new MockEventStore
func NewMockEventStore() *MockEventStore {
	return &MockEventStore{
		events:      make(map[string][]store.Event),
		snapshots:   make(map[string]*store.Snapshot),
		AppendCalls: make([]AppendCall, 0),
	}
}

// Append stores events in memory with the same concurrency semantics as the
// real stores
func (m *MockEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, pending []store.PendingEvent) ([]store.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Record the call
	m.AppendCalls = append(m.AppendCalls, AppendCall{
		AggregateID:     aggregateID,
		AggregateType:   aggregateType,
		ExpectedVersion: expectedVersion,
		Pending:         pending,
	})

	// Use callback if provided
	if m.AppendCallback != nil {
		return m.AppendCallback(ctx, aggregateID, aggregateType, expectedVersion, pending)
	}

	// Return error if set
	if m.AppendErr != nil {
		return nil, m.AppendErr
	}

	currentVersion := len(m.events[aggregateID])
	if currentVersion != expectedVersion {
		return nil, fmt.Errorf("%w: aggregate %s at version %d, expected %d",
			store.ErrConcurrencyConflict, aggregateID, currentVersion, expectedVersion)
	}

	stored := make([]store.Event, 0, len(pending))
	for i, p := range pending {
		jsonData, err := json.Marshal(p.Data)
		if err != nil {
			return nil, err
		}
		m.globalPosition++
		event := store.Event{
			ID:             uuid.New().String(),
			AggregateID:    aggregateID,
			AggregateType:  aggregateType,
			EventType:      p.EventType,
			SchemaVersion:  1,
			Data:           jsonData,
			Metadata:       p.Metadata,
			Version:        expectedVersion + i + 1,
			GlobalPosition: m.globalPosition,
			Timestamp:      time.Now(),
		}
		stored = append(stored, event)
	}
	m.events[aggregateID] = append(m.events[aggregateID], stored...)
	m.all = append(m.all, stored...)
	return stored, nil
}

// ReadStream returns events for an aggregate with version > fromVersion
func (m *MockEventStore) ReadStream(ctx context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stream := m.events[aggregateID]
	if fromVersion >= len(stream) {
		return nil, nil
	}
	out := make([]store.Event, len(stream)-fromVersion)
	copy(out, stream[fromVersion:])
	return out, nil
}

// ReadAll returns events across all aggregates after the given global position
func (m *MockEventStore) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]store.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []store.Event
	for _, event := range m.all {
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

// SaveSnapshot stores a snapshot in memory
func (m *MockEventStore) SaveSnapshot(ctx context.Context, snapshot *store.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.snapshots[snapshot.AggregateID]
	if existing != nil && existing.Version >= snapshot.Version {
		return nil
	}
	m.snapshots[snapshot.AggregateID] = snapshot
	return nil
}

// GetSnapshot returns the latest snapshot for an aggregate, or nil
func (m *MockEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*store.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[aggregateID], nil
}
