package store

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrConcurrencyConflict is returned when an append carries a stale expected
	// version. The caller should reload the aggregate and retry the command.
	ErrConcurrencyConflict = errors.New("concurrency conflict: expected version is stale")

	// ErrStorageUnavailable is returned when the backing store cannot be reached.
	// It is fatal for the current operation.
	ErrStorageUnavailable = errors.New("event store unavailable")
)

// EventMetadata carries correlation and causation identifiers across a chain
// of commands and the events they produce.
type EventMetadata struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	CausationID   string `json:"causation_id,omitempty"`
}

// Event represents one immutable domain event in an aggregate stream
type Event struct {
	ID             string          `json:"id"`
	AggregateID    string          `json:"aggregate_id"`
	AggregateType  string          `json:"aggregate_type"`
	EventType      string          `json:"event_type"`
	SchemaVersion  int             `json:"schema_version"`
	Data           json.RawMessage `json:"data"`
	Metadata       EventMetadata   `json:"metadata"`
	Version        int             `json:"version"`
	GlobalPosition int64           `json:"global_position"`
	Timestamp      time.Time       `json:"timestamp"`
}

// MarshalJSON returns the JSON encoding of the event
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(&struct{ Alias }{Alias: Alias(e)})
}

// PendingEvent is an event recorded by an aggregate but not yet appended.
// The store assigns ID, version, global position and timestamp on append.
type PendingEvent struct {
	EventType     string
	SchemaVersion int
	Data          any
	Metadata      EventMetadata
}
