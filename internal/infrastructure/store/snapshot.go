package store

import (
	"encoding/json"
	"time"
)

// Snapshot represents a point-in-time state of an aggregate.
// A snapshot at version N is only ever combined with events of version > N;
// it is an optimization, never a second source of truth.
type Snapshot struct {
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	Version       int             `json:"version"` // Event version at snapshot time
	State         json.RawMessage `json:"state"`   // Serialized aggregate state
	CreatedAt     time.Time       `json:"created_at"`
}
