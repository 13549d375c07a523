package store

import "sync"

// ReadStore is the in-memory read model store used by tests and local
// development. Rows live in named collections keyed by ID; everything here is
// derived state and can be rebuilt from the event log at any time.
type ReadStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]any
}

func NewReadStore() *ReadStore {
	return &ReadStore{collections: make(map[string]map[string]any)}
}

// Set upserts one row
func (rs *ReadStore) Set(collection, id string, data any) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rows := rs.collections[collection]
	if rows == nil {
		rows = make(map[string]any)
		rs.collections[collection] = rows
	}
	rows[id] = data
	return nil
}

// Get returns one row; ok is false when it does not exist
func (rs *ReadStore) Get(collection, id string) (any, bool, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	data, ok := rs.collections[collection][id]
	return data, ok, nil
}

// GetAll returns every row of a collection in no particular order
func (rs *ReadStore) GetAll(collection string) ([]any, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	rows := rs.collections[collection]
	if len(rows) == 0 {
		return nil, nil
	}
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	return out, nil
}

// Delete removes one row; deleting a missing row is not an error
func (rs *ReadStore) Delete(collection, id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	delete(rs.collections[collection], id)
	return nil
}

// Update applies updateFn to an existing row under the store lock, so
// concurrent projector deliveries for the same aggregate cannot interleave.
// It reports false when the row does not exist.
func (rs *ReadStore) Update(collection, id string, updateFn func(current any) any) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	current, ok := rs.collections[collection][id]
	if !ok {
		return false, nil
	}
	rs.collections[collection][id] = updateFn(current)
	return true, nil
}
