package store

// ReadStoreInterface defines the interface for read model storage.
// Read models are derived state; they can always be rebuilt from the event log.
type ReadStoreInterface interface {
	// Set upserts a read model
	Set(collection, id string, data any) error

	// Get retrieves a read model by id
	Get(collection, id string) (any, bool, error)

	// GetAll retrieves all items in a collection
	GetAll(collection string) ([]any, error)

	// Delete removes a read model
	Delete(collection, id string) error

	// Update modifies a read model using an update function. It reports whether
	// the read model existed.
	Update(collection, id string, updateFn func(current any) any) (bool, error)
}
