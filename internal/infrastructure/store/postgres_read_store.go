package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/example/ledger-event-driven/internal/readmodel"
)

// Collection names understood by the read stores
const (
	CollectionAccounts     = "accounts"
	CollectionTransactions = "transactions"
	CollectionTransfers    = "transfers"
	CollectionCounters     = "counters"
	CollectionCheckpoints  = "checkpoints"
)

// PostgresReadStore implements ReadStoreInterface using PostgreSQL
type PostgresReadStore struct {
	db *sql.DB
	mu sync.Mutex // serializes read-modify-write Updates
}

// NewPostgresReadStore creates a new PostgreSQL-based read store
func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

// Set upserts a read model
func (rs *PostgresReadStore) Set(collection, id string, data any) error {
	switch collection {
	case CollectionAccounts:
		return rs.setAccount(id, data.(*readmodel.AccountReadModel))
	case CollectionTransactions:
		return rs.setTransaction(id, data.(*readmodel.TransactionReadModel))
	case CollectionTransfers:
		return rs.setTransfer(id, data.(*readmodel.TransferReadModel))
	case CollectionCounters:
		return rs.setCounter(id, data.(*readmodel.SnapshotCounterModel))
	case CollectionCheckpoints:
		return rs.setCheckpoint(id, data.(*readmodel.CheckpointModel))
	}
	return fmt.Errorf("unknown collection %q", collection)
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(collection, id string) (any, bool, error) {
	switch collection {
	case CollectionAccounts:
		return rs.getAccount(id)
	case CollectionTransactions:
		return rs.getTransaction(id)
	case CollectionTransfers:
		return rs.getTransfer(id)
	case CollectionCounters:
		return rs.getCounter(id)
	case CollectionCheckpoints:
		return rs.getCheckpoint(id)
	}
	return nil, false, fmt.Errorf("unknown collection %q", collection)
}

// GetAll retrieves all items in a collection
func (rs *PostgresReadStore) GetAll(collection string) ([]any, error) {
	switch collection {
	case CollectionAccounts:
		return rs.getAllAccounts()
	case CollectionTransactions:
		return rs.getAllTransactions()
	case CollectionTransfers:
		return rs.getAllTransfers()
	}
	return nil, fmt.Errorf("unknown collection %q", collection)
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(collection, id string) error {
	var table, column string
	switch collection {
	case CollectionAccounts:
		table, column = "read_accounts", "id"
	case CollectionTransactions:
		table, column = "read_transactions", "id"
	case CollectionTransfers:
		table, column = "read_transfers", "id"
	case CollectionCounters:
		table, column = "snapshot_counters", "aggregate_id"
	case CollectionCheckpoints:
		table, column = "projector_checkpoints", "projector_name"
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}

	_, err := rs.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, column), id)
	return err
}

// Update modifies a read model using an update function. The store mutex keeps
// concurrent read-modify-write cycles from interleaving within this process;
// cross-process safety comes from the projector applying each aggregate's
// events in version order.
func (rs *PostgresReadStore) Update(collection, id string, updateFn func(current any) any) (bool, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	current, ok, err := rs.Get(collection, id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return true, rs.Set(collection, id, updateFn(current))
}

func (rs *PostgresReadStore) setAccount(id string, a *readmodel.AccountReadModel) error {
	_, err := rs.db.Exec(
		`INSERT INTO read_accounts (id, owner_id, currency, balance, account_limit, status, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET owner_id = EXCLUDED.owner_id, currency = EXCLUDED.currency,
		     balance = EXCLUDED.balance, account_limit = EXCLUDED.account_limit,
		     status = EXCLUDED.status, version = EXCLUDED.version,
		     updated_at = EXCLUDED.updated_at`,
		id, a.OwnerID, a.Currency, a.Balance, a.Limit, a.Status, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (rs *PostgresReadStore) getAccount(id string) (any, bool, error) {
	a := &readmodel.AccountReadModel{}
	err := rs.db.QueryRow(
		`SELECT id, owner_id, currency, balance, account_limit, status, version, created_at, updated_at
		 FROM read_accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.OwnerID, &a.Currency, &a.Balance, &a.Limit, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return a, true, nil
}

func (rs *PostgresReadStore) getAllAccounts() ([]any, error) {
	rows, err := rs.db.Query(
		`SELECT id, owner_id, currency, balance, account_limit, status, version, created_at, updated_at
		 FROM read_accounts ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		a := &readmodel.AccountReadModel{}
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Currency, &a.Balance, &a.Limit, &a.Status, &a.Version, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (rs *PostgresReadStore) setTransaction(id string, t *readmodel.TransactionReadModel) error {
	_, err := rs.db.Exec(
		`INSERT INTO read_transactions (id, account_id, type, amount, description, hash, version, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		id, t.AccountID, t.Type, t.Amount, t.Description, t.Hash, t.Version, t.RecordedAt,
	)
	return err
}

func (rs *PostgresReadStore) getTransaction(id string) (any, bool, error) {
	t := &readmodel.TransactionReadModel{}
	err := rs.db.QueryRow(
		`SELECT id, account_id, type, amount, description, hash, version, recorded_at
		 FROM read_transactions WHERE id = $1`, id,
	).Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Description, &t.Hash, &t.Version, &t.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (rs *PostgresReadStore) getAllTransactions() ([]any, error) {
	rows, err := rs.db.Query(
		`SELECT id, account_id, type, amount, description, hash, version, recorded_at
		 FROM read_transactions ORDER BY recorded_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		t := &readmodel.TransactionReadModel{}
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Description, &t.Hash, &t.Version, &t.RecordedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (rs *PostgresReadStore) setTransfer(id string, t *readmodel.TransferReadModel) error {
	_, err := rs.db.Exec(
		`INSERT INTO read_transfers (id, from_account_id, to_account_id, amount, status, reason, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status, reason = EXCLUDED.reason,
		     version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`,
		id, t.FromAccountID, t.ToAccountID, t.Amount, t.Status, t.Reason, t.Version, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (rs *PostgresReadStore) getTransfer(id string) (any, bool, error) {
	t := &readmodel.TransferReadModel{}
	err := rs.db.QueryRow(
		`SELECT id, from_account_id, to_account_id, amount, status, reason, version, created_at, updated_at
		 FROM read_transfers WHERE id = $1`, id,
	).Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Status, &t.Reason, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

func (rs *PostgresReadStore) getAllTransfers() ([]any, error) {
	rows, err := rs.db.Query(
		`SELECT id, from_account_id, to_account_id, amount, status, reason, version, created_at, updated_at
		 FROM read_transfers ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []any
	for rows.Next() {
		t := &readmodel.TransferReadModel{}
		if err := rows.Scan(&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Status, &t.Reason, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (rs *PostgresReadStore) setCounter(id string, c *readmodel.SnapshotCounterModel) error {
	_, err := rs.db.Exec(
		`INSERT INTO snapshot_counters (aggregate_id, events_since_snapshot, value_since_snapshot, consecutive_rebalances, last_snapshot_version)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE
		 SET events_since_snapshot = EXCLUDED.events_since_snapshot,
		     value_since_snapshot = EXCLUDED.value_since_snapshot,
		     consecutive_rebalances = EXCLUDED.consecutive_rebalances,
		     last_snapshot_version = EXCLUDED.last_snapshot_version`,
		id, c.EventsSinceSnapshot, c.ValueSinceSnapshot, c.ConsecutiveRebalances, c.LastSnapshotVersion,
	)
	return err
}

func (rs *PostgresReadStore) getCounter(id string) (any, bool, error) {
	c := &readmodel.SnapshotCounterModel{}
	err := rs.db.QueryRow(
		`SELECT aggregate_id, events_since_snapshot, value_since_snapshot, consecutive_rebalances, last_snapshot_version
		 FROM snapshot_counters WHERE aggregate_id = $1`, id,
	).Scan(&c.AggregateID, &c.EventsSinceSnapshot, &c.ValueSinceSnapshot, &c.ConsecutiveRebalances, &c.LastSnapshotVersion)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

func (rs *PostgresReadStore) setCheckpoint(id string, c *readmodel.CheckpointModel) error {
	_, err := rs.db.Exec(
		`INSERT INTO projector_checkpoints (projector_name, global_position, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (projector_name) DO UPDATE
		 SET global_position = EXCLUDED.global_position, updated_at = EXCLUDED.updated_at`,
		id, c.GlobalPosition, c.UpdatedAt,
	)
	return err
}

func (rs *PostgresReadStore) getCheckpoint(id string) (any, bool, error) {
	c := &readmodel.CheckpointModel{}
	err := rs.db.QueryRow(
		`SELECT projector_name, global_position, updated_at
		 FROM projector_checkpoints WHERE projector_name = $1`, id,
	).Scan(&c.ProjectorName, &c.GlobalPosition, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}
