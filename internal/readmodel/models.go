package readmodel

import "time"

// Account statuses as projected from the event stream
const (
	AccountStatusActive = "active"
	AccountStatusFrozen = "frozen"
	AccountStatusClosed = "closed"
)

// AccountReadModel is the denormalized balance view of a ledger account.
// Version is the last applied event version; the projector drops anything
// at or below it, which makes redelivery harmless.
type AccountReadModel struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Currency  string    `json:"currency"`
	Balance   int64     `json:"balance"`
	Limit     int64     `json:"limit"`
	Status    string    `json:"status"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transaction types in the history view
const (
	TransactionTypeDeposit    = "deposit"
	TransactionTypeWithdrawal = "withdrawal"
	TransactionTypeLimitHit   = "limit_hit"
)

// TransactionReadModel is one row of account history. It is keyed by the
// source event ID, so replaying the same event upserts instead of duplicating.
type TransactionReadModel struct {
	ID          string    `json:"id"` // source event ID
	AccountID   string    `json:"account_id"`
	Type        string    `json:"type"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	Hash        string    `json:"hash,omitempty"`
	Version     int       `json:"version"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// TransferReadModel is the projected view of a transfer aggregate
type TransferReadModel struct {
	ID            string    `json:"id"`
	FromAccountID string    `json:"from_account_id"`
	ToAccountID   string    `json:"to_account_id"`
	Amount        int64     `json:"amount"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SnapshotCounterModel holds the per-aggregate trigger counters of the
// snapshot reactor. Keeping them here rather than in reactor memory leaves the
// reactor stateless and safe to scale out. LastAppliedVersion is the
// redelivery guard: the reactor drops anything at or below it, so a duplicate
// Kafka delivery never moves a counter twice.
type SnapshotCounterModel struct {
	AggregateID           string `json:"aggregate_id"`
	EventsSinceSnapshot   int    `json:"events_since_snapshot"`
	ValueSinceSnapshot    int64  `json:"value_since_snapshot"`
	ConsecutiveRebalances int    `json:"consecutive_rebalances"`
	LastAppliedVersion    int    `json:"last_applied_version"`
	LastSnapshotVersion   int    `json:"last_snapshot_version"`
}

// CheckpointModel records how far a projector has read the global event log
type CheckpointModel struct {
	ProjectorName  string    `json:"projector_name"`
	GlobalPosition int64     `json:"global_position"`
	UpdatedAt      time.Time `json:"updated_at"`
}
