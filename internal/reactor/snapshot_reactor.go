package reactor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/example/ledger-event-driven/internal/domain/account"
	"github.com/example/ledger-event-driven/internal/domain/aggregate"
	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/example/ledger-event-driven/internal/readmodel"
)

// SnapshotConfig holds the trigger thresholds. Each threshold fires
// independently and resets only its own counter.
type SnapshotConfig struct {
	EventCountThreshold int   // events since the last snapshot
	ValueThreshold      int64 // absolute cents moved since the last snapshot
	RebalanceThreshold  int   // consecutive rebalance movements
}

func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		EventCountThreshold: 100,
		ValueThreshold:      100_000_000, // $1M
		RebalanceThreshold:  5,
	}
}

// SnapshotReactor watches committed account events and snapshots an aggregate
// when any trigger counter crosses its threshold. Counters are persisted in
// the read store, so the reactor itself is stateless and can be restarted or
// scaled without losing track. Transfer streams are three events long at most
// and are never snapshotted.
type SnapshotReactor struct {
	eventStore store.EventStoreInterface
	readStore  store.ReadStoreInterface
	config     SnapshotConfig
}

func NewSnapshotReactor(eventStore store.EventStoreInterface, readStore store.ReadStoreInterface, config SnapshotConfig) *SnapshotReactor {
	return &SnapshotReactor{eventStore: eventStore, readStore: readStore, config: config}
}

// HandleEvent consumes one Kafka message
func (r *SnapshotReactor) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return err
	}
	return r.React(ctx, event)
}

// Project lets the reactor ride the same checkpointed catch-up as projectors
func (r *SnapshotReactor) Project(event store.Event) error {
	return r.React(context.Background(), event)
}

// React updates the trigger counters for one committed event and snapshots
// the aggregate when a threshold fires
func (r *SnapshotReactor) React(ctx context.Context, event store.Event) error {
	if event.AggregateType != account.AggregateType {
		return nil
	}

	counter := &readmodel.SnapshotCounterModel{AggregateID: event.AggregateID}
	if existing, ok, err := r.readStore.Get(store.CollectionCounters, event.AggregateID); err != nil {
		return fmt.Errorf("failed to load snapshot counter: %w", err)
	} else if ok {
		counter = existing.(*readmodel.SnapshotCounterModel)
	}

	if event.Version <= counter.LastAppliedVersion {
		return nil // already counted, redelivery
	}

	counter.EventsSinceSnapshot++

	amount, rebalance, isMoney, err := classifyMovement(event)
	if err != nil {
		return err
	}
	if isMoney {
		counter.ValueSinceSnapshot += amount
		if rebalance {
			counter.ConsecutiveRebalances++
		} else {
			counter.ConsecutiveRebalances = 0
		}
	}

	trigger := ""
	switch {
	case counter.EventsSinceSnapshot >= r.config.EventCountThreshold:
		trigger = "event count"
		counter.EventsSinceSnapshot = 0
	case counter.ValueSinceSnapshot >= r.config.ValueThreshold:
		trigger = "value moved"
		counter.ValueSinceSnapshot = 0
	case counter.ConsecutiveRebalances >= r.config.RebalanceThreshold:
		trigger = "rebalance streak"
		counter.ConsecutiveRebalances = 0
	}

	counter.LastAppliedVersion = event.Version

	if trigger != "" {
		if err := r.snapshot(ctx, event.AggregateID); err != nil {
			return err
		}
		counter.LastSnapshotVersion = event.Version
		log.Printf("[SnapshotReactor] Snapshot of account %s at version %d (trigger: %s)",
			event.AggregateID, event.Version, trigger)
	}

	return r.readStore.Set(store.CollectionCounters, event.AggregateID, counter)
}

func (r *SnapshotReactor) snapshot(ctx context.Context, accountID string) error {
	acct, found, err := aggregate.Load(ctx, r.eventStore, accountID, func() *account.Account {
		return &account.Account{}
	})
	if err != nil {
		return fmt.Errorf("failed to load account %s for snapshot: %w", accountID, err)
	}
	if !found {
		return nil
	}
	return aggregate.TakeSnapshot(ctx, r.eventStore, acct, account.AggregateType)
}

// classifyMovement extracts the moved amount from money events and reports
// whether the movement belongs to a basket rebalance (description convention
// used by the basket workflows).
func classifyMovement(event store.Event) (amount int64, rebalance, isMoney bool, err error) {
	switch event.EventType {
	case account.EventMoneyAdded:
		var e account.MoneyAdded
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return 0, false, false, err
		}
		return e.Amount, isRebalance(e.Description), true, nil
	case account.EventMoneySubtracted:
		var e account.MoneySubtracted
		if err := json.Unmarshal(event.Data, &e); err != nil {
			return 0, false, false, err
		}
		return e.Amount, isRebalance(e.Description), true, nil
	}
	return 0, false, false, nil
}

func isRebalance(description string) bool {
	return strings.HasPrefix(description, "rebalance:")
}
