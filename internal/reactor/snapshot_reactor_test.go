package reactor

import (
	"context"
	"fmt"
	"testing"

	"github.com/example/ledger-event-driven/internal/domain/account"
	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/example/ledger-event-driven/internal/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReactorFixture(config SnapshotConfig) (*store.EventStore, *store.ReadStore, *account.Service, *SnapshotReactor) {
	es := store.NewEventStore(nil)
	rs := store.NewReadStore()
	return es, rs, account.NewService(es), NewSnapshotReactor(es, rs, config)
}

func feedStream(t *testing.T, es *store.EventStore, r *SnapshotReactor, accountID string) []store.Event {
	t.Helper()
	events, err := es.ReadStream(context.Background(), accountID, 0)
	require.NoError(t, err)
	for _, event := range events {
		require.NoError(t, r.React(context.Background(), event))
	}
	return events
}

func counterFor(t *testing.T, rs *store.ReadStore, accountID string) *readmodel.SnapshotCounterModel {
	t.Helper()
	row, ok, err := rs.Get(store.CollectionCounters, accountID)
	require.NoError(t, err)
	require.True(t, ok)
	return row.(*readmodel.SnapshotCounterModel)
}

func TestSnapshotReactor_EventCountTrigger(t *testing.T) {
	es, rs, svc, r := newReactorFixture(SnapshotConfig{
		EventCountThreshold: 3,
		ValueThreshold:      1_000_000,
		RebalanceThreshold:  100,
	})
	ctx := context.Background()

	acct, err := svc.Open(ctx, "owner", "USD", 0)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acct.ID, 100, "one")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acct.ID, 100, "two")
	require.NoError(t, err)

	feedStream(t, es, r, acct.ID)

	// The third event crossed the threshold
	snap, err := es.GetSnapshot(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.Version)

	counter := counterFor(t, rs, acct.ID)
	assert.Equal(t, 0, counter.EventsSinceSnapshot)
	assert.Equal(t, 3, counter.LastSnapshotVersion)
}

func TestSnapshotReactor_BelowThresholdTakesNoSnapshot(t *testing.T) {
	es, rs, svc, r := newReactorFixture(DefaultSnapshotConfig())
	ctx := context.Background()

	acct, err := svc.Open(ctx, "owner", "USD", 0)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acct.ID, 100, "small")
	require.NoError(t, err)

	feedStream(t, es, r, acct.ID)

	snap, err := es.GetSnapshot(ctx, acct.ID)
	require.NoError(t, err)
	assert.Nil(t, snap)

	counter := counterFor(t, rs, acct.ID)
	assert.Equal(t, 2, counter.EventsSinceSnapshot)
	assert.Equal(t, int64(100), counter.ValueSinceSnapshot)
}

func TestSnapshotReactor_ValueTrigger(t *testing.T) {
	es, _, svc, r := newReactorFixture(SnapshotConfig{
		EventCountThreshold: 100,
		ValueThreshold:      500_000,
		RebalanceThreshold:  100,
	})
	ctx := context.Background()

	acct, err := svc.Open(ctx, "owner", "USD", 0)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acct.ID, 600_000, "large deposit")
	require.NoError(t, err)

	feedStream(t, es, r, acct.ID)

	snap, err := es.GetSnapshot(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.Version)
}

func TestSnapshotReactor_RebalanceStreakTrigger(t *testing.T) {
	es, rs, svc, r := newReactorFixture(SnapshotConfig{
		EventCountThreshold: 100,
		ValueThreshold:      1_000_000_000,
		RebalanceThreshold:  3,
	})
	ctx := context.Background()

	acct, err := svc.Open(ctx, "owner", "USD", 0)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = svc.Credit(ctx, acct.ID, 100, fmt.Sprintf("rebalance: compose basket-%d", i))
		require.NoError(t, err)
	}

	feedStream(t, es, r, acct.ID)

	snap, err := es.GetSnapshot(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)

	// Only the streak counter reset; value keeps accumulating
	counter := counterFor(t, rs, acct.ID)
	assert.Equal(t, 0, counter.ConsecutiveRebalances)
	assert.Equal(t, int64(300), counter.ValueSinceSnapshot)
}

func TestSnapshotReactor_NonRebalanceBreaksStreak(t *testing.T) {
	es, rs, svc, r := newReactorFixture(SnapshotConfig{
		EventCountThreshold: 100,
		ValueThreshold:      1_000_000_000,
		RebalanceThreshold:  3,
	})
	ctx := context.Background()

	acct, err := svc.Open(ctx, "owner", "USD", 0)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acct.ID, 100, "rebalance: compose b1")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acct.ID, 100, "rebalance: compose b1")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acct.ID, 100, "regular deposit")
	require.NoError(t, err)

	feedStream(t, es, r, acct.ID)

	snap, err := es.GetSnapshot(ctx, acct.ID)
	require.NoError(t, err)
	assert.Nil(t, snap)
	assert.Equal(t, 0, counterFor(t, rs, acct.ID).ConsecutiveRebalances)
}

func TestSnapshotReactor_RedeliveryBeforeSnapshotDoesNotDoubleCount(t *testing.T) {
	es, rs, svc, r := newReactorFixture(SnapshotConfig{
		EventCountThreshold: 100,
		ValueThreshold:      1_000_000,
		RebalanceThreshold:  100,
	})
	ctx := context.Background()

	acct, err := svc.Open(ctx, "owner", "USD", 0)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acct.ID, 500, "deposit")
	require.NoError(t, err)

	events := feedStream(t, es, r, acct.ID)

	// No snapshot exists yet; redelivering the stream must still not move
	// the counters
	for _, event := range events {
		require.NoError(t, r.React(ctx, event))
	}

	counter := counterFor(t, rs, acct.ID)
	assert.Equal(t, 2, counter.EventsSinceSnapshot)
	assert.Equal(t, int64(500), counter.ValueSinceSnapshot)
	assert.Equal(t, 2, counter.LastAppliedVersion)
	assert.Equal(t, 0, counter.LastSnapshotVersion)
}

func TestSnapshotReactor_RedeliverySkippedAfterSnapshot(t *testing.T) {
	es, rs, svc, r := newReactorFixture(SnapshotConfig{
		EventCountThreshold: 2,
		ValueThreshold:      1_000_000,
		RebalanceThreshold:  100,
	})
	ctx := context.Background()

	acct, err := svc.Open(ctx, "owner", "USD", 0)
	require.NoError(t, err)
	_, err = svc.Credit(ctx, acct.ID, 100, "deposit")
	require.NoError(t, err)

	events := feedStream(t, es, r, acct.ID)
	require.Equal(t, 2, counterFor(t, rs, acct.ID).LastSnapshotVersion)

	// Redelivering the whole stream must not move any counter
	for _, event := range events {
		require.NoError(t, r.React(ctx, event))
	}
	counter := counterFor(t, rs, acct.ID)
	assert.Equal(t, 0, counter.EventsSinceSnapshot)
	assert.Equal(t, 2, counter.LastSnapshotVersion)
}

func TestSnapshotReactor_IgnoresTransferStreams(t *testing.T) {
	_, rs, _, r := newReactorFixture(DefaultSnapshotConfig())

	err := r.React(context.Background(), store.Event{
		AggregateID:   "transfer-1",
		AggregateType: "Transfer",
		EventType:     "TransferInitiated",
		Version:       1,
	})

	require.NoError(t, err)
	_, ok, err := rs.Get(store.CollectionCounters, "transfer-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
