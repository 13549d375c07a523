package projection

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/example/ledger-event-driven/internal/readmodel"
)

const catchUpBatchSize = 500

// EventSink is anything that folds committed events, projectors and reactors both
type EventSink interface {
	Project(event store.Event) error
}

// CatchUp replays the global event log into sink, starting after the persisted
// checkpoint for name and advancing it batch by batch. Run it before tailing
// Kafka so a restarted worker never misses events, and on a schedule as a
// safety net. Safe to re-run: sinks are idempotent.
func CatchUp(ctx context.Context, eventStore store.EventStoreInterface, readStore store.ReadStoreInterface, name string, sink EventSink) error {
	checkpoint := &readmodel.CheckpointModel{ProjectorName: name}
	if existing, ok, err := readStore.Get(store.CollectionCheckpoints, name); err != nil {
		return fmt.Errorf("failed to load checkpoint %s: %w", name, err)
	} else if ok {
		checkpoint = existing.(*readmodel.CheckpointModel)
	}

	total := 0
	for {
		events, err := eventStore.ReadAll(ctx, checkpoint.GlobalPosition, catchUpBatchSize)
		if err != nil {
			return fmt.Errorf("failed to read event log: %w", err)
		}
		if len(events) == 0 {
			break
		}

		for _, event := range events {
			if err := sink.Project(event); err != nil {
				return fmt.Errorf("failed to project event %s at position %d: %w",
					event.ID, event.GlobalPosition, err)
			}
			checkpoint.GlobalPosition = event.GlobalPosition
		}
		total += len(events)

		checkpoint.UpdatedAt = time.Now()
		if err := readStore.Set(store.CollectionCheckpoints, name, checkpoint); err != nil {
			return fmt.Errorf("failed to save checkpoint %s: %w", name, err)
		}
	}

	if total > 0 {
		log.Printf("[CatchUp] %s replayed %d events, now at position %d", name, total, checkpoint.GlobalPosition)
	}
	return nil
}
