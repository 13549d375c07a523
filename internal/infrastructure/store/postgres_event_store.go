package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/ledger-event-driven/internal/infrastructure/kafka"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// PostgresEventStore stores events in PostgreSQL.
// The events table carries UNIQUE(aggregate_id, version) so concurrent appends
// against the same expected version cannot both commit.
type PostgresEventStore struct {
	db       *sql.DB
	producer *kafka.Producer
}

func NewPostgresEventStore(db *sql.DB, producer *kafka.Producer) *PostgresEventStore {
	return &PostgresEventStore{
		db:       db,
		producer: producer,
	}
}

// Append writes all pending events in a single transaction and publishes them
// to Kafka after commit
func (es *PostgresEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, pending []PendingEvent) ([]Event, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	tx, err := es.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var currentVersion int
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1",
		aggregateID,
	).Scan(&currentVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if currentVersion != expectedVersion {
		return nil, fmt.Errorf("%w: aggregate %s at version %d, expected %d",
			ErrConcurrencyConflict, aggregateID, currentVersion, expectedVersion)
	}

	stored := make([]Event, 0, len(pending))
	for i, p := range pending {
		jsonData, err := json.Marshal(p.Data)
		if err != nil {
			return nil, err
		}
		metadata, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, err
		}

		event := Event{
			ID:            uuid.New().String(),
			AggregateID:   aggregateID,
			AggregateType: aggregateType,
			EventType:     p.EventType,
			SchemaVersion: schemaVersionOrDefault(p.SchemaVersion),
			Data:          jsonData,
			Metadata:      p.Metadata,
			Version:       expectedVersion + i + 1,
			Timestamp:     time.Now(),
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, schema_version, data, metadata, version, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING global_position`,
			event.ID,
			event.AggregateID,
			event.AggregateType,
			event.EventType,
			event.SchemaVersion,
			event.Data,
			metadata,
			event.Version,
			event.Timestamp,
		).Scan(&event.GlobalPosition)
		if err != nil {
			if isUniqueViolation(err) {
				// A concurrent writer won the (aggregate_id, version) slot
				return nil, fmt.Errorf("%w: aggregate %s version %d already written",
					ErrConcurrencyConflict, aggregateID, event.Version)
			}
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		stored = append(stored, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// Publish after commit only. A publish failure leaves the events in the
	// durable log; consumers catch up via ReadAll checkpoints.
	if es.producer != nil {
		for _, event := range stored {
			if err := es.producer.Publish(ctx, aggregateID, event); err != nil {
				log.Printf("[EventStore] Failed to publish event %s: %v", event.ID, err)
			}
		}
	}

	return stored, nil
}

// ReadStream returns events for an aggregate with version > fromVersion
func (es *PostgresEventStore) ReadStream(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	rows, err := es.db.QueryContext(ctx,
		`SELECT id, aggregate_id, aggregate_type, event_type, schema_version, data, metadata, version, global_position, created_at
		 FROM events
		 WHERE aggregate_id = $1 AND version > $2
		 ORDER BY version ASC`,
		aggregateID, fromVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ReadAll returns events across all aggregates after the given global position
func (es *PostgresEventStore) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]Event, error) {
	query := `SELECT id, aggregate_id, aggregate_type, event_type, schema_version, data, metadata, version, global_position, created_at
		 FROM events
		 WHERE global_position > $1
		 ORDER BY global_position ASC`
	args := []any{afterPosition}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := es.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SaveSnapshot upserts the snapshot for an aggregate, keeping only the latest
func (es *PostgresEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	_, err := es.db.ExecContext(ctx,
		`INSERT INTO snapshots (aggregate_id, aggregate_type, version, state, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (aggregate_id) DO UPDATE
		 SET aggregate_type = EXCLUDED.aggregate_type,
		     version = EXCLUDED.version,
		     state = EXCLUDED.state,
		     created_at = EXCLUDED.created_at
		 WHERE snapshots.version < EXCLUDED.version`,
		snapshot.AggregateID,
		snapshot.AggregateType,
		snapshot.Version,
		snapshot.State,
		snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// GetSnapshot returns the latest snapshot for an aggregate, or nil
func (es *PostgresEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	var s Snapshot
	err := es.db.QueryRowContext(ctx,
		`SELECT aggregate_id, aggregate_type, version, state, created_at
		 FROM snapshots WHERE aggregate_id = $1`,
		aggregateID,
	).Scan(&s.AggregateID, &s.AggregateType, &s.Version, &s.State, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &s, nil
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var metadata []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.SchemaVersion,
			&e.Data, &metadata, &e.Version, &e.GlobalPosition, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, err
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return events, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
