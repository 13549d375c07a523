package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoEventStore stores events in DynamoDB.
// Events are automatically streamed to Kinesis Data Streams via DynamoDB Kinesis
// integration, which feeds the Lambda projector and notifier.
type DynamoEventStore struct {
	client            *dynamodb.Client
	tableName         string
	snapshotTableName string
}

// dynamoEvent represents the DynamoDB item structure.
// GlobalPosition is the append timestamp in nanoseconds; it is the sort key of
// GSI1 so ReadAll can page through events in append order.
type dynamoEvent struct {
	AggregateID    string `dynamodbav:"aggregate_id"`
	Version        int    `dynamodbav:"version"`
	ID             string `dynamodbav:"id"`
	AggregateType  string `dynamodbav:"aggregate_type"`
	EventType      string `dynamodbav:"event_type"`
	SchemaVersion  int    `dynamodbav:"schema_version"`
	Data           string `dynamodbav:"data"`
	Metadata       string `dynamodbav:"metadata"`
	GlobalPosition int64  `dynamodbav:"global_position"`
	CreatedAt      string `dynamodbav:"created_at"`
	GSI1PK         string `dynamodbav:"gsi1pk"`
}

func NewDynamoEventStore(client *dynamodb.Client, tableName, snapshotTableName string) *DynamoEventStore {
	return &DynamoEventStore{
		client:            client,
		tableName:         tableName,
		snapshotTableName: snapshotTableName,
	}
}

// Append writes all pending events in a single TransactWriteItems call with a
// conditional check per item, so concurrent appends against the same expected
// version cannot both commit and partial writes never happen
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType string, expectedVersion int, pending []PendingEvent) ([]Event, error) {
	if len(pending) == 0 {
		return nil, nil
	}

	currentVersion, err := es.getCurrentVersion(ctx, aggregateID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if currentVersion != expectedVersion {
		return nil, fmt.Errorf("%w: aggregate %s at version %d, expected %d",
			ErrConcurrencyConflict, aggregateID, currentVersion, expectedVersion)
	}

	timestamp := time.Now()
	stored := make([]Event, 0, len(pending))
	writes := make([]types.TransactWriteItem, 0, len(pending))

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
			ID:             uuid.New().String(),
			AggregateID:    aggregateID,
			AggregateType:  aggregateType,
			EventType:      p.EventType,
			SchemaVersion:  schemaVersionOrDefault(p.SchemaVersion),
			Data:           jsonData,
			Metadata:       p.Metadata,
			Version:        expectedVersion + i + 1,
			GlobalPosition: timestamp.UnixNano() + int64(i),
			Timestamp:      timestamp,
		}

		item := dynamoEvent{
			AggregateID:    event.AggregateID,
			Version:        event.Version,
			ID:             event.ID,
			AggregateType:  event.AggregateType,
			EventType:      event.EventType,
			SchemaVersion:  event.SchemaVersion,
			Data:           string(jsonData),
			Metadata:       string(metadata),
			GlobalPosition: event.GlobalPosition,
			CreatedAt:      timestamp.Format(time.RFC3339Nano),
			GSI1PK:         "EVENTS", // Fixed value for GSI1 to enable ReadAll
		}

		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}

		writes = append(writes, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(es.tableName),
				Item:                av,
				ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
			},
		})
		stored = append(stored, event)
	}

	_, err = es.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: writes,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return nil, fmt.Errorf("%w: aggregate %s lost the version %d slot",
				ErrConcurrencyConflict, aggregateID, expectedVersion+1)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return stored, nil
}

// getCurrentVersion queries for the current max version of an aggregate
func (es *DynamoEventStore) getCurrentVersion(ctx context.Context, aggregateID string) (int, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
		},
		ScanIndexForward:     aws.Bool(false), // Descending order
		Limit:                aws.Int32(1),
		ProjectionExpression: aws.String("version"),
	})
	if err != nil {
		return 0, err
	}

	if len(result.Items) == 0 {
		return 0, nil
	}

	var item struct {
		Version int `dynamodbav:"version"`
	}
	if err := attributevalue.UnmarshalMap(result.Items[0], &item); err != nil {
		return 0, err
	}

	return item.Version, nil
}

// ReadStream returns events for an aggregate with version > fromVersion
func (es *DynamoEventStore) ReadStream(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	result, err := es.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":v":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", fromVersion)},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by version
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return es.unmarshalEvents(result.Items)
}

// ReadAll returns events across all aggregates after the given global position,
// using GSI1 (gsi1pk, global_position)
func (es *DynamoEventStore) ReadAll(ctx context.Context, afterPosition int64, limit int) ([]Event, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(es.tableName),
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("gsi1pk = :pk AND global_position > :pos"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":  &types.AttributeValueMemberS{Value: "EVENTS"},
			":pos": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", afterPosition)},
		},
		ScanIndexForward: aws.Bool(true), // Ascending order by global position
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := es.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return es.unmarshalEvents(result.Items)
}

// unmarshalEvents converts DynamoDB items to an Event slice
func (es *DynamoEventStore) unmarshalEvents(items []map[string]types.AttributeValue) ([]Event, error) {
	events := make([]Event, 0, len(items))

	for _, item := range items {
		var de dynamoEvent
		if err := attributevalue.UnmarshalMap(item, &de); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event item: %w", err)
		}

		timestamp, _ := time.Parse(time.RFC3339Nano, de.CreatedAt)

		event := Event{
			ID:             de.ID,
			AggregateID:    de.AggregateID,
			AggregateType:  de.AggregateType,
			EventType:      de.EventType,
			SchemaVersion:  de.SchemaVersion,
			Data:           json.RawMessage(de.Data),
			Version:        de.Version,
			GlobalPosition: de.GlobalPosition,
			Timestamp:      timestamp,
		}
		if de.Metadata != "" {
			if err := json.Unmarshal([]byte(de.Metadata), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event metadata: %w", err)
			}
		}
		events = append(events, event)
	}

	return events, nil
}

// dynamoSnapshot represents the DynamoDB item structure for snapshots.
// Stored in a separate snapshots table with aggregate_id as partition key.
type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

// SaveSnapshot stores a snapshot in the dedicated snapshots table, keeping the
// latest version only
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	item := dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Refuse to move the snapshot backwards
	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(es.snapshotTableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(aggregate_id) OR version < :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", snapshot.Version)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil // Existing snapshot is already at or past this version
		}
		return fmt.Errorf("failed to put snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves the latest snapshot for an aggregate from the snapshots table
func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	result, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotTableName),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	if result.Item == nil {
		return nil, nil // No snapshot exists
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(result.Item, &ds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)

	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}
