package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresWorkflowStore persists workflow executions in PostgreSQL.
// The whole execution is one JSONB document keyed by workflow_id; status is
// mirrored into its own column for ListWorkflowsByStatus.
type PostgresWorkflowStore struct {
	db *sql.DB
}

func NewPostgresWorkflowStore(db *sql.DB) *PostgresWorkflowStore {
	return &PostgresWorkflowStore{db: db}
}

func (ws *PostgresWorkflowStore) SaveWorkflow(ctx context.Context, execution *WorkflowExecution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return err
	}

	_, err = ws.db.ExecContext(ctx,
		`INSERT INTO workflow_executions (workflow_id, name, status, execution, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (workflow_id) DO UPDATE
		 SET status = EXCLUDED.status, execution = EXCLUDED.execution, updated_at = EXCLUDED.updated_at`,
		execution.ID, execution.Name, string(execution.Status), data, execution.CreatedAt, execution.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (ws *PostgresWorkflowStore) GetWorkflow(ctx context.Context, id string) (*WorkflowExecution, bool, error) {
	var data []byte
	err := ws.db.QueryRowContext(ctx,
		"SELECT execution FROM workflow_executions WHERE workflow_id = $1", id,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var execution WorkflowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, false, err
	}
	return &execution, true, nil
}

func (ws *PostgresWorkflowStore) ListWorkflowsByStatus(ctx context.Context, status WorkflowStatus) ([]*WorkflowExecution, error) {
	rows, err := ws.db.QueryContext(ctx,
		"SELECT execution FROM workflow_executions WHERE status = $1 ORDER BY updated_at", string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*WorkflowExecution
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var execution WorkflowExecution
		if err := json.Unmarshal(data, &execution); err != nil {
			return nil, err
		}
		out = append(out, &execution)
	}
	return out, rows.Err()
}
