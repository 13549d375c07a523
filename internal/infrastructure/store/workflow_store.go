package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// WorkflowStatus enumerates the lifecycle of a saga execution
type WorkflowStatus string

const (
	WorkflowStatusRunning             WorkflowStatus = "running"
	WorkflowStatusAwaitingSignal      WorkflowStatus = "awaiting_signal"
	WorkflowStatusCompensating        WorkflowStatus = "compensating"
	WorkflowStatusCompleted           WorkflowStatus = "completed"
	WorkflowStatusFailedCompensated   WorkflowStatus = "failed_compensated"
	WorkflowStatusFailedUncompensated WorkflowStatus = "failed_uncompensated"
	WorkflowStatusCancelled           WorkflowStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailedCompensated,
		WorkflowStatusFailedUncompensated, WorkflowStatusCancelled:
		return true
	}
	return false
}

// WorkflowStepRecord is one completed activity in the step log
type WorkflowStepRecord struct {
	Name        string    `json:"name"`
	Attempts    int       `json:"attempts"`
	CompletedAt time.Time `json:"completed_at"`
}

// WorkflowCompensationRecord is one compensation run, successful or not
type WorkflowCompensationRecord struct {
	Name      string    `json:"name"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
	RanAt     time.Time `json:"ran_at"`
}

// WorkflowExecution is the durable state of one saga instance. Everything the
// engine needs to resume after a restart or an external signal lives here.
type WorkflowExecution struct {
	ID                string                       `json:"id"`
	Name              string                       `json:"name"`
	Status            WorkflowStatus               `json:"status"`
	Input             json.RawMessage              `json:"input,omitempty"`
	Result            json.RawMessage              `json:"result,omitempty"`
	State             map[string]json.RawMessage   `json:"state,omitempty"`
	NextStep          int                          `json:"next_step"`
	CompensationStack []string                     `json:"compensation_stack,omitempty"`
	AwaitingSignal    string                       `json:"awaiting_signal,omitempty"`
	SignalPayload     json.RawMessage              `json:"signal_payload,omitempty"`
	CancelRequested   bool                         `json:"cancel_requested"`
	StepLog           []WorkflowStepRecord         `json:"step_log"`
	CompensationLog   []WorkflowCompensationRecord `json:"compensation_log"`
	Error             string                       `json:"error,omitempty"`
	CreatedAt         time.Time                    `json:"created_at"`
	UpdatedAt         time.Time                    `json:"updated_at"`
}

// WorkflowStoreInterface persists saga executions
type WorkflowStoreInterface interface {
	SaveWorkflow(ctx context.Context, execution *WorkflowExecution) error
	GetWorkflow(ctx context.Context, id string) (*WorkflowExecution, bool, error)
	ListWorkflowsByStatus(ctx context.Context, status WorkflowStatus) ([]*WorkflowExecution, error)
}

// WorkflowStore is an in-memory workflow execution store for tests and dev.
// Executions are stored as JSON so aliasing bugs cannot leak engine-internal
// state between callers.
type WorkflowStore struct {
	mu         sync.RWMutex
	executions map[string][]byte
}

func NewWorkflowStore() *WorkflowStore {
	return &WorkflowStore{executions: make(map[string][]byte)}
}

func (ws *WorkflowStore) SaveWorkflow(ctx context.Context, execution *WorkflowExecution) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return err
	}
	ws.mu.Lock()
	ws.executions[execution.ID] = data
	ws.mu.Unlock()
	return nil
}

func (ws *WorkflowStore) GetWorkflow(ctx context.Context, id string) (*WorkflowExecution, bool, error) {
	ws.mu.RLock()
	data, ok := ws.executions[id]
	ws.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	var execution WorkflowExecution
	if err := json.Unmarshal(data, &execution); err != nil {
		return nil, false, err
	}
	return &execution, true, nil
}

func (ws *WorkflowStore) ListWorkflowsByStatus(ctx context.Context, status WorkflowStatus) ([]*WorkflowExecution, error) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	var out []*WorkflowExecution
	for _, data := range ws.executions {
		var execution WorkflowExecution
		if err := json.Unmarshal(data, &execution); err != nil {
			return nil, err
		}
		if execution.Status == status {
			out = append(out, &execution)
		}
	}
	return out, nil
}
