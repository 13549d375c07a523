package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
)

// Context is the activity-facing view of a running execution. Everything put
// into it lands in the persisted execution record, so values written by one
// step are still there when a different worker resumes the saga.
type Context struct {
	execution *store.WorkflowExecution
}

// ExecutionID returns the saga instance ID, useful as an idempotency key for
// external calls
func (c *Context) ExecutionID() string { return c.execution.ID }

// Input decodes the workflow input into out
func (c *Context) Input(out any) error {
	return json.Unmarshal(c.execution.Input, out)
}

// Set stores a value in the durable state bag
func (c *Context) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal state %s: %w", key, err)
	}
	if c.execution.State == nil {
		c.execution.State = make(map[string]json.RawMessage)
	}
	c.execution.State[key] = data
	return nil
}

// Get reads a value from the state bag; false when the key was never set
func (c *Context) Get(key string, out any) (bool, error) {
	data, ok := c.execution.State[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal state %s: %w", key, err)
	}
	return true, nil
}

// AddCompensation arms a named compensation from the definition's
// Compensations table. Arm it right after the side effect it undoes has
// succeeded; arming is idempotent across step retries.
func (c *Context) AddCompensation(name string) {
	for _, existing := range c.execution.CompensationStack {
		if existing == name {
			return
		}
	}
	c.execution.CompensationStack = append(c.execution.CompensationStack, name)
}

// SignalPayload decodes the payload of the signal that resumed the execution;
// false when the step is running for the first time and no signal arrived yet
func (c *Context) SignalPayload(out any) (bool, error) {
	if len(c.execution.SignalPayload) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(c.execution.SignalPayload, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal signal payload: %w", err)
	}
	return true, nil
}

// SetResult records the workflow result returned to queries
func (c *Context) SetResult(value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	c.execution.Result = data
	return nil
}
