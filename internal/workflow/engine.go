package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/google/uuid"
)

var (
	ErrActivityTimeout    = errors.New("activity timed out")
	ErrCompensationFailed = errors.New("compensation failed")
	ErrExecutionCancelled = errors.New("workflow execution cancelled")
	ErrExecutionNotFound  = errors.New("workflow execution not found")
	ErrUnknownWorkflow    = errors.New("workflow definition not registered")
	ErrNotAwaitingSignal  = errors.New("execution is not awaiting this signal")
	ErrExecutionTerminal  = errors.New("execution already finished")
)

// StepFunc is one saga activity. It runs with a Context holding the durable
// state bag; returning AwaitSignal suspends the execution instead of failing it.
type StepFunc func(ctx context.Context, wctx *Context) error

// CompensateFunc undoes the effect of a completed activity
type CompensateFunc func(ctx context.Context, wctx *Context) error

// Step is one entry in a workflow's step table. Retries > 0 re-runs a failed
// step with a fixed delay; exhausting the budget surfaces ErrActivityTimeout.
type Step struct {
	Name       string
	Run        StepFunc
	Compensate CompensateFunc
	Retries    int
	RetryDelay time.Duration
}

// Definition is a declarative saga: ordered steps plus named dynamic
// compensations that activities can arm at runtime via Context.AddCompensation.
// Compensations are referenced by name in the durable execution record, so a
// restarted worker can resolve and run them without serializing closures.
type Definition struct {
	Name          string
	Steps         []Step
	Compensations map[string]CompensateFunc
}

func (d *Definition) step(name string) *Step {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

func (d *Definition) resolveCompensation(name string) CompensateFunc {
	if s := d.step(name); s != nil {
		return s.Compensate
	}
	return d.Compensations[name]
}

// awaitError is the suspension marker returned by steps that wait on an
// external signal
type awaitError struct{ signal string }

func (e awaitError) Error() string { return "awaiting signal: " + e.signal }

// AwaitSignal suspends the execution until Signal delivers the named signal.
// The awaiting step is re-run on resume with the payload available through
// Context.SignalPayload.
func AwaitSignal(name string) error { return awaitError{signal: name} }

// Engine drives saga executions against a durable workflow store. Every state
// change is persisted before the engine moves on, so a crashed worker can pick
// an execution back up exactly where it stopped.
type Engine struct {
	workflowStore store.WorkflowStoreInterface
	definitions   map[string]*Definition
}

func NewEngine(workflowStore store.WorkflowStoreInterface) *Engine {
	return &Engine{
		workflowStore: workflowStore,
		definitions:   make(map[string]*Definition),
	}
}

// Register makes a workflow definition executable and resumable by name
func (e *Engine) Register(def *Definition) {
	e.definitions[def.Name] = def
}

// Execute starts a new execution of the named workflow and drives it until it
// completes, suspends, or fails. The returned execution reflects the final
// persisted state; the error is the original step error after compensation.
func (e *Engine) Execute(ctx context.Context, name string, input any) (*store.WorkflowExecution, error) {
	def, ok := e.definitions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}

	rawInput, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal workflow input: %w", err)
	}

	now := time.Now()
	execution := &store.WorkflowExecution{
		ID:        uuid.New().String(),
		Name:      name,
		Status:    store.WorkflowStatusRunning,
		Input:     rawInput,
		State:     make(map[string]json.RawMessage),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.save(ctx, execution); err != nil {
		return nil, err
	}

	log.Printf("[Workflow] Started %s execution %s", name, execution.ID)
	runErr := e.run(ctx, def, execution)
	return execution, runErr
}

// Resume re-drives an execution that is in status running, typically after a
// worker crash. Awaiting or terminal executions are left alone.
func (e *Engine) Resume(ctx context.Context, id string) (*store.WorkflowExecution, error) {
	execution, def, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if execution.Status != store.WorkflowStatusRunning {
		return execution, nil
	}
	log.Printf("[Workflow] Resuming %s execution %s at step %d", execution.Name, id, execution.NextStep)
	runErr := e.run(ctx, def, execution)
	return execution, runErr
}

// Signal delivers a named signal to a suspended execution and drives it
// forward. The awaiting step is re-run with the payload in its Context.
func (e *Engine) Signal(ctx context.Context, id, signal string, payload any) (*store.WorkflowExecution, error) {
	execution, def, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if execution.Status != store.WorkflowStatusAwaitingSignal || execution.AwaitingSignal != signal {
		return nil, fmt.Errorf("%w: execution %s (status %s, awaiting %q, got %q)",
			ErrNotAwaitingSignal, id, execution.Status, execution.AwaitingSignal, signal)
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signal payload: %w", err)
	}
	execution.SignalPayload = rawPayload
	execution.AwaitingSignal = ""
	execution.Status = store.WorkflowStatusRunning
	if err := e.save(ctx, execution); err != nil {
		return nil, err
	}

	log.Printf("[Workflow] Signal %q delivered to execution %s", signal, id)
	runErr := e.run(ctx, def, execution)
	return execution, runErr
}

// Cancel requests cancellation. The engine honors it at the next step
// boundary: completed steps are compensated and the execution ends cancelled.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	execution, ok, err := e.workflowStore.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if execution.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrExecutionTerminal, id, execution.Status)
	}
	execution.CancelRequested = true
	return e.save(ctx, execution)
}

func (e *Engine) load(ctx context.Context, id string) (*store.WorkflowExecution, *Definition, error) {
	execution, ok, err := e.workflowStore.GetWorkflow(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	def, ok := e.definitions[execution.Name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, execution.Name)
	}
	return execution, def, nil
}

func (e *Engine) save(ctx context.Context, execution *store.WorkflowExecution) error {
	execution.UpdatedAt = time.Now()
	return e.workflowStore.SaveWorkflow(ctx, execution)
}

// run executes steps from the persisted resume point. Each completed step is
// persisted before the next starts.
func (e *Engine) run(ctx context.Context, def *Definition, execution *store.WorkflowExecution) error {
	for execution.NextStep < len(def.Steps) {
		// Pick up cancel requests written by other workers. A transient read
		// failure only delays the check until the next step boundary.
		if fresh, ok, err := e.workflowStore.GetWorkflow(ctx, execution.ID); err != nil {
			log.Printf("[Workflow] Execution %s: cancel-state refresh failed: %v", execution.ID, err)
		} else if ok {
			execution.CancelRequested = fresh.CancelRequested
		}
		if execution.CancelRequested {
			return e.cancel(ctx, def, execution)
		}

		step := def.Steps[execution.NextStep]
		wctx := &Context{execution: execution}

		stepErr, attempts := e.runStep(ctx, step, wctx)

		var await awaitError
		if errors.As(stepErr, &await) {
			execution.Status = store.WorkflowStatusAwaitingSignal
			execution.AwaitingSignal = await.signal
			if err := e.save(ctx, execution); err != nil {
				return err
			}
			log.Printf("[Workflow] Execution %s suspended at step %s awaiting %q",
				execution.ID, step.Name, await.signal)
			return nil
		}

		if stepErr != nil {
			return e.fail(ctx, def, execution, step.Name, stepErr)
		}

		// The signal payload is consumed by the step that awaited it
		execution.SignalPayload = nil
		execution.StepLog = append(execution.StepLog, store.WorkflowStepRecord{
			Name:        step.Name,
			Attempts:    attempts,
			CompletedAt: time.Now(),
		})
		if step.Compensate != nil {
			execution.CompensationStack = append(execution.CompensationStack, step.Name)
		}
		execution.NextStep++
		if err := e.save(ctx, execution); err != nil {
			return err
		}
	}

	execution.Status = store.WorkflowStatusCompleted
	if err := e.save(ctx, execution); err != nil {
		return err
	}
	log.Printf("[Workflow] Execution %s completed", execution.ID)
	return nil
}

// runStep runs one step with its retry budget. Await markers and context
// cancellation are never retried.
func (e *Engine) runStep(ctx context.Context, step Step, wctx *Context) (error, int) {
	attempts := 0
	var lastErr error
	for attempt := 0; attempt <= step.Retries; attempt++ {
		attempts++
		lastErr = step.Run(ctx, wctx)
		if lastErr == nil {
			return nil, attempts
		}
		var await awaitError
		if errors.As(lastErr, &await) || ctx.Err() != nil {
			return lastErr, attempts
		}
		if attempt < step.Retries {
			log.Printf("[Workflow] Step %s attempt %d failed: %v (retrying in %s)",
				step.Name, attempts, lastErr, step.RetryDelay)
			time.Sleep(step.RetryDelay)
		}
	}
	if step.Retries > 0 {
		return fmt.Errorf("%w: step %s after %d attempts: %v",
			ErrActivityTimeout, step.Name, attempts, lastErr), attempts
	}
	return lastErr, attempts
}

// fail compensates everything done so far and re-raises the step error
func (e *Engine) fail(ctx context.Context, def *Definition, execution *store.WorkflowExecution, stepName string, stepErr error) error {
	log.Printf("[Workflow] Execution %s failed at step %s: %v", execution.ID, stepName, stepErr)
	execution.Error = stepErr.Error()
	execution.Status = store.WorkflowStatusCompensating
	if err := e.save(ctx, execution); err != nil {
		return err
	}

	if compErr := e.compensate(ctx, def, execution); compErr != nil {
		execution.Status = store.WorkflowStatusFailedUncompensated
		if err := e.save(ctx, execution); err != nil {
			return err
		}
		return fmt.Errorf("%w: %v (original failure: %w)", ErrCompensationFailed, compErr, stepErr)
	}

	execution.Status = store.WorkflowStatusFailedCompensated
	if err := e.save(ctx, execution); err != nil {
		return err
	}
	return stepErr
}

// cancel compensates completed steps and marks the execution cancelled
func (e *Engine) cancel(ctx context.Context, def *Definition, execution *store.WorkflowExecution) error {
	log.Printf("[Workflow] Execution %s cancelled before step %d", execution.ID, execution.NextStep)
	execution.Status = store.WorkflowStatusCompensating
	if err := e.save(ctx, execution); err != nil {
		return err
	}

	if compErr := e.compensate(ctx, def, execution); compErr != nil {
		execution.Status = store.WorkflowStatusFailedUncompensated
		if err := e.save(ctx, execution); err != nil {
			return err
		}
		return fmt.Errorf("%w: %v (while cancelling)", ErrCompensationFailed, compErr)
	}

	execution.Status = store.WorkflowStatusCancelled
	if err := e.save(ctx, execution); err != nil {
		return err
	}
	return ErrExecutionCancelled
}

// compensate pops the stack in LIFO order, persisting after every run so a
// crash never repeats a finished compensation
func (e *Engine) compensate(ctx context.Context, def *Definition, execution *store.WorkflowExecution) error {
	wctx := &Context{execution: execution}
	for len(execution.CompensationStack) > 0 {
		top := len(execution.CompensationStack) - 1
		name := execution.CompensationStack[top]

		fn := def.resolveCompensation(name)
		if fn == nil {
			return fmt.Errorf("no compensation registered under %q", name)
		}

		err := fn(ctx, wctx)
		record := store.WorkflowCompensationRecord{
			Name:      name,
			Succeeded: err == nil,
			RanAt:     time.Now(),
		}
		if err != nil {
			record.Error = err.Error()
		}
		execution.CompensationLog = append(execution.CompensationLog, record)
		if err != nil {
			if saveErr := e.save(ctx, execution); saveErr != nil {
				return saveErr
			}
			return fmt.Errorf("compensation %s: %w", name, err)
		}

		execution.CompensationStack = execution.CompensationStack[:top]
		if err := e.save(ctx, execution); err != nil {
			return err
		}
		log.Printf("[Workflow] Execution %s compensated %s", execution.ID, name)
	}
	return nil
}
