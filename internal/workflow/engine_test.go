package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func step(name string, trace *[]string, err error) Step {
	return Step{
		Name: name,
		Run: func(ctx context.Context, wctx *Context) error {
			*trace = append(*trace, "run:"+name)
			return err
		},
		Compensate: func(ctx context.Context, wctx *Context) error {
			*trace = append(*trace, "undo:"+name)
			return nil
		},
	}
}

func TestEngine_Execute_HappyPath(t *testing.T) {
	ws := store.NewWorkflowStore()
	engine := NewEngine(ws)
	var trace []string

	engine.Register(&Definition{
		Name:  "happy",
		Steps: []Step{step("one", &trace, nil), step("two", &trace, nil), step("three", &trace, nil)},
	})

	execution, err := engine.Execute(context.Background(), "happy", map[string]string{"k": "v"})

	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, execution.Status)
	assert.Equal(t, []string{"run:one", "run:two", "run:three"}, trace)
	assert.Len(t, execution.StepLog, 3)

	// The final state is durable
	loaded, ok, err := ws.GetWorkflow(context.Background(), execution.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, store.WorkflowStatusCompleted, loaded.Status)
}

// flakyReadStore fails every GetWorkflow call once the fuse is lit, simulating
// a store that goes read-degraded mid-execution
type flakyReadStore struct {
	*store.WorkflowStore
	failReads bool
}

func (f *flakyReadStore) GetWorkflow(ctx context.Context, id string) (*store.WorkflowExecution, bool, error) {
	if f.failReads {
		return nil, false, errors.New("read replica down")
	}
	return f.WorkflowStore.GetWorkflow(ctx, id)
}

func TestEngine_Execute_SurvivesCancelRefreshFailure(t *testing.T) {
	ws := &flakyReadStore{WorkflowStore: store.NewWorkflowStore()}
	engine := NewEngine(ws)
	var trace []string

	engine.Register(&Definition{
		Name: "degraded-reads",
		Steps: []Step{
			step("one", &trace, nil),
			{
				Name: "light-fuse",
				Run: func(ctx context.Context, wctx *Context) error {
					trace = append(trace, "run:light-fuse")
					ws.failReads = true
					return nil
				},
			},
			step("three", &trace, nil),
		},
	})

	execution, err := engine.Execute(context.Background(), "degraded-reads", nil)

	// The cancel-state refresh failing must not abort the run
	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, execution.Status)
	assert.Equal(t, []string{"run:one", "run:light-fuse", "run:three"}, trace)
}

func TestEngine_Execute_UnknownWorkflow(t *testing.T) {
	engine := NewEngine(store.NewWorkflowStore())

	_, err := engine.Execute(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownWorkflow)
}

func TestEngine_Execute_CompensatesInReverseOrderExactlyOnce(t *testing.T) {
	ws := store.NewWorkflowStore()
	engine := NewEngine(ws)
	var trace []string
	boom := errors.New("step three exploded")

	engine.Register(&Definition{
		Name:  "failing",
		Steps: []Step{step("one", &trace, nil), step("two", &trace, nil), step("three", &trace, boom)},
	})

	execution, err := engine.Execute(context.Background(), "failing", nil)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, store.WorkflowStatusFailedCompensated, execution.Status)
	assert.Equal(t, []string{"run:one", "run:two", "run:three", "undo:two", "undo:one"}, trace)
	assert.Empty(t, execution.CompensationStack)

	require.Len(t, execution.CompensationLog, 2)
	assert.Equal(t, "two", execution.CompensationLog[0].Name)
	assert.Equal(t, "one", execution.CompensationLog[1].Name)
	assert.True(t, execution.CompensationLog[0].Succeeded)
}

func TestEngine_Execute_RetryExhaustionIsTimeout(t *testing.T) {
	engine := NewEngine(store.NewWorkflowStore())
	attempts := 0

	engine.Register(&Definition{
		Name: "flaky",
		Steps: []Step{{
			Name: "always-fails",
			Run: func(ctx context.Context, wctx *Context) error {
				attempts++
				return errors.New("still down")
			},
			Retries:    2,
			RetryDelay: time.Millisecond,
		}},
	})

	execution, err := engine.Execute(context.Background(), "flaky", nil)

	require.ErrorIs(t, err, ErrActivityTimeout)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, store.WorkflowStatusFailedCompensated, execution.Status)
}

func TestEngine_Execute_RetrySucceedsBeforeExhaustion(t *testing.T) {
	engine := NewEngine(store.NewWorkflowStore())
	attempts := 0

	engine.Register(&Definition{
		Name: "eventually",
		Steps: []Step{{
			Name: "flaky-step",
			Run: func(ctx context.Context, wctx *Context) error {
				attempts++
				if attempts < 2 {
					return errors.New("transient")
				}
				return nil
			},
			Retries: 3,
		}},
	})

	execution, err := engine.Execute(context.Background(), "eventually", nil)

	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, execution.Status)
	require.Len(t, execution.StepLog, 1)
	assert.Equal(t, 2, execution.StepLog[0].Attempts)
}

func TestEngine_Execute_NoRetryBudgetKeepsOriginalError(t *testing.T) {
	engine := NewEngine(store.NewWorkflowStore())
	boom := errors.New("hard failure")

	engine.Register(&Definition{
		Name: "single-shot",
		Steps: []Step{{
			Name: "only",
			Run:  func(ctx context.Context, wctx *Context) error { return boom },
		}},
	})

	_, err := engine.Execute(context.Background(), "single-shot", nil)

	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrActivityTimeout)
}

func TestEngine_AwaitSignalAndResume(t *testing.T) {
	ws := store.NewWorkflowStore()
	engine := NewEngine(ws)
	var decision string

	engine.Register(&Definition{
		Name: "approval",
		Steps: []Step{{
			Name: "wait-for-decision",
			Run: func(ctx context.Context, wctx *Context) error {
				var payload struct {
					Approved bool `json:"approved"`
				}
				ok, err := wctx.SignalPayload(&payload)
				if err != nil {
					return err
				}
				if !ok {
					return AwaitSignal("decision")
				}
				if payload.Approved {
					decision = "approved"
				} else {
					decision = "rejected"
				}
				return nil
			},
		}},
	})

	execution, err := engine.Execute(context.Background(), "approval", nil)
	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusAwaitingSignal, execution.Status)
	assert.Equal(t, "decision", execution.AwaitingSignal)
	assert.Empty(t, decision)

	// Wrong signal name is refused
	_, err = engine.Signal(context.Background(), execution.ID, "other", nil)
	assert.ErrorIs(t, err, ErrNotAwaitingSignal)

	resumed, err := engine.Signal(context.Background(), execution.ID, "decision", map[string]bool{"approved": true})
	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, resumed.Status)
	assert.Equal(t, "approved", decision)
	assert.Empty(t, resumed.SignalPayload)

	// Completed executions no longer accept signals
	_, err = engine.Signal(context.Background(), execution.ID, "decision", nil)
	assert.ErrorIs(t, err, ErrNotAwaitingSignal)
}

func TestEngine_CancelWhileAwaiting(t *testing.T) {
	ws := store.NewWorkflowStore()
	engine := NewEngine(ws)
	var trace []string

	await := Step{
		Name: "hold",
		Run: func(ctx context.Context, wctx *Context) error {
			var ignored json.RawMessage
			ok, err := wctx.SignalPayload(&ignored)
			if err != nil {
				return err
			}
			if !ok {
				return AwaitSignal("go")
			}
			trace = append(trace, "run:hold")
			return nil
		},
	}

	engine.Register(&Definition{
		Name:  "cancellable",
		Steps: []Step{step("reserve", &trace, nil), await},
	})

	execution, err := engine.Execute(context.Background(), "cancellable", nil)
	require.NoError(t, err)
	require.Equal(t, store.WorkflowStatusAwaitingSignal, execution.Status)

	require.NoError(t, engine.Cancel(context.Background(), execution.ID))

	// The cancel lands at the next step boundary when the saga wakes up
	resumed, err := engine.Signal(context.Background(), execution.ID, "go", nil)
	require.ErrorIs(t, err, ErrExecutionCancelled)
	assert.Equal(t, store.WorkflowStatusCancelled, resumed.Status)
	assert.Equal(t, []string{"run:reserve", "undo:reserve"}, trace)

	// Terminal executions cannot be cancelled again
	assert.ErrorIs(t, engine.Cancel(context.Background(), execution.ID), ErrExecutionTerminal)
}

func TestEngine_CompensationFailureIsUncompensated(t *testing.T) {
	ws := store.NewWorkflowStore()
	engine := NewEngine(ws)
	boom := errors.New("saga failed")

	engine.Register(&Definition{
		Name: "broken-undo",
		Steps: []Step{
			{
				Name:       "irreversible",
				Run:        func(ctx context.Context, wctx *Context) error { return nil },
				Compensate: func(ctx context.Context, wctx *Context) error { return errors.New("undo refused") },
			},
			{
				Name: "fails",
				Run:  func(ctx context.Context, wctx *Context) error { return boom },
			},
		},
	})

	execution, err := engine.Execute(context.Background(), "broken-undo", nil)

	require.ErrorIs(t, err, ErrCompensationFailed)
	assert.Equal(t, store.WorkflowStatusFailedUncompensated, execution.Status)

	// The failed compensation stays on the stack for manual follow-up
	assert.Equal(t, []string{"irreversible"}, execution.CompensationStack)
	require.Len(t, execution.CompensationLog, 1)
	assert.False(t, execution.CompensationLog[0].Succeeded)
	assert.Contains(t, execution.CompensationLog[0].Error, "undo refused")
}

func TestEngine_DynamicCompensationsRunLIFO(t *testing.T) {
	ws := store.NewWorkflowStore()
	engine := NewEngine(ws)
	var trace []string
	boom := errors.New("late failure")

	engine.Register(&Definition{
		Name: "dynamic",
		Steps: []Step{
			{
				Name: "arm-early",
				Run: func(ctx context.Context, wctx *Context) error {
					wctx.AddCompensation("release-reservation")
					wctx.AddCompensation("release-reservation") // arming twice is a no-op
					return nil
				},
			},
			{
				Name: "move-money",
				Run:  func(ctx context.Context, wctx *Context) error { return nil },
				Compensate: func(ctx context.Context, wctx *Context) error {
					trace = append(trace, "undo:move-money")
					return nil
				},
			},
			{
				Name: "fails",
				Run:  func(ctx context.Context, wctx *Context) error { return boom },
			},
		},
		Compensations: map[string]CompensateFunc{
			"release-reservation": func(ctx context.Context, wctx *Context) error {
				trace = append(trace, "undo:release-reservation")
				return nil
			},
		},
	})

	execution, err := engine.Execute(context.Background(), "dynamic", nil)

	require.ErrorIs(t, err, boom)
	assert.Equal(t, store.WorkflowStatusFailedCompensated, execution.Status)

	// The dynamic compensation was armed first, so it runs last
	assert.Equal(t, []string{"undo:move-money", "undo:release-reservation"}, trace)
}

func TestEngine_StateBagSurvivesSteps(t *testing.T) {
	ws := store.NewWorkflowStore()
	engine := NewEngine(ws)
	var seen string

	engine.Register(&Definition{
		Name: "stateful",
		Steps: []Step{
			{
				Name: "write",
				Run: func(ctx context.Context, wctx *Context) error {
					return wctx.Set("reference", "ext-123")
				},
			},
			{
				Name: "read",
				Run: func(ctx context.Context, wctx *Context) error {
					ok, err := wctx.Get("reference", &seen)
					if err != nil {
						return err
					}
					if !ok {
						return errors.New("state lost between steps")
					}
					return wctx.SetResult(map[string]string{"reference": seen})
				},
			},
		},
	})

	execution, err := engine.Execute(context.Background(), "stateful", map[string]int{"n": 1})

	require.NoError(t, err)
	assert.Equal(t, "ext-123", seen)
	assert.JSONEq(t, `{"reference":"ext-123"}`, string(execution.Result))
}

func TestEngine_ResumePicksUpAtPersistedStep(t *testing.T) {
	ws := store.NewWorkflowStore()
	engine := NewEngine(ws)
	var trace []string

	engine.Register(&Definition{
		Name:  "resumable",
		Steps: []Step{step("one", &trace, nil), step("two", &trace, nil)},
	})

	// A worker died after persisting step one
	now := time.Now()
	crashed := &store.WorkflowExecution{
		ID:        "wf-crashed",
		Name:      "resumable",
		Status:    store.WorkflowStatusRunning,
		Input:     json.RawMessage(`{}`),
		NextStep:  1,
		StepLog:   []store.WorkflowStepRecord{{Name: "one", Attempts: 1, CompletedAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, ws.SaveWorkflow(context.Background(), crashed))

	resumed, err := engine.Resume(context.Background(), "wf-crashed")

	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, resumed.Status)
	assert.Equal(t, []string{"run:two"}, trace)
}

func TestEngine_ResumeLeavesNonRunningAlone(t *testing.T) {
	ws := store.NewWorkflowStore()
	engine := NewEngine(ws)
	engine.Register(&Definition{Name: "idle", Steps: []Step{}})

	waiting := &store.WorkflowExecution{
		ID:             "wf-waiting",
		Name:           "idle",
		Status:         store.WorkflowStatusAwaitingSignal,
		AwaitingSignal: "approval",
	}
	require.NoError(t, ws.SaveWorkflow(context.Background(), waiting))

	resumed, err := engine.Resume(context.Background(), "wf-waiting")
	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusAwaitingSignal, resumed.Status)

	_, err = engine.Resume(context.Background(), "wf-missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}
