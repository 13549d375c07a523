package query

import (
	"context"
	"testing"
	"time"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/example/ledger-event-driven/internal/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueryFixture(t *testing.T) (*store.ReadStore, *store.WorkflowStore, *Handler) {
	t.Helper()
	rs := store.NewReadStore()
	ws := store.NewWorkflowStore()
	return rs, ws, NewHandler(rs, ws)
}

func TestHandler_GetAccount(t *testing.T) {
	rs, _, h := newQueryFixture(t)
	require.NoError(t, rs.Set(store.CollectionAccounts, "a-1", &readmodel.AccountReadModel{
		ID:      "a-1",
		Balance: 500,
		Status:  readmodel.AccountStatusActive,
	}))

	acct, err := h.GetAccount(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), acct.Balance)

	_, err = h.GetAccount(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandler_ListAccounts_SortedByCreation(t *testing.T) {
	rs, _, h := newQueryFixture(t)
	now := time.Now()
	require.NoError(t, rs.Set(store.CollectionAccounts, "newer", &readmodel.AccountReadModel{ID: "newer", CreatedAt: now}))
	require.NoError(t, rs.Set(store.CollectionAccounts, "older", &readmodel.AccountReadModel{ID: "older", CreatedAt: now.Add(-time.Hour)}))

	accounts, err := h.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "older", accounts[0].ID)
	assert.Equal(t, "newer", accounts[1].ID)
}

func TestHandler_GetTransactions_FiltersAndSorts(t *testing.T) {
	rs, _, h := newQueryFixture(t)
	now := time.Now()
	require.NoError(t, rs.Set(store.CollectionTransactions, "e-1", &readmodel.TransactionReadModel{
		ID: "e-1", AccountID: "a-1", Type: readmodel.TransactionTypeDeposit, Amount: 100, RecordedAt: now,
	}))
	require.NoError(t, rs.Set(store.CollectionTransactions, "e-2", &readmodel.TransactionReadModel{
		ID: "e-2", AccountID: "a-1", Type: readmodel.TransactionTypeWithdrawal, Amount: 40, RecordedAt: now.Add(-time.Minute),
	}))
	require.NoError(t, rs.Set(store.CollectionTransactions, "e-3", &readmodel.TransactionReadModel{
		ID: "e-3", AccountID: "other", Type: readmodel.TransactionTypeDeposit, Amount: 999, RecordedAt: now,
	}))

	transactions, err := h.GetTransactions(context.Background(), "a-1")
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, "e-2", transactions[0].ID)
	assert.Equal(t, "e-1", transactions[1].ID)
}

func TestHandler_GetTransfer(t *testing.T) {
	rs, _, h := newQueryFixture(t)
	require.NoError(t, rs.Set(store.CollectionTransfers, "t-1", &readmodel.TransferReadModel{ID: "t-1", Status: "pending"}))

	tr, err := h.GetTransfer(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "pending", tr.Status)

	_, err = h.GetTransfer(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandler_GetWorkflow(t *testing.T) {
	_, ws, h := newQueryFixture(t)
	require.NoError(t, ws.SaveWorkflow(context.Background(), &store.WorkflowExecution{
		ID:     "wf-1",
		Name:   "transfer",
		Status: store.WorkflowStatusRunning,
	}))

	execution, err := h.GetWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "transfer", execution.Name)

	_, err = h.GetWorkflow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandler_ListWorkflows(t *testing.T) {
	_, ws, h := newQueryFixture(t)
	ctx := context.Background()
	require.NoError(t, ws.SaveWorkflow(ctx, &store.WorkflowExecution{ID: "wf-1", Status: store.WorkflowStatusRunning}))
	require.NoError(t, ws.SaveWorkflow(ctx, &store.WorkflowExecution{ID: "wf-2", Status: store.WorkflowStatusCompleted}))

	running, err := h.ListWorkflows(ctx, store.WorkflowStatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "wf-1", running[0].ID)
}
