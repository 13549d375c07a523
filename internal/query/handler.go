package query

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/example/ledger-event-driven/internal/readmodel"
)

var ErrNotFound = errors.New("not found")

// Handler answers queries from the read store only. It never touches the
// event log, so answers reflect the projection's position, not necessarily
// the latest append.
type Handler struct {
	readStore     store.ReadStoreInterface
	workflowStore store.WorkflowStoreInterface
}

func NewHandler(readStore store.ReadStoreInterface, workflowStore store.WorkflowStoreInterface) *Handler {
	return &Handler{readStore: readStore, workflowStore: workflowStore}
}

func (h *Handler) GetAccount(ctx context.Context, accountID string) (*readmodel.AccountReadModel, error) {
	row, ok, err := h.readStore.Get(store.CollectionAccounts, accountID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	return row.(*readmodel.AccountReadModel), nil
}

func (h *Handler) ListAccounts(ctx context.Context) ([]*readmodel.AccountReadModel, error) {
	rows, err := h.readStore.GetAll(store.CollectionAccounts)
	if err != nil {
		return nil, err
	}
	accounts := make([]*readmodel.AccountReadModel, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, row.(*readmodel.AccountReadModel))
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	return accounts, nil
}

// GetTransactions returns an account's history, oldest first
func (h *Handler) GetTransactions(ctx context.Context, accountID string) ([]*readmodel.TransactionReadModel, error) {
	rows, err := h.readStore.GetAll(store.CollectionTransactions)
	if err != nil {
		return nil, err
	}
	var transactions []*readmodel.TransactionReadModel
	for _, row := range rows {
		tx := row.(*readmodel.TransactionReadModel)
		if tx.AccountID == accountID {
			transactions = append(transactions, tx)
		}
	}
	sort.Slice(transactions, func(i, j int) bool {
		return transactions[i].RecordedAt.Before(transactions[j].RecordedAt)
	})
	return transactions, nil
}

func (h *Handler) GetTransfer(ctx context.Context, transferID string) (*readmodel.TransferReadModel, error) {
	row, ok, err := h.readStore.Get(store.CollectionTransfers, transferID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s", ErrNotFound, transferID)
	}
	return row.(*readmodel.TransferReadModel), nil
}

func (h *Handler) GetWorkflow(ctx context.Context, executionID string) (*store.WorkflowExecution, error) {
	execution, ok, err := h.workflowStore.GetWorkflow(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: workflow execution %s", ErrNotFound, executionID)
	}
	return execution, nil
}

// ListWorkflows returns executions in the given status, for the ops view and
// the resume worker
func (h *Handler) ListWorkflows(ctx context.Context, status store.WorkflowStatus) ([]*store.WorkflowExecution, error) {
	return h.workflowStore.ListWorkflowsByStatus(ctx, status)
}
