package command

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/example/ledger-event-driven/internal/domain/account"
	"github.com/example/ledger-event-driven/internal/domain/transfer"
	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/example/ledger-event-driven/internal/readmodel"
	"github.com/example/ledger-event-driven/internal/workflow"
)

// conflictRetries bounds the reload-and-retry loop on optimistic concurrency
// conflicts. Conflicts are expected under contention and rerunning the command
// against the fresh stream head is the designed response.
const conflictRetries = 3

// Handler is the single command intake. It gates balance commands on the
// account's projected status (frozen and closed accounts reject deposits and
// withdrawals here, not in the aggregate), retries conflicted appends, and
// hands saga-backed commands to the workflow engine.
type Handler struct {
	accounts  *account.Service
	transfers *transfer.Service
	readStore store.ReadStoreInterface
	engine    *workflow.Engine
}

func NewHandler(accounts *account.Service, transfers *transfer.Service, readStore store.ReadStoreInterface, engine *workflow.Engine) *Handler {
	return &Handler{
		accounts:  accounts,
		transfers: transfers,
		readStore: readStore,
		engine:    engine,
	}
}

// retryConflicts reruns fn while it fails with ErrConcurrencyConflict. Each
// rerun reloads the aggregate inside fn, so the command is revalidated against
// the new stream head rather than blindly reapplied.
func retryConflicts(fn func() error) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err = fn()
		if !errors.Is(err, store.ErrConcurrencyConflict) {
			return err
		}
		log.Printf("[Command] Concurrency conflict, retrying (attempt %d/%d)", attempt+1, conflictRetries)
	}
	return err
}

// ensureOperational rejects balance commands against frozen or closed
// accounts using the read model. The projection can lag a freshly opened
// account, so a missing row is not an error here; the aggregate load catches
// truly unknown accounts.
func (h *Handler) ensureOperational(accountID string) error {
	row, ok, err := h.readStore.Get(store.CollectionAccounts, accountID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	switch row.(*readmodel.AccountReadModel).Status {
	case readmodel.AccountStatusFrozen:
		return fmt.Errorf("%w: %s", account.ErrAccountFrozen, accountID)
	case readmodel.AccountStatusClosed:
		return fmt.Errorf("%w: %s", account.ErrAccountClosed, accountID)
	}
	return nil
}

func (h *Handler) OpenAccount(ctx context.Context, cmd OpenAccount) (*account.Account, error) {
	return h.accounts.Open(ctx, cmd.OwnerID, cmd.Currency, cmd.Limit)
}

func (h *Handler) DepositMoney(ctx context.Context, cmd DepositMoney) (*account.Account, error) {
	if err := h.ensureOperational(cmd.AccountID); err != nil {
		return nil, err
	}
	var acct *account.Account
	err := retryConflicts(func() error {
		var err error
		acct, err = h.accounts.Credit(ctx, cmd.AccountID, cmd.Amount, cmd.Description)
		return err
	})
	return acct, err
}

func (h *Handler) WithdrawMoney(ctx context.Context, cmd WithdrawMoney) (*account.Account, error) {
	if err := h.ensureOperational(cmd.AccountID); err != nil {
		return nil, err
	}
	var acct *account.Account
	// ErrInsufficientFunds is not a conflict: the marker event is already
	// persisted and the command is not rerun
	err := retryConflicts(func() error {
		var err error
		acct, err = h.accounts.Debit(ctx, cmd.AccountID, cmd.Amount, cmd.Description)
		return err
	})
	return acct, err
}

func (h *Handler) FreezeAccount(ctx context.Context, cmd FreezeAccount) error {
	return retryConflicts(func() error {
		return h.accounts.Freeze(ctx, cmd.AccountID, cmd.Reason)
	})
}

func (h *Handler) UnfreezeAccount(ctx context.Context, cmd UnfreezeAccount) error {
	return retryConflicts(func() error {
		return h.accounts.Unfreeze(ctx, cmd.AccountID)
	})
}

func (h *Handler) CloseAccount(ctx context.Context, cmd CloseAccount) error {
	return retryConflicts(func() error {
		return h.accounts.Close(ctx, cmd.AccountID, cmd.Reason)
	})
}

// TransferMoney initiates the Transfer aggregate and runs the transfer saga.
// The returned execution carries the terminal saga status; the error is the
// original step failure when the saga compensated.
func (h *Handler) TransferMoney(ctx context.Context, cmd TransferMoney) (*store.WorkflowExecution, error) {
	if err := h.ensureOperational(cmd.FromAccountID); err != nil {
		return nil, err
	}
	if err := h.ensureOperational(cmd.ToAccountID); err != nil {
		return nil, err
	}

	t, err := h.transfers.Initiate(ctx, cmd.FromAccountID, cmd.ToAccountID, cmd.Amount, cmd.Description)
	if err != nil {
		return nil, err
	}

	return h.engine.Execute(ctx, workflow.TransferWorkflowName, workflow.TransferInput{
		TransferID:    t.ID,
		FromAccountID: cmd.FromAccountID,
		ToAccountID:   cmd.ToAccountID,
		Amount:        cmd.Amount,
		Description:   cmd.Description,
	})
}

func (h *Handler) CustodianDeposit(ctx context.Context, cmd CustodianDeposit) (*store.WorkflowExecution, error) {
	if err := h.ensureOperational(cmd.AccountID); err != nil {
		return nil, err
	}
	return h.engine.Execute(ctx, workflow.CustodianTransferWorkflowName, workflow.CustodianTransferInput{
		AccountID: cmd.AccountID,
		Amount:    cmd.Amount,
		Reference: cmd.Reference,
	})
}

func (h *Handler) ComposeBasket(ctx context.Context, cmd ComposeBasket) (*store.WorkflowExecution, error) {
	if err := h.ensureOperational(cmd.BasketAccountID); err != nil {
		return nil, err
	}
	return h.engine.Execute(ctx, workflow.ComposeBasketWorkflowName, workflow.BasketInput{
		BasketAccountID: cmd.BasketAccountID,
		Components:      cmd.Components,
	})
}

func (h *Handler) DecomposeBasket(ctx context.Context, cmd DecomposeBasket) (*store.WorkflowExecution, error) {
	if err := h.ensureOperational(cmd.BasketAccountID); err != nil {
		return nil, err
	}
	return h.engine.Execute(ctx, workflow.DecomposeBasketWorkflowName, workflow.BasketInput{
		BasketAccountID: cmd.BasketAccountID,
		Components:      cmd.Components,
	})
}

// RequestWithdrawal starts the approval saga; the returned execution is
// normally suspended awaiting the reviewer's decision
func (h *Handler) RequestWithdrawal(ctx context.Context, cmd RequestWithdrawal) (*store.WorkflowExecution, error) {
	if err := h.ensureOperational(cmd.AccountID); err != nil {
		return nil, err
	}
	return h.engine.Execute(ctx, workflow.WithdrawalApprovalWorkflowName, workflow.WithdrawalApprovalInput{
		AccountID:   cmd.AccountID,
		Amount:      cmd.Amount,
		Destination: cmd.Destination,
	})
}

// DecideWithdrawal delivers the reviewer's decision to a suspended execution
func (h *Handler) DecideWithdrawal(ctx context.Context, cmd DecideWithdrawal) (*store.WorkflowExecution, error) {
	return h.engine.Signal(ctx, cmd.ExecutionID, workflow.SignalApprovalDecision, workflow.ApprovalDecision{
		Approved: cmd.Approved,
		Reviewer: cmd.Reviewer,
		Reason:   cmd.Reason,
	})
}

func (h *Handler) CancelWorkflow(ctx context.Context, cmd CancelWorkflow) error {
	return h.engine.Cancel(ctx, cmd.ExecutionID)
}
