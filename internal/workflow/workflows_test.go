package workflow

import (
	"context"
	"testing"

	"github.com/example/ledger-event-driven/internal/custodian"
	"github.com/example/ledger-event-driven/internal/domain/account"
	"github.com/example/ledger-event-driven/internal/domain/transfer"
	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sagaFixture struct {
	es        *store.EventStore
	accounts  *account.Service
	transfers *transfer.Service
	sim       *custodian.Simulator
	engine    *Engine
}

func newSagaFixture(t *testing.T) *sagaFixture {
	t.Helper()
	es := store.NewEventStore(nil)
	accounts := account.NewService(es)
	transfers := transfer.NewService(es)
	sim := custodian.NewSimulator()

	flows := NewLedgerWorkflows(accounts, transfers, sim)
	flows.VerifyAttempts = 3
	flows.VerifyDelay = 0

	engine := NewEngine(store.NewWorkflowStore())
	flows.RegisterAll(engine)

	return &sagaFixture{es: es, accounts: accounts, transfers: transfers, sim: sim, engine: engine}
}

func (f *sagaFixture) balance(t *testing.T, accountID string) int64 {
	t.Helper()
	events, err := f.es.ReadStream(context.Background(), accountID, 0)
	require.NoError(t, err)
	acct := &account.Account{}
	for _, event := range events {
		require.NoError(t, acct.ApplyEvent(event))
	}
	return acct.Balance
}

func (f *sagaFixture) transferState(t *testing.T, transferID string) *transfer.Transfer {
	t.Helper()
	events, err := f.es.ReadStream(context.Background(), transferID, 0)
	require.NoError(t, err)
	tr := &transfer.Transfer{}
	for _, event := range events {
		require.NoError(t, tr.ApplyEvent(event))
	}
	return tr
}

func (f *sagaFixture) openFunded(t *testing.T, amount int64) string {
	t.Helper()
	ctx := context.Background()
	acct, err := f.accounts.Open(ctx, "owner", "USD", 0)
	require.NoError(t, err)
	if amount > 0 {
		_, err = f.accounts.Credit(ctx, acct.ID, amount, "seed")
		require.NoError(t, err)
	}
	return acct.ID
}

func TestTransferSaga_HappyPath(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	source := f.openFunded(t, 1000)
	destination := f.openFunded(t, 0)
	tr, err := f.transfers.Initiate(ctx, source, destination, 400, "rent")
	require.NoError(t, err)

	execution, err := f.engine.Execute(ctx, TransferWorkflowName, TransferInput{
		TransferID:    tr.ID,
		FromAccountID: source,
		ToAccountID:   destination,
		Amount:        400,
		Description:   "rent",
	})

	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, execution.Status)
	assert.Equal(t, int64(600), f.balance(t, source))
	assert.Equal(t, int64(400), f.balance(t, destination))
	assert.Equal(t, transfer.StatusCompleted, f.transferState(t, tr.ID).Status)
}

func TestTransferSaga_CreditFailureRefundsSource(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	source := f.openFunded(t, 1000)
	tr, err := f.transfers.Initiate(ctx, source, "no-such-account", 400, "rent")
	require.NoError(t, err)

	execution, err := f.engine.Execute(ctx, TransferWorkflowName, TransferInput{
		TransferID:    tr.ID,
		FromAccountID: source,
		ToAccountID:   "no-such-account",
		Amount:        400,
		Description:   "rent",
	})

	require.ErrorIs(t, err, account.ErrAccountNotFound)
	assert.Equal(t, store.WorkflowStatusFailedCompensated, execution.Status)

	// The debit was reversed and the transfer aggregate marked failed
	assert.Equal(t, int64(1000), f.balance(t, source))
	failed := f.transferState(t, tr.ID)
	assert.Equal(t, transfer.StatusFailed, failed.Status)
	assert.Equal(t, "transfer saga failed", failed.Reason)

	// Refund first, then the failure mark
	require.Len(t, execution.CompensationLog, 2)
	assert.Equal(t, "debit-source", execution.CompensationLog[0].Name)
	assert.Equal(t, "mark-transfer-failed", execution.CompensationLog[1].Name)
}

func TestTransferSaga_InsufficientFundsMarksTransferFailed(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	source := f.openFunded(t, 100)
	destination := f.openFunded(t, 0)
	tr, err := f.transfers.Initiate(ctx, source, destination, 400, "too much")
	require.NoError(t, err)

	execution, err := f.engine.Execute(ctx, TransferWorkflowName, TransferInput{
		TransferID:    tr.ID,
		FromAccountID: source,
		ToAccountID:   destination,
		Amount:        400,
		Description:   "too much",
	})

	require.ErrorIs(t, err, account.ErrInsufficientFunds)
	assert.Equal(t, store.WorkflowStatusFailedCompensated, execution.Status)
	assert.Equal(t, int64(100), f.balance(t, source))
	assert.Equal(t, int64(0), f.balance(t, destination))
	assert.Equal(t, transfer.StatusFailed, f.transferState(t, tr.ID).Status)
}

func TestCustodianSaga_SettlesAndCreditsLedger(t *testing.T) {
	f := newSagaFixture(t)
	f.sim.SettleAfterPolls = 2
	ctx := context.Background()

	accountID := f.openFunded(t, 0)

	execution, err := f.engine.Execute(ctx, CustodianTransferWorkflowName, CustodianTransferInput{
		AccountID: accountID,
		Amount:    2500,
		Reference: "wire-001",
	})

	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, execution.Status)
	assert.Equal(t, int64(2500), f.balance(t, accountID))
	assert.Equal(t, 0, f.sim.ReverseCalls)
}

func TestCustodianSaga_VerificationTimeoutReversesOnce(t *testing.T) {
	f := newSagaFixture(t)
	f.sim.SettleAfterPolls = 100 // never settles within the poll budget
	ctx := context.Background()

	accountID := f.openFunded(t, 0)

	execution, err := f.engine.Execute(ctx, CustodianTransferWorkflowName, CustodianTransferInput{
		AccountID: accountID,
		Amount:    2500,
		Reference: "wire-002",
	})

	require.ErrorIs(t, err, ErrActivityTimeout)
	assert.Equal(t, store.WorkflowStatusFailedCompensated, execution.Status)

	// The custodian transfer was reversed exactly once and no money landed
	assert.Equal(t, 1, f.sim.ReverseCalls)
	assert.Equal(t, int64(0), f.balance(t, accountID))
}

func TestCustodianSaga_InitiateFailureHasNothingToReverse(t *testing.T) {
	f := newSagaFixture(t)
	f.sim.FailInitiate = custodian.ErrTransferUnknown
	ctx := context.Background()

	accountID := f.openFunded(t, 0)

	execution, err := f.engine.Execute(ctx, CustodianTransferWorkflowName, CustodianTransferInput{
		AccountID: accountID,
		Amount:    2500,
		Reference: "wire-003",
	})

	require.Error(t, err)
	assert.Equal(t, store.WorkflowStatusFailedCompensated, execution.Status)
	assert.Equal(t, 0, f.sim.ReverseCalls)
	assert.Empty(t, execution.CompensationLog)
}

func TestWithdrawalApproval_ApprovedPaysOut(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	accountID := f.openFunded(t, 1000)

	execution, err := f.engine.Execute(ctx, WithdrawalApprovalWorkflowName, WithdrawalApprovalInput{
		AccountID:   accountID,
		Amount:      300,
		Destination: "iban-123",
	})
	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusAwaitingSignal, execution.Status)
	assert.Equal(t, SignalApprovalDecision, execution.AwaitingSignal)

	// The hold is already placed while the saga waits
	assert.Equal(t, int64(700), f.balance(t, accountID))

	resumed, err := f.engine.Signal(ctx, execution.ID, SignalApprovalDecision,
		ApprovalDecision{Approved: true, Reviewer: "reviewer-1"})

	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, resumed.Status)
	assert.Equal(t, int64(700), f.balance(t, accountID))
	assert.Contains(t, string(resumed.Result), "payout_id")
}

func TestWithdrawalApproval_RejectionReleasesHold(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	accountID := f.openFunded(t, 1000)

	execution, err := f.engine.Execute(ctx, WithdrawalApprovalWorkflowName, WithdrawalApprovalInput{
		AccountID:   accountID,
		Amount:      300,
		Destination: "iban-123",
	})
	require.NoError(t, err)
	require.Equal(t, store.WorkflowStatusAwaitingSignal, execution.Status)

	resumed, err := f.engine.Signal(ctx, execution.ID, SignalApprovalDecision,
		ApprovalDecision{Approved: false, Reviewer: "reviewer-1", Reason: "kyc incomplete"})

	require.ErrorIs(t, err, ErrWithdrawalRejected)
	assert.Equal(t, store.WorkflowStatusFailedCompensated, resumed.Status)
	assert.Equal(t, int64(1000), f.balance(t, accountID))
}

func TestComposeBasket_MovesAllLegs(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	basket := f.openFunded(t, 0)
	legA := f.openFunded(t, 500)
	legB := f.openFunded(t, 800)

	execution, err := f.engine.Execute(ctx, ComposeBasketWorkflowName, BasketInput{
		BasketAccountID: basket,
		Components: []BasketComponent{
			{AccountID: legA, Amount: 500},
			{AccountID: legB, Amount: 300},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, execution.Status)
	assert.Equal(t, int64(800), f.balance(t, basket))
	assert.Equal(t, int64(0), f.balance(t, legA))
	assert.Equal(t, int64(500), f.balance(t, legB))
}

func TestComposeBasket_PartialFailureReturnsMovedLegs(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	basket := f.openFunded(t, 0)
	legA := f.openFunded(t, 500)
	legB := f.openFunded(t, 100) // cannot cover its leg

	execution, err := f.engine.Execute(ctx, ComposeBasketWorkflowName, BasketInput{
		BasketAccountID: basket,
		Components: []BasketComponent{
			{AccountID: legA, Amount: 500},
			{AccountID: legB, Amount: 300},
		},
	})

	require.ErrorIs(t, err, account.ErrInsufficientFunds)
	assert.Equal(t, store.WorkflowStatusFailedCompensated, execution.Status)

	// Only legA moved, and it was credited back
	assert.Equal(t, int64(500), f.balance(t, legA))
	assert.Equal(t, int64(100), f.balance(t, legB))
	assert.Equal(t, int64(0), f.balance(t, basket))
}

func TestDecomposeBasket_CreditsComponents(t *testing.T) {
	f := newSagaFixture(t)
	ctx := context.Background()

	basket := f.openFunded(t, 900)
	legA := f.openFunded(t, 0)
	legB := f.openFunded(t, 0)

	execution, err := f.engine.Execute(ctx, DecomposeBasketWorkflowName, BasketInput{
		BasketAccountID: basket,
		Components: []BasketComponent{
			{AccountID: legA, Amount: 600},
			{AccountID: legB, Amount: 300},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, store.WorkflowStatusCompleted, execution.Status)
	assert.Equal(t, int64(0), f.balance(t, basket))
	assert.Equal(t, int64(600), f.balance(t, legA))
	assert.Equal(t, int64(300), f.balance(t, legB))
}
