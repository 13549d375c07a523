package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ledger-event-driven/internal/custodian"
)

const CustodianTransferWorkflowName = "custodian-transfer"

var (
	ErrSettlementPending = errors.New("custodian settlement still pending")
	ErrCustodianRejected = errors.New("custodian rejected the transfer")
)

// CustodianTransferInput starts an inbound custodian transfer: money moves at
// the custodian first, the ledger account is credited once settlement verifies.
type CustodianTransferInput struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

const custodianTransferIDKey = "custodian_transfer_id"

// CustodianTransferDefinition initiates a transfer at the custodian, polls for
// settlement with a bounded budget, then settles the ledger. A verification
// timeout or rejection reverses the custodian transfer exactly once and ends
// the saga failed_compensated.
func (w *LedgerWorkflows) CustodianTransferDefinition() *Definition {
	return &Definition{
		Name: CustodianTransferWorkflowName,
		Steps: []Step{
			{
				Name: "initiate-custodian-transfer",
				Run: func(ctx context.Context, wctx *Context) error {
					var in CustodianTransferInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					// Re-running after a crash must not initiate twice
					var existing string
					if ok, err := wctx.Get(custodianTransferIDKey, &existing); err != nil {
						return err
					} else if ok {
						return nil
					}
					id, err := w.conn.Initiate(ctx, in.AccountID, in.Amount, in.Reference)
					if err != nil {
						return fmt.Errorf("initiate custodian transfer: %w", err)
					}
					wctx.AddCompensation("reverse-custodian-transfer")
					return wctx.Set(custodianTransferIDKey, id)
				},
			},
			{
				Name:       "verify-settlement",
				Retries:    w.VerifyAttempts - 1,
				RetryDelay: w.VerifyDelay,
				Run: func(ctx context.Context, wctx *Context) error {
					var id string
					if _, err := wctx.Get(custodianTransferIDKey, &id); err != nil {
						return err
					}
					state, err := w.conn.Status(ctx, id)
					if err != nil {
						return err
					}
					switch state {
					case custodian.TransferSettled:
						return nil
					case custodian.TransferRejected, custodian.TransferReversed:
						return fmt.Errorf("%w: transfer %s is %s", ErrCustodianRejected, id, state)
					default:
						return fmt.Errorf("%w: transfer %s", ErrSettlementPending, id)
					}
				},
			},
			{
				Name: "settle-ledger",
				Run: func(ctx context.Context, wctx *Context) error {
					var in CustodianTransferInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					acct, err := w.accounts.Credit(ctx, in.AccountID, in.Amount, "custodian settlement: "+in.Reference)
					if err != nil {
						return fmt.Errorf("settle ledger account %s: %w", in.AccountID, err)
					}
					return wctx.SetResult(map[string]any{
						"account_id": acct.ID,
						"balance":    acct.Balance,
					})
				},
			},
		},
		Compensations: map[string]CompensateFunc{
			"reverse-custodian-transfer": func(ctx context.Context, wctx *Context) error {
				var id string
				if ok, err := wctx.Get(custodianTransferIDKey, &id); err != nil || !ok {
					return err
				}
				return w.conn.Reverse(ctx, id)
			},
		},
	}
}
