package workflow

import (
	"context"
	"fmt"
)

const TransferWorkflowName = "transfer"

// TransferInput starts a TransferDefinition execution. The Transfer aggregate
// is initiated by the command handler before the saga runs; the saga moves the
// money and settles the aggregate last.
type TransferInput struct {
	TransferID    string `json:"transfer_id"`
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
}

// TransferDefinition is the internal transfer saga: debit the source, credit
// the destination, complete the transfer. Any failure credits back what was
// debited and marks the transfer failed — the mark runs last because it was
// armed first.
func (w *LedgerWorkflows) TransferDefinition() *Definition {
	return &Definition{
		Name: TransferWorkflowName,
		Steps: []Step{
			{
				Name: "debit-source",
				Run: func(ctx context.Context, wctx *Context) error {
					var in TransferInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					wctx.AddCompensation("mark-transfer-failed")
					if _, err := w.accounts.Debit(ctx, in.FromAccountID, in.Amount, in.Description); err != nil {
						return fmt.Errorf("debit source %s: %w", in.FromAccountID, err)
					}
					return nil
				},
				Compensate: func(ctx context.Context, wctx *Context) error {
					var in TransferInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					_, err := w.accounts.Credit(ctx, in.FromAccountID, in.Amount, "reversal: "+in.Description)
					return err
				},
			},
			{
				Name: "credit-destination",
				Run: func(ctx context.Context, wctx *Context) error {
					var in TransferInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					if _, err := w.accounts.Credit(ctx, in.ToAccountID, in.Amount, in.Description); err != nil {
						return fmt.Errorf("credit destination %s: %w", in.ToAccountID, err)
					}
					return nil
				},
				Compensate: func(ctx context.Context, wctx *Context) error {
					var in TransferInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					_, err := w.accounts.Debit(ctx, in.ToAccountID, in.Amount, "reversal: "+in.Description)
					return err
				},
			},
			{
				Name: "complete-transfer",
				Run: func(ctx context.Context, wctx *Context) error {
					var in TransferInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					return w.transfers.Complete(ctx, in.TransferID)
				},
			},
		},
		Compensations: map[string]CompensateFunc{
			"mark-transfer-failed": func(ctx context.Context, wctx *Context) error {
				var in TransferInput
				if err := wctx.Input(&in); err != nil {
					return err
				}
				return w.transfers.Fail(ctx, in.TransferID, "transfer saga failed")
			},
		},
	}
}
