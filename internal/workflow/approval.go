package workflow

import (
	"context"
	"errors"
	"fmt"
)

const (
	WithdrawalApprovalWorkflowName = "withdrawal-approval"

	// SignalApprovalDecision resumes a withdrawal awaiting manual review
	SignalApprovalDecision = "approval-decision"
)

var ErrWithdrawalRejected = errors.New("withdrawal rejected by reviewer")

// WithdrawalApprovalInput starts a withdrawal that needs a human decision
// before money leaves the platform
type WithdrawalApprovalInput struct {
	AccountID   string `json:"account_id"`
	Amount      int64  `json:"amount"`
	Destination string `json:"destination"`
}

// ApprovalDecision is the payload of the approval-decision signal
type ApprovalDecision struct {
	Approved bool   `json:"approved"`
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason,omitempty"`
}

// WithdrawalApprovalDefinition places a hold on the funds, suspends until a
// reviewer decides, and pays out through the custodian on approval. Rejection
// fails the awaiting step, which releases the hold via compensation.
func (w *LedgerWorkflows) WithdrawalApprovalDefinition() *Definition {
	return &Definition{
		Name: WithdrawalApprovalWorkflowName,
		Steps: []Step{
			{
				Name: "place-hold",
				Run: func(ctx context.Context, wctx *Context) error {
					var in WithdrawalApprovalInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					_, err := w.accounts.Debit(ctx, in.AccountID, in.Amount, "withdrawal hold")
					return err
				},
				Compensate: func(ctx context.Context, wctx *Context) error {
					var in WithdrawalApprovalInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					_, err := w.accounts.Credit(ctx, in.AccountID, in.Amount, "withdrawal hold released")
					return err
				},
			},
			{
				Name: "await-approval",
				Run: func(ctx context.Context, wctx *Context) error {
					var decision ApprovalDecision
					ok, err := wctx.SignalPayload(&decision)
					if err != nil {
						return err
					}
					if !ok {
						return AwaitSignal(SignalApprovalDecision)
					}
					if !decision.Approved {
						return fmt.Errorf("%w: %s (%s)", ErrWithdrawalRejected, decision.Reason, decision.Reviewer)
					}
					return wctx.Set("reviewer", decision.Reviewer)
				},
			},
			{
				Name: "payout",
				Run: func(ctx context.Context, wctx *Context) error {
					var in WithdrawalApprovalInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					payoutID, err := w.conn.Payout(ctx, in.AccountID, in.Amount, in.Destination)
					if err != nil {
						return fmt.Errorf("custodian payout: %w", err)
					}
					return wctx.SetResult(map[string]string{"payout_id": payoutID})
				},
			},
		},
	}
}
