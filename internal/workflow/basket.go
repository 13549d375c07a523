package workflow

import (
	"context"
	"fmt"
)

const (
	ComposeBasketWorkflowName   = "compose-basket"
	DecomposeBasketWorkflowName = "decompose-basket"
)

// BasketComponent is one leg of a basket composition
type BasketComponent struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// BasketInput drives both basket sagas. Compose moves value from the
// component accounts into the basket account; decompose is the inverse.
type BasketInput struct {
	BasketAccountID string            `json:"basket_account_id"`
	Components      []BasketComponent `json:"components"`
}

func (in BasketInput) total() int64 {
	var total int64
	for _, c := range in.Components {
		total += c.Amount
	}
	return total
}

const movedLegsKey = "moved_legs"

// ComposeBasketDefinition debits every component account, then credits the
// basket with the combined value. A failure partway through credits back
// exactly the components already debited.
func (w *LedgerWorkflows) ComposeBasketDefinition() *Definition {
	return &Definition{
		Name: ComposeBasketWorkflowName,
		Steps: []Step{
			{
				Name: "debit-components",
				Run: func(ctx context.Context, wctx *Context) error {
					var in BasketInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					return w.moveLegs(ctx, wctx, in.Components, false,
						"rebalance: compose "+in.BasketAccountID)
				},
			},
			{
				Name: "credit-basket",
				Run: func(ctx context.Context, wctx *Context) error {
					var in BasketInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					_, err := w.accounts.Credit(ctx, in.BasketAccountID, in.total(),
						"rebalance: compose "+in.BasketAccountID)
					return err
				},
			},
		},
		Compensations: map[string]CompensateFunc{
			"return-legs": w.returnLegsCompensation(),
		},
	}
}

// DecomposeBasketDefinition debits the basket account, then credits each
// component back out
func (w *LedgerWorkflows) DecomposeBasketDefinition() *Definition {
	return &Definition{
		Name: DecomposeBasketWorkflowName,
		Steps: []Step{
			{
				Name: "debit-basket",
				Run: func(ctx context.Context, wctx *Context) error {
					var in BasketInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					_, err := w.accounts.Debit(ctx, in.BasketAccountID, in.total(),
						"rebalance: decompose "+in.BasketAccountID)
					return err
				},
				Compensate: func(ctx context.Context, wctx *Context) error {
					var in BasketInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					_, err := w.accounts.Credit(ctx, in.BasketAccountID, in.total(),
						"rebalance reversal: decompose "+in.BasketAccountID)
					return err
				},
			},
			{
				Name: "credit-components",
				Run: func(ctx context.Context, wctx *Context) error {
					var in BasketInput
					if err := wctx.Input(&in); err != nil {
						return err
					}
					return w.moveLegs(ctx, wctx, in.Components, true,
						"rebalance: decompose "+in.BasketAccountID)
				},
			},
		},
		Compensations: map[string]CompensateFunc{
			"return-legs": w.returnLegsCompensation(),
		},
	}
}

// moveLegs moves each component leg, tracking progress in the durable state
// bag so a failure (or crash-resume) only compensates or redoes what actually
// happened. credit=false debits the component accounts, credit=true credits.
func (w *LedgerWorkflows) moveLegs(ctx context.Context, wctx *Context, components []BasketComponent, credit bool, description string) error {
	var moved []BasketComponent
	if _, err := wctx.Get(movedLegsKey, &moved); err != nil {
		return err
	}

	done := make(map[string]bool, len(moved))
	for _, c := range moved {
		done[c.AccountID] = true
	}

	for _, c := range components {
		if done[c.AccountID] {
			continue
		}
		var err error
		if credit {
			_, err = w.accounts.Credit(ctx, c.AccountID, c.Amount, description)
		} else {
			_, err = w.accounts.Debit(ctx, c.AccountID, c.Amount, description)
		}
		if err != nil {
			return fmt.Errorf("move leg %s: %w", c.AccountID, err)
		}
		moved = append(moved, c)
		wctx.AddCompensation("return-legs")
		if err := wctx.Set(movedLegsKey, moved); err != nil {
			return err
		}
	}
	return nil
}

// returnLegsCompensation undoes every leg recorded in the state bag, in
// reverse order. It serves both sagas: a compose failure credits components
// back, a decompose failure debits them back.
func (w *LedgerWorkflows) returnLegsCompensation() CompensateFunc {
	return func(ctx context.Context, wctx *Context) error {
		var in BasketInput
		if err := wctx.Input(&in); err != nil {
			return err
		}
		var moved []BasketComponent
		if ok, err := wctx.Get(movedLegsKey, &moved); err != nil || !ok {
			return err
		}

		compose := wctx.execution.Name == ComposeBasketWorkflowName
		for i := len(moved) - 1; i >= 0; i-- {
			leg := moved[i]
			var err error
			if compose {
				_, err = w.accounts.Credit(ctx, leg.AccountID, leg.Amount,
					"rebalance reversal: compose "+in.BasketAccountID)
			} else {
				_, err = w.accounts.Debit(ctx, leg.AccountID, leg.Amount,
					"rebalance reversal: decompose "+in.BasketAccountID)
			}
			if err != nil {
				return fmt.Errorf("return leg %s: %w", leg.AccountID, err)
			}
			moved = moved[:i]
			if err := wctx.Set(movedLegsKey, moved); err != nil {
				return err
			}
		}
		return nil
	}
}
