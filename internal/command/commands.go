package command

import "github.com/example/ledger-event-driven/internal/workflow"

// Account lifecycle commands

type OpenAccount struct {
	OwnerID  string `json:"owner_id"`
	Currency string `json:"currency"`
	Limit    int64  `json:"limit"`
}

type DepositMoney struct {
	AccountID   string `json:"account_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type WithdrawMoney struct {
	AccountID   string `json:"account_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type FreezeAccount struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

type UnfreezeAccount struct {
	AccountID string `json:"account_id"`
}

type CloseAccount struct {
	AccountID string `json:"account_id"`
	Reason    string `json:"reason"`
}

// Saga-backed commands

type TransferMoney struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
}

type CustodianDeposit struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

type ComposeBasket struct {
	BasketAccountID string                     `json:"basket_account_id"`
	Components      []workflow.BasketComponent `json:"components"`
}

type DecomposeBasket struct {
	BasketAccountID string                     `json:"basket_account_id"`
	Components      []workflow.BasketComponent `json:"components"`
}

type RequestWithdrawal struct {
	AccountID   string `json:"account_id"`
	Amount      int64  `json:"amount"`
	Destination string `json:"destination"`
}

type DecideWithdrawal struct {
	ExecutionID string `json:"execution_id"`
	Approved    bool   `json:"approved"`
	Reviewer    string `json:"reviewer"`
	Reason      string `json:"reason,omitempty"`
}

type CancelWorkflow struct {
	ExecutionID string `json:"execution_id"`
}
