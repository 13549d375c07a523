package workflow

import (
	"time"

	"github.com/example/ledger-event-driven/internal/custodian"
	"github.com/example/ledger-event-driven/internal/domain/account"
	"github.com/example/ledger-event-driven/internal/domain/transfer"
)

// LedgerWorkflows builds the concrete saga definitions over the ledger
// services and the custodian connector
type LedgerWorkflows struct {
	accounts  *account.Service
	transfers *transfer.Service
	conn      custodian.Connector

	// Custodian settlement poll budget
	VerifyAttempts int
	VerifyDelay    time.Duration
}

func NewLedgerWorkflows(accounts *account.Service, transfers *transfer.Service, conn custodian.Connector) *LedgerWorkflows {
	return &LedgerWorkflows{
		accounts:       accounts,
		transfers:      transfers,
		conn:           conn,
		VerifyAttempts: 5,
		VerifyDelay:    2 * time.Second,
	}
}

// RegisterAll wires every ledger saga into the engine
func (w *LedgerWorkflows) RegisterAll(engine *Engine) {
	engine.Register(w.TransferDefinition())
	engine.Register(w.CustodianTransferDefinition())
	engine.Register(w.ComposeBasketDefinition())
	engine.Register(w.DecomposeBasketDefinition())
	engine.Register(w.WithdrawalApprovalDefinition())
}
