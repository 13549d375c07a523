package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/example/ledger-event-driven/internal/command"
	"github.com/example/ledger-event-driven/internal/domain/account"
	"github.com/example/ledger-event-driven/internal/domain/transfer"
	"github.com/example/ledger-event-driven/internal/infrastructure/store"
	"github.com/example/ledger-event-driven/internal/query"
	"github.com/example/ledger-event-driven/internal/workflow"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler) *Handlers {
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
	}
}

// Account handlers

func (h *Handlers) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var cmd command.OpenAccount
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := h.cmdHandler.OpenAccount(r.Context(), cmd)
	if err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, acct)
}

func (h *Handlers) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.queryHandler.ListAccounts(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/accounts/")
	acct, err := h.queryHandler.GetAccount(r.Context(), id)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (h *Handlers) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/accounts/")
	id = strings.TrimSuffix(id, "/transactions")

	transactions, err := h.queryHandler.GetTransactions(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, transactions)
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	id := accountAction(r.URL.Path, "/deposit")

	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := h.cmdHandler.DepositMoney(r.Context(), command.DepositMoney{
		AccountID:   id,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := accountAction(r.URL.Path, "/withdraw")

	var req struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := h.cmdHandler.WithdrawMoney(r.Context(), command.WithdrawMoney{
		AccountID:   id,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, acct)
}

func (h *Handlers) FreezeAccount(w http.ResponseWriter, r *http.Request) {
	id := accountAction(r.URL.Path, "/freeze")

	var req struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	if err := h.cmdHandler.FreezeAccount(r.Context(), command.FreezeAccount{AccountID: id, Reason: req.Reason}); err != nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Account frozen"})
}

func (h *Handlers) UnfreezeAccount(w http.ResponseWriter, r *http.Request) {
	id := accountAction(r.URL.Path, "/unfreeze")

	if err := h.cmdHandler.UnfreezeAccount(r.Context(), command.UnfreezeAccount{AccountID: id}); err != nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Account unfrozen"})
}

func (h *Handlers) CloseAccount(w http.ResponseWriter, r *http.Request) {
	id := accountAction(r.URL.Path, "/close")

	var req struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	if err := h.cmdHandler.CloseAccount(r.Context(), command.CloseAccount{AccountID: id, Reason: req.Reason}); err != nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Account closed"})
}

// Transfer handlers

func (h *Handlers) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var cmd command.TransferMoney
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	execution, err := h.cmdHandler.TransferMoney(r.Context(), cmd)
	if err != nil && execution == nil {
		respondCommandError(w, err)
		return
	}
	// A compensated saga still returns the execution so the caller sees the
	// terminal status and the original failure
	respondJSON(w, http.StatusCreated, execution)
}

func (h *Handlers) GetTransfer(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/transfers/")
	t, err := h.queryHandler.GetTransfer(r.Context(), id)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// Saga handlers

func (h *Handlers) CustodianDeposit(w http.ResponseWriter, r *http.Request) {
	var cmd command.CustodianDeposit
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	execution, err := h.cmdHandler.CustodianDeposit(r.Context(), cmd)
	if err != nil && execution == nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, execution)
}

func (h *Handlers) ComposeBasket(w http.ResponseWriter, r *http.Request) {
	var cmd command.ComposeBasket
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	execution, err := h.cmdHandler.ComposeBasket(r.Context(), cmd)
	if err != nil && execution == nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, execution)
}

func (h *Handlers) DecomposeBasket(w http.ResponseWriter, r *http.Request) {
	var cmd command.DecomposeBasket
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	execution, err := h.cmdHandler.DecomposeBasket(r.Context(), cmd)
	if err != nil && execution == nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, execution)
}

func (h *Handlers) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var cmd command.RequestWithdrawal
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	execution, err := h.cmdHandler.RequestWithdrawal(r.Context(), cmd)
	if err != nil && execution == nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, execution)
}

func (h *Handlers) DecideWithdrawal(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/workflows/")
	id := strings.TrimSuffix(path, "/decision")

	var req struct {
		Approved bool   `json:"approved"`
		Reviewer string `json:"reviewer"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	execution, err := h.cmdHandler.DecideWithdrawal(r.Context(), command.DecideWithdrawal{
		ExecutionID: id,
		Approved:    req.Approved,
		Reviewer:    req.Reviewer,
		Reason:      req.Reason,
	})
	if err != nil && execution == nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, execution)
}

func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/workflows/")
	execution, err := h.queryHandler.GetWorkflow(r.Context(), id)
	if err != nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, execution)
}

func (h *Handlers) CancelWorkflow(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/workflows/")
	id := strings.TrimSuffix(path, "/cancel")

	if err := h.cmdHandler.CancelWorkflow(r.Context(), command.CancelWorkflow{ExecutionID: id}); err != nil {
		respondCommandError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Cancellation requested"})
}

// Helpers

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

// accountAction extracts the account ID from /accounts/{id}{suffix}
func accountAction(path, suffix string) string {
	id := strings.TrimPrefix(path, "/accounts/")
	return strings.TrimSuffix(id, suffix)
}

// respondCommandError maps domain errors onto HTTP statuses
func respondCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrNotFound),
		errors.Is(err, account.ErrAccountNotFound),
		errors.Is(err, transfer.ErrTransferNotFound),
		errors.Is(err, workflow.ErrExecutionNotFound):
		respondJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, account.ErrInsufficientFunds):
		respondJSONError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, account.ErrAccountFrozen),
		errors.Is(err, account.ErrAccountClosed),
		errors.Is(err, account.ErrInvalidStateTransition),
		errors.Is(err, transfer.ErrInvalidStatus),
		errors.Is(err, workflow.ErrNotAwaitingSignal),
		errors.Is(err, workflow.ErrExecutionTerminal),
		errors.Is(err, store.ErrConcurrencyConflict):
		respondJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, account.ErrInvalidAmount),
		errors.Is(err, transfer.ErrInvalidTransfer):
		respondJSONError(w, err.Error(), http.StatusBadRequest)
	default:
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}
