package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/example/ledger-event-driven/internal/api/middleware"
	"github.com/example/ledger-event-driven/internal/auth"
)

// NewRouter wires the ledger API. Everything except /auth/login requires a
// bearer token; withdrawal decisions additionally require the reviewer role.
func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, jwtService *auth.JWTService) http.Handler {
	mux := http.NewServeMux()

	requireAuth := middleware.AuthMiddleware(jwtService)
	requireReviewer := middleware.RequireRole(auth.RoleReviewer)

	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		authHandlers.Login(w, r)
	})

	// Accounts
	mux.Handle("/accounts", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetAccounts(w, r)
		case http.MethodPost:
			handlers.OpenAccount(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/accounts/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/transactions") && r.Method == http.MethodGet:
			handlers.GetTransactions(w, r)
		case strings.HasSuffix(path, "/deposit") && r.Method == http.MethodPost:
			handlers.Deposit(w, r)
		case strings.HasSuffix(path, "/withdraw") && r.Method == http.MethodPost:
			handlers.Withdraw(w, r)
		case strings.HasSuffix(path, "/freeze") && r.Method == http.MethodPost:
			handlers.FreezeAccount(w, r)
		case strings.HasSuffix(path, "/unfreeze") && r.Method == http.MethodPost:
			handlers.UnfreezeAccount(w, r)
		case strings.HasSuffix(path, "/close") && r.Method == http.MethodPost:
			handlers.CloseAccount(w, r)
		case r.Method == http.MethodGet:
			handlers.GetAccount(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Transfers
	mux.Handle("/transfers", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.CreateTransfer(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	mux.Handle("/transfers/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetTransfer(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	// Custodian and basket sagas
	mux.Handle("/custodian/deposits", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.CustodianDeposit(w, r)
	})))

	mux.Handle("/baskets/compose", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.ComposeBasket(w, r)
	})))

	mux.Handle("/baskets/decompose", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.DecomposeBasket(w, r)
	})))

	// Withdrawals and workflows
	mux.Handle("/withdrawals", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handlers.RequestWithdrawal(w, r)
	})))

	mux.Handle("/workflows/", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/decision") && r.Method == http.MethodPost:
			requireReviewer(http.HandlerFunc(handlers.DecideWithdrawal)).ServeHTTP(w, r)
		case strings.HasSuffix(path, "/cancel") && r.Method == http.MethodPost:
			handlers.CancelWorkflow(w, r)
		case r.Method == http.MethodGet:
			handlers.GetWorkflow(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})))

	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[API] %s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
