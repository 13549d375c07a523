package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/ledger-event-driven/internal/auth"
)

// Operator is one API principal. The platform has no self-service signup;
// operators and reviewers are provisioned through configuration.
type Operator struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
}

// AuthHandlers issues bearer tokens to configured operators
type AuthHandlers struct {
	jwtService *auth.JWTService
	operators  map[string]Operator // keyed by email
}

func NewAuthHandlers(jwtService *auth.JWTService, operators []Operator) *AuthHandlers {
	byEmail := make(map[string]Operator, len(operators))
	for _, op := range operators {
		byEmail[op.Email] = op
	}
	return &AuthHandlers{jwtService: jwtService, operators: byEmail}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
}

// Login exchanges operator credentials for a bearer token
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	op, ok := h.operators[req.Email]
	if !ok || !auth.CheckPassword(req.Password, op.PasswordHash) {
		respondJSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(op.ID, op.Email, op.Role)
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Role:      op.Role,
	})
}
