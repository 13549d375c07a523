package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ledger-event-driven/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

func issueToken(t *testing.T, role string) string {
	t.Helper()
	svc := auth.NewJWTService(testSecret, time.Hour)
	token, _, err := svc.GenerateToken("user-1", "ops@example.com", role)
	require.NoError(t, err)
	return token
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	assert.Empty(t, ExtractToken(r))

	r.Header.Set("Authorization", "Bearer abc123")
	assert.Equal(t, "abc123", ExtractToken(r))

	r.Header.Set("Authorization", "Basic abc123")
	assert.Empty(t, ExtractToken(r))
}

func TestAuthMiddleware(t *testing.T) {
	svc := auth.NewJWTService(testSecret, time.Hour)
	var gotClaims *auth.Claims
	handler := AuthMiddleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims, _ = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/accounts", nil)
		r.Header.Set("Authorization", "Bearer not-a-token")
		handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another key", func(t *testing.T) {
		other := auth.NewJWTService("another-secret-key-also-32-characters!!", time.Hour)
		token, _, err := other.GenerateToken("user-1", "ops@example.com", auth.RoleOperator)
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/accounts", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token passes claims through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/accounts", nil)
		r.Header.Set("Authorization", "Bearer "+issueToken(t, auth.RoleOperator))
		handler.ServeHTTP(rec, r)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, gotClaims)
		assert.Equal(t, "user-1", gotClaims.UserID)
		assert.Equal(t, auth.RoleOperator, gotClaims.Role)
	})
}

func TestRequireRole(t *testing.T) {
	svc := auth.NewJWTService(testSecret, time.Hour)
	handler := AuthMiddleware(svc)(RequireRole(auth.RoleReviewer)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))

	t.Run("wrong role is forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/decision", nil)
		r.Header.Set("Authorization", "Bearer "+issueToken(t, auth.RoleOperator))
		handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("matching role passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/decision", nil)
		r.Header.Set("Authorization", "Bearer "+issueToken(t, auth.RoleReviewer))
		handler.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no claims in context", func(t *testing.T) {
		bare := RequireRole(auth.RoleReviewer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		rec := httptest.NewRecorder()
		bare.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/workflows/wf-1/decision", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
