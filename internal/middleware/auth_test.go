package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/auth"
	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret-key-0123456789"

func newAuth(t *testing.T) (*auth.Service, *AuthMiddleware) {
	t.Helper()
	authService, err := auth.NewService(testSecret, time.Hour)
	require.NoError(t, err)
	return authService, NewAuthMiddleware(authService)
}

func tokenFor(t *testing.T, s *auth.Service, username string, role models.Role) string {
	t.Helper()
	token, err := s.GenerateToken(&models.User{
		ID:       primitive.NewObjectID(),
		Username: username,
		Role:     role,
	})
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	authService, middleware := newAuth(t)

	t.Run("valid token", func(t *testing.T) {
		token := tokenFor(t, authService, "testuser", models.RoleOperator)

		req := httptest.NewRequest("GET", "/api/trips", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			claims, ok := GetUserFromContext(r.Context())
			assert.True(t, ok)
			assert.Equal(t, "testuser", claims.Username)
			assert.Equal(t, models.RoleOperator, claims.Role)
			assert.Equal(t, "testuser", audit.ActorFrom(r.Context()))
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing authorization header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/trips", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"authorization header required"}`, w.Body.String())
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/trips", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		middleware.Authenticate(handler).ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		past := func() time.Time { return time.Now().Add(-2 * time.Hour) }
		issuer, err := auth.NewService(testSecret, time.Hour, auth.WithNow(past))
		require.NoError(t, err)
		token := tokenFor(t, issuer, "late", models.RoleViewer)

		req := httptest.NewRequest("GET", "/api/trips", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		middleware.Authenticate(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"token expired"}`, w.Body.String())
	})
}

func TestAuthMiddleware_Optional(t *testing.T) {
	authService, middleware := newAuth(t)

	t.Run("anonymous passes through", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/auth/register", nil)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			_, ok := GetUserFromContext(r.Context())
			assert.False(t, ok)
		})

		middleware.Optional(handler).ServeHTTP(w, req)
		assert.True(t, handlerCalled)
	})

	t.Run("token is validated when present", func(t *testing.T) {
		token := tokenFor(t, authService, "admin", models.RoleAdmin)
		req := httptest.NewRequest("POST", "/api/auth/register", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		var claims *models.Claims
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ = GetUserFromContext(r.Context())
		})

		middleware.Optional(handler).ServeHTTP(w, req)
		require.NotNil(t, claims)
		assert.Equal(t, models.RoleAdmin, claims.Role)
	})

	t.Run("bad token is rejected", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/auth/register", nil)
		req.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()

		middleware.Optional(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	authService, middleware := newAuth(t)

	t.Run("admin accessing manager endpoint", func(t *testing.T) {
		token := tokenFor(t, authService, "admin", models.RoleAdmin)

		req := httptest.NewRequest("DELETE", "/api/trips/abc", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		authHandler := middleware.Authenticate(middleware.RequireRole(models.RoleManager)(handler))
		authHandler.ServeHTTP(w, req)
		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("manager accessing admin endpoint", func(t *testing.T) {
		token := tokenFor(t, authService, "manager", models.RoleManager)

		req := httptest.NewRequest("POST", "/api/auth/register", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()

		handlerCalled := false
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		})

		authHandler := middleware.Authenticate(middleware.RequireRole(models.RoleAdmin)(handler))
		authHandler.ServeHTTP(w, req)
		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no claims in context", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/trips", nil)
		w := httptest.NewRecorder()

		middleware.RequireRole(models.RoleViewer)(http.NotFoundHandler()).ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthMiddleware_RequirePermission(t *testing.T) {
	authService, middleware := newAuth(t)

	cases := []struct {
		name    string
		role    models.Role
		action  string
		allowed bool
	}{
		{"admin manages users", models.RoleAdmin, models.ActionManageUsers, true},
		{"manager cannot manage users", models.RoleManager, models.ActionManageUsers, false},
		{"manager clears cache", models.RoleManager, models.ActionClearCache, true},
		{"operator checks out", models.RoleOperator, models.ActionOperateTrips, true},
		{"operator cannot edit trips", models.RoleOperator, models.ActionEditTrips, false},
		{"viewer sees dashboard", models.RoleViewer, models.ActionViewDashboard, true},
		{"viewer cannot check out", models.RoleViewer, models.ActionOperateTrips, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token := tokenFor(t, authService, "user", tc.role)

			req := httptest.NewRequest("GET", "/api/trips", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()

			handlerCalled := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
			})

			authHandler := middleware.Authenticate(middleware.RequirePermission(tc.action)(handler))
			authHandler.ServeHTTP(w, req)
			assert.Equal(t, tc.allowed, handlerCalled)
			if tc.allowed {
				assert.Equal(t, http.StatusOK, w.Code)
			} else {
				assert.Equal(t, http.StatusForbidden, w.Code)
			}
		})
	}
}

func TestGetUserFromContext(t *testing.T) {
	claims := &models.Claims{
		UserID:   "test-id",
		Username: "testuser",
		Role:     models.RoleAdmin,
	}

	ctx := context.WithValue(context.Background(), UserContextKey, claims)

	retrievedClaims, ok := GetUserFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, claims.UserID, retrievedClaims.UserID)
	assert.Equal(t, claims.Username, retrievedClaims.Username)
	assert.Equal(t, claims.Role, retrievedClaims.Role)

	_, ok = GetUserFromContext(context.Background())
	assert.False(t, ok)
}
