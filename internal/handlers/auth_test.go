package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-logbook/internal/auth"
	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/middleware"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret-key-0123456789"

// MockUserCollection is a mock implementation of UserCollection
type MockUserCollection struct {
	mock.Mock
}

func (m *MockUserCollection) InsertUser(ctx context.Context, user models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserCollection) FindUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *MockUserCollection) CountUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserCollection) UpdateUser(ctx context.Context, id string, user models.User) error {
	args := m.Called(ctx, id, user)
	return args.Error(0)
}

func (m *MockUserCollection) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newAuthHandler(t *testing.T, users db.UserCollection) (*AuthHandler, *auth.Service, *testutil.AuditLog) {
	t.Helper()
	authService, err := auth.NewService(testSecret, time.Hour)
	require.NoError(t, err)
	log, _ := logtest.NewNullLogger()
	audits := &testutil.AuditLog{}
	return NewAuthHandler(authService, users, audits, clock.Fixed(testNow), log), authService, audits
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withClaims(req *http.Request, userID, username string, role models.Role) *http.Request {
	claims := &models.Claims{UserID: userID, Username: username, Role: role}
	return req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("successful login", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler, authService, _ := newAuthHandler(t, mockUserCollection)

		passwordHash, err := authService.HashPassword("password123")
		require.NoError(t, err)
		user := &models.User{
			ID:           primitive.NewObjectID(),
			Username:     "testuser",
			Email:        "test@example.com",
			PasswordHash: passwordHash,
			Role:         models.RoleOperator,
			IsActive:     true,
		}

		mockUserCollection.On("FindUserByUsername", mock.Anything, "testuser").Return(user, nil)
		mockUserCollection.On("UpdateLastLogin", mock.Anything, user.ID.Hex()).Return(nil)

		req := jsonRequest(t, "POST", "/api/auth/login", models.LoginRequest{Username: "testuser", Password: "password123"})
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var response models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.NotEmpty(t, response.Token)
		assert.True(t, response.ExpiresAt.Equal(testNow.Add(time.Hour)))
		assert.Equal(t, "testuser", response.User.Username)
		assert.NotContains(t, w.Body.String(), passwordHash)

		claims, err := authService.ValidateToken(response.Token)
		require.NoError(t, err)
		assert.Equal(t, models.RoleOperator, claims.Role)
		mockUserCollection.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler, authService, _ := newAuthHandler(t, mockUserCollection)

		passwordHash, _ := authService.HashPassword("password123")
		user := &models.User{ID: primitive.NewObjectID(), Username: "testuser", PasswordHash: passwordHash, IsActive: true}
		mockUserCollection.On("FindUserByUsername", mock.Anything, "testuser").Return(user, nil)

		req := jsonRequest(t, "POST", "/api/auth/login", models.LoginRequest{Username: "testuser", Password: "wrongpassword"})
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		mockUserCollection.AssertNotCalled(t, "UpdateLastLogin", mock.Anything, mock.Anything)
	})

	t.Run("unknown user", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler, _, _ := newAuthHandler(t, mockUserCollection)
		mockUserCollection.On("FindUserByUsername", mock.Anything, "ghost").Return(nil, db.ErrNotFound)

		req := jsonRequest(t, "POST", "/api/auth/login", models.LoginRequest{Username: "ghost", Password: "password123"})
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"invalid credentials"}`, w.Body.String())
	})

	t.Run("inactive user", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler, authService, _ := newAuthHandler(t, mockUserCollection)

		passwordHash, _ := authService.HashPassword("password123")
		user := &models.User{ID: primitive.NewObjectID(), Username: "testuser", PasswordHash: passwordHash, IsActive: false}
		mockUserCollection.On("FindUserByUsername", mock.Anything, "testuser").Return(user, nil)

		req := jsonRequest(t, "POST", "/api/auth/login", models.LoginRequest{Username: "testuser", Password: "password123"})
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		handler, _, _ := newAuthHandler(t, new(MockUserCollection))

		req := jsonRequest(t, "POST", "/api/auth/login", models.LoginRequest{Username: "testuser"})
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		handler, _, _ := newAuthHandler(t, new(MockUserCollection))

		req := httptest.NewRequest("POST", "/api/auth/login", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		handler.Login(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthHandler_Register(t *testing.T) {
	newUser := models.RegisterRequest{
		Username: "newuser",
		Email:    "new@example.com",
		Password: "password123",
		Role:     models.RoleOperator,
	}

	t.Run("first account becomes admin", func(t *testing.T) {
		store := testutil.NewMemStore()
		handler, _, audits := newAuthHandler(t, store)

		w := httptest.NewRecorder()
		handler.Register(w, jsonRequest(t, "POST", "/api/auth/register", newUser))

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var response models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, models.RoleAdmin, response.User.Role)
		assert.True(t, response.User.CreatedAt.Equal(testNow))

		stored, err := store.FindUserByUsername(context.Background(), "newuser")
		require.NoError(t, err)
		assert.NotEqual(t, "password123", stored.PasswordHash)
		assert.True(t, stored.Bootstrap)
		assert.Equal(t, []string{"user.register"}, audits.Actions())
	})

	t.Run("concurrent first registrations create one admin", func(t *testing.T) {
		store := testutil.NewMemStore()
		handler, _, _ := newAuthHandler(t, store)

		const workers = 8
		codes := make(chan int, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				body := models.RegisterRequest{
					Username: fmt.Sprintf("first%d", i),
					Email:    fmt.Sprintf("first%d@example.com", i),
					Password: "password123",
				}
				w := httptest.NewRecorder()
				handler.Register(w, jsonRequest(t, "POST", "/api/auth/register", body))
				codes <- w.Code
			}(i)
		}
		wg.Wait()
		close(codes)

		created := 0
		for code := range codes {
			if code == http.StatusCreated {
				created++
			}
		}
		assert.Equal(t, 1, created)
		n, err := store.CountUsers(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("lost bootstrap slot is a conflict", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler, _, audits := newAuthHandler(t, mockUserCollection)
		mockUserCollection.On("CountUsers", mock.Anything).Return(int64(0), nil)
		mockUserCollection.On("FindUserByUsername", mock.Anything, "newuser").Return(nil, db.ErrNotFound)
		mockUserCollection.On("FindUserByEmail", mock.Anything, "new@example.com").Return(nil, db.ErrNotFound)
		mockUserCollection.On("InsertUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
			return u.Bootstrap && u.Role == models.RoleAdmin
		})).Return(fmt.Errorf("insert user: %w", db.ErrDuplicate))

		w := httptest.NewRecorder()
		handler.Register(w, jsonRequest(t, "POST", "/api/auth/register", newUser))

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "first account already registered")
		assert.Empty(t, audits.Actions())
		mockUserCollection.AssertExpectations(t)
	})

	t.Run("admin registers operator", func(t *testing.T) {
		store := testutil.NewMemStore()
		require.NoError(t, store.InsertUser(context.Background(), models.User{ID: primitive.NewObjectID(), Username: "boss", Email: "boss@example.com"}))
		handler, _, _ := newAuthHandler(t, store)

		req := withClaims(jsonRequest(t, "POST", "/api/auth/register", newUser), "x", "boss", models.RoleAdmin)
		w := httptest.NewRecorder()
		handler.Register(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		var response models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, models.RoleOperator, response.User.Role)

		stored, err := store.FindUserByUsername(context.Background(), "newuser")
		require.NoError(t, err)
		assert.False(t, stored.Bootstrap)
	})

	t.Run("manager is forbidden once users exist", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler, _, _ := newAuthHandler(t, mockUserCollection)
		mockUserCollection.On("CountUsers", mock.Anything).Return(int64(3), nil)

		req := withClaims(jsonRequest(t, "POST", "/api/auth/register", newUser), "x", "mgr", models.RoleManager)
		w := httptest.NewRecorder()
		handler.Register(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		mockUserCollection.AssertNotCalled(t, "InsertUser", mock.Anything, mock.Anything)
	})

	t.Run("anonymous is rejected once users exist", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler, _, _ := newAuthHandler(t, mockUserCollection)
		mockUserCollection.On("CountUsers", mock.Anything).Return(int64(1), nil)

		w := httptest.NewRecorder()
		handler.Register(w, jsonRequest(t, "POST", "/api/auth/register", newUser))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("duplicate username", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler, _, _ := newAuthHandler(t, mockUserCollection)
		mockUserCollection.On("FindUserByUsername", mock.Anything, "newuser").Return(&models.User{Username: "newuser"}, nil)

		req := withClaims(jsonRequest(t, "POST", "/api/auth/register", newUser), "x", "boss", models.RoleAdmin)
		w := httptest.NewRecorder()
		handler.Register(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid input", func(t *testing.T) {
		cases := map[string]models.RegisterRequest{
			"short username": {Username: "ab", Email: "a@example.com", Password: "password123", Role: models.RoleViewer},
			"bad email":      {Username: "abc", Email: "nope", Password: "password123", Role: models.RoleViewer},
			"short password": {Username: "abc", Email: "a@example.com", Password: "short", Role: models.RoleViewer},
			"unknown role":   {Username: "abc", Email: "a@example.com", Password: "password123", Role: "owner"},
		}
		for name, body := range cases {
			t.Run(name, func(t *testing.T) {
				handler, _, _ := newAuthHandler(t, new(MockUserCollection))
				req := withClaims(jsonRequest(t, "POST", "/api/auth/register", body), "x", "boss", models.RoleAdmin)
				w := httptest.NewRecorder()
				handler.Register(w, req)
				assert.Equal(t, http.StatusBadRequest, w.Code)
			})
		}
	})
}

func TestAuthHandler_GetProfile(t *testing.T) {
	t.Run("existing user", func(t *testing.T) {
		mockUserCollection := new(MockUserCollection)
		handler, _, _ := newAuthHandler(t, mockUserCollection)

		id := primitive.NewObjectID()
		mockUserCollection.On("FindUserByID", mock.Anything, id.Hex()).Return(&models.User{ID: id, Username: "testuser"}, nil)

		req := withClaims(httptest.NewRequest("GET", "/api/auth/profile", nil), id.Hex(), "testuser", models.RoleViewer)
		w := httptest.NewRecorder()
		handler.GetProfile(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"username":"testuser"`)
	})

	t.Run("no claims", func(t *testing.T) {
		handler, _, _ := newAuthHandler(t, new(MockUserCollection))
		w := httptest.NewRecorder()
		handler.GetProfile(w, httptest.NewRequest("GET", "/api/auth/profile", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthHandler_UpdateProfile(t *testing.T) {
	mockUserCollection := new(MockUserCollection)
	handler, _, _ := newAuthHandler(t, mockUserCollection)

	id := primitive.NewObjectID()
	mockUserCollection.On("FindUserByID", mock.Anything, id.Hex()).Return(&models.User{ID: id, Username: "testuser", Email: "old@example.com"}, nil)
	mockUserCollection.On("FindUserByEmail", mock.Anything, "taken@example.com").Return(&models.User{ID: primitive.NewObjectID()}, nil)

	req := withClaims(jsonRequest(t, "PUT", "/api/auth/profile", map[string]string{"email": "taken@example.com"}), id.Hex(), "testuser", models.RoleViewer)
	w := httptest.NewRecorder()
	handler.UpdateProfile(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	mockUserCollection.On("UpdateUser", mock.Anything, id.Hex(), mock.MatchedBy(func(u models.User) bool {
		return u.FirstName == "Ana" && u.UpdatedAt.Equal(testNow)
	})).Return(nil)

	req = withClaims(jsonRequest(t, "PUT", "/api/auth/profile", map[string]string{"first_name": "Ana"}), id.Hex(), "testuser", models.RoleViewer)
	w = httptest.NewRecorder()
	handler.UpdateProfile(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	mockUserCollection.AssertExpectations(t)
}

func TestAuthHandler_ChangePassword(t *testing.T) {
	mockUserCollection := new(MockUserCollection)
	handler, authService, _ := newAuthHandler(t, mockUserCollection)

	id := primitive.NewObjectID()
	hash, err := authService.HashPassword("password123")
	require.NoError(t, err)
	mockUserCollection.On("FindUserByID", mock.Anything, id.Hex()).Return(&models.User{ID: id, PasswordHash: hash}, nil)

	body := map[string]string{"current_password": "wrong-password", "new_password": "newpassword123"}
	req := withClaims(jsonRequest(t, "POST", "/api/auth/password", body), id.Hex(), "testuser", models.RoleViewer)
	w := httptest.NewRecorder()
	handler.ChangePassword(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	mockUserCollection.On("UpdateUser", mock.Anything, id.Hex(), mock.MatchedBy(func(u models.User) bool {
		return authService.CheckPassword("newpassword123", u.PasswordHash)
	})).Return(nil)

	body["current_password"] = "password123"
	req = withClaims(jsonRequest(t, "POST", "/api/auth/password", body), id.Hex(), "testuser", models.RoleViewer)
	w = httptest.NewRecorder()
	handler.ChangePassword(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	mockUserCollection.AssertExpectations(t)
}

func TestAuthHandler_Refresh(t *testing.T) {
	store := testutil.NewMemStore()
	handler, authService, _ := newAuthHandler(t, store)
	active := models.User{ID: primitive.NewObjectID(), Username: "ana", Email: "ana@example.com", Role: models.RoleManager, IsActive: true}
	inactive := models.User{ID: primitive.NewObjectID(), Username: "bia", Email: "bia@example.com", Role: models.RoleViewer}
	require.NoError(t, store.InsertUser(context.Background(), active))
	require.NoError(t, store.InsertUser(context.Background(), inactive))

	t.Run("active account gets a new token with its current role", func(t *testing.T) {
		req := withClaims(httptest.NewRequest("POST", "/api/auth/refresh", nil), active.ID.Hex(), "ana", models.RoleViewer)
		w := httptest.NewRecorder()
		handler.Refresh(w, req)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var response models.LoginResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		claims, err := authService.ValidateToken(response.Token)
		require.NoError(t, err)
		assert.Equal(t, models.RoleManager, claims.Role)
	})

	t.Run("deactivated account", func(t *testing.T) {
		req := withClaims(httptest.NewRequest("POST", "/api/auth/refresh", nil), inactive.ID.Hex(), "bia", models.RoleViewer)
		w := httptest.NewRecorder()
		handler.Refresh(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("deleted account", func(t *testing.T) {
		req := withClaims(httptest.NewRequest("POST", "/api/auth/refresh", nil), primitive.NewObjectID().Hex(), "gone", models.RoleViewer)
		w := httptest.NewRecorder()
		handler.Refresh(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthHandler_ListAndDeleteUsers(t *testing.T) {
	store := testutil.NewMemStore()
	handler, _, audits := newAuthHandler(t, store)
	admin := models.User{ID: primitive.NewObjectID(), Username: "admin", Email: "admin@example.com", Role: models.RoleAdmin, IsActive: true}
	op := models.User{ID: primitive.NewObjectID(), Username: "op", Email: "op@example.com", Role: models.RoleOperator, IsActive: true}
	require.NoError(t, store.InsertUser(context.Background(), admin))
	require.NoError(t, store.InsertUser(context.Background(), op))

	r := chi.NewRouter()
	r.Get("/api/users", handler.ListUsers)
	r.Delete("/api/users/{id}", handler.DeleteUser)
	do := func(method, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, withClaims(httptest.NewRequest(method, target, nil), admin.ID.Hex(), "admin", models.RoleAdmin))
		return w
	}

	w := do("GET", "/api/users")
	require.Equal(t, http.StatusOK, w.Code)
	var users []models.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
	assert.NotContains(t, w.Body.String(), "password_hash")

	assert.Equal(t, http.StatusBadRequest, do("DELETE", "/api/users/"+admin.ID.Hex()).Code)
	assert.Equal(t, http.StatusOK, do("DELETE", "/api/users/"+op.ID.Hex()).Code)
	assert.Equal(t, http.StatusNotFound, do("DELETE", "/api/users/"+op.ID.Hex()).Code)
	assert.Equal(t, []string{"user.delete"}, audits.Actions())

	n, err := store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
