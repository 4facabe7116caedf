package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret-key-0123456789"

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	service, err := NewService(testSecret, time.Hour, opts...)
	require.NoError(t, err)
	return service
}

func testUser() *models.User {
	return &models.User{
		ID:       primitive.NewObjectID(),
		Username: "dispatcher",
		Role:     models.RoleOperator,
	}
}

func TestNewService(t *testing.T) {
	service := newTestService(t)
	assert.Equal(t, []byte(testSecret), service.jwtSecret)
	assert.Equal(t, time.Hour, service.TokenTTL())

	_, err := NewService("short", time.Hour)
	assert.Error(t, err)
	_, err = NewService(testSecret, 0)
	assert.Error(t, err)
}

func TestService_HashAndCheckPassword(t *testing.T) {
	service := newTestService(t)

	hash, err := service.HashPassword("testpassword123")
	require.NoError(t, err)
	assert.NotEqual(t, "testpassword123", hash)

	assert.True(t, service.CheckPassword("testpassword123", hash))
	assert.False(t, service.CheckPassword("wrongpassword", hash))
}

func TestService_ValidateToken(t *testing.T) {
	service := newTestService(t)
	user := testUser()

	token, err := service.GenerateToken(user)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, user.Username, claims.Username)
	assert.Equal(t, user.Role, claims.Role)

	_, err = service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)

	_, err = service.ValidateToken("invalid-token")
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ValidateToken_Expired(t *testing.T) {
	issued := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	now := issued
	service := newTestService(t, WithNow(func() time.Time { return now }))

	token, err := service.GenerateToken(testUser())
	require.NoError(t, err)

	now = issued.Add(2 * time.Hour)
	_, err = service.ValidateToken(token)
	assert.Equal(t, ErrExpiredToken, err)
}

func TestService_ValidateToken_RejectsForeignTokens(t *testing.T) {
	service := newTestService(t)

	other, err := NewService("another-secret-key-0123456789", time.Hour)
	require.NoError(t, err)
	token, err := other.GenerateToken(testUser())
	require.NoError(t, err)
	_, err = service.ValidateToken(token)
	assert.Equal(t, ErrInvalidToken, err)

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "x", "username": "x", "role": "admin", "iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := foreign.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = service.ValidateToken(signed)
	assert.Equal(t, ErrInvalidToken, err)

	badRole := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "x", "username": "x", "role": "root", "iss": Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err = badRole.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = service.ValidateToken(signed)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ExtractTokenFromHeader(t *testing.T) {
	service := newTestService(t)

	extracted, err := service.ExtractTokenFromHeader("Bearer valid-token")
	require.NoError(t, err)
	assert.Equal(t, "valid-token", extracted)

	for _, header := range []string{"", "InvalidFormat", "Bearer ", "Basic abc", "Bearer a b"} {
		_, err := service.ExtractTokenFromHeader(header)
		assert.Equal(t, ErrInvalidToken, err, header)
	}
}

func TestService_ValidatePassword(t *testing.T) {
	service := newTestService(t)
	assert.NoError(t, service.ValidatePassword("validpassword123"))

	err := service.ValidatePassword("short")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8 characters")
}

func TestService_ValidateEmail(t *testing.T) {
	service := newTestService(t)
	assert.NoError(t, service.ValidateEmail("ops@example.com"))

	for _, email := range []string{"testexample.com", "test@", "test", "@example.com"} {
		err := service.ValidateEmail(email)
		require.Error(t, err, email)
		assert.Contains(t, err.Error(), "invalid email format")
	}
}

func TestService_ValidateUsername(t *testing.T) {
	service := newTestService(t)
	assert.NoError(t, service.ValidateUsername("dispatcher"))
	assert.Error(t, service.ValidateUsername("ab"))
	assert.Error(t, service.ValidateUsername(string(make([]byte, 51))))
}
