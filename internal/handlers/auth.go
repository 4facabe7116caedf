package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/auth"
	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/middleware"
	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	audit          audit.Auditor
	clock          clock.Clock
	log            logrus.FieldLogger
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, auditor audit.Auditor, c clock.Clock, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		audit:          auditor,
		clock:          c,
		log:            log,
	}
}

func authError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginReq models.LoginRequest
	if err := decodeJSON(r, &loginReq); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if loginReq.Username == "" || loginReq.Password == "" {
		badRequest(w, "username and password are required")
		return
	}

	user, err := h.userCollection.FindUserByUsername(r.Context(), loginReq.Username)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			h.log.WithError(err).Error("user lookup failed")
		}
		authError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !user.IsActive {
		authError(w, http.StatusUnauthorized, "account is deactivated")
		return
	}

	if !h.authService.CheckPassword(loginReq.Password, user.PasswordHash) {
		authError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		h.log.WithError(err).WithField("username", user.Username).Warn("last login not updated")
	}
	h.issueToken(w, http.StatusOK, user)
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := h.authService.GenerateToken(user)
	if err != nil {
		h.log.WithError(err).Error("token generation failed")
		authError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	writeJSON(w, status, models.LoginResponse{
		Token:     token,
		ExpiresAt: h.clock.Now().UTC().Add(h.authService.TokenTTL()),
		User:      *user,
	})
}

// Refresh issues a fresh token for the caller while the account is still
// active. Role changes take effect on the new token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		authError(w, http.StatusUnauthorized, "user context not found")
		return
	}
	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			h.log.WithError(err).Error("user lookup failed")
		}
		authError(w, http.StatusUnauthorized, "account no longer exists")
		return
	}
	if !user.IsActive {
		authError(w, http.StatusUnauthorized, "account is deactivated")
		return
	}
	h.issueToken(w, http.StatusOK, user)
}

// Register creates an operator account. Only admins may register users,
// except for the very first account, which becomes an admin.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerReq models.RegisterRequest
	if err := decodeJSON(r, &registerReq); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	claims, authenticated := middleware.GetUserFromContext(r.Context())
	bootstrap := false
	if !authenticated || claims.Role != models.RoleAdmin {
		count, err := h.userCollection.CountUsers(r.Context())
		if err != nil {
			h.log.WithError(err).Error("user count failed")
			authError(w, http.StatusServiceUnavailable, "user store unavailable")
			return
		}
		switch {
		case count > 0 && !authenticated:
			authError(w, http.StatusUnauthorized, "authorization header required")
			return
		case count > 0:
			authError(w, http.StatusForbidden, "insufficient permissions")
			return
		}
		registerReq.Role = models.RoleAdmin
		bootstrap = true
	}

	registerReq.Username = strings.TrimSpace(registerReq.Username)
	registerReq.Email = strings.TrimSpace(registerReq.Email)

	if err := h.authService.ValidateUsername(registerReq.Username); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.authService.ValidateEmail(registerReq.Email); err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := h.authService.ValidatePassword(registerReq.Password); err != nil {
		badRequest(w, err.Error())
		return
	}
	if !models.IsValidRole(registerReq.Role) {
		badRequest(w, "invalid role")
		return
	}

	if _, err := h.userCollection.FindUserByUsername(r.Context(), registerReq.Username); err == nil {
		authError(w, http.StatusConflict, "username already exists")
		return
	}
	if _, err := h.userCollection.FindUserByEmail(r.Context(), registerReq.Email); err == nil {
		authError(w, http.StatusConflict, "email already exists")
		return
	}

	passwordHash, err := h.authService.HashPassword(registerReq.Password)
	if err != nil {
		h.log.WithError(err).Error("password hashing failed")
		authError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	now := h.clock.Now().UTC()
	user := models.User{
		ID:           primitive.NewObjectID(),
		Username:     registerReq.Username,
		Email:        registerReq.Email,
		PasswordHash: passwordHash,
		Role:         registerReq.Role,
		FirstName:    registerReq.FirstName,
		LastName:     registerReq.LastName,
		IsActive:     true,
		Bootstrap:    bootstrap,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.userCollection.InsertUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicate) && bootstrap {
			// A concurrent registration took the bootstrap slot.
			authError(w, http.StatusConflict, "first account already registered, sign in to continue")
			return
		}
		if errors.Is(err, db.ErrDuplicate) {
			authError(w, http.StatusConflict, "username already exists")
			return
		}
		h.log.WithError(err).Error("user insert failed")
		authError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	h.audit.Record(r.Context(), audit.ActionUserRegister, user.Username, map[string]string{"role": string(user.Role)})

	h.issueToken(w, http.StatusCreated, &user)
}

// ListUsers returns every account ordered by username.
func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userCollection.FindUsers(r.Context())
	if err != nil {
		h.log.WithError(err).Error("user list failed")
		authError(w, http.StatusServiceUnavailable, "user store unavailable")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// DeleteUser removes an account. Admins cannot delete themselves.
func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		authError(w, http.StatusUnauthorized, "user context not found")
		return
	}
	id := chi.URLParam(r, "id")
	if id == claims.UserID {
		badRequest(w, "cannot delete your own account")
		return
	}
	user, err := h.userCollection.FindUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			authError(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.WithError(err).Error("user lookup failed")
		authError(w, http.StatusServiceUnavailable, "user store unavailable")
		return
	}
	if err := h.userCollection.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			authError(w, http.StatusNotFound, "user not found")
			return
		}
		h.log.WithError(err).Error("user delete failed")
		authError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	h.audit.Record(r.Context(), audit.ActionUserDelete, user.Username, map[string]string{"role": string(user.Role)})
	writeMessage(w, http.StatusOK, "User deleted.")
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		authError(w, http.StatusUnauthorized, "user context not found")
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		authError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile updates the current user's profile
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		authError(w, http.StatusUnauthorized, "user context not found")
		return
	}

	var updateReq struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	}
	if err := decodeJSON(r, &updateReq); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		authError(w, http.StatusNotFound, "user not found")
		return
	}

	if updateReq.FirstName != "" {
		user.FirstName = updateReq.FirstName
	}
	if updateReq.LastName != "" {
		user.LastName = updateReq.LastName
	}
	if updateReq.Email != "" {
		if err := h.authService.ValidateEmail(updateReq.Email); err != nil {
			badRequest(w, err.Error())
			return
		}
		existingUser, err := h.userCollection.FindUserByEmail(r.Context(), updateReq.Email)
		if err == nil && existingUser.ID.Hex() != claims.UserID {
			authError(w, http.StatusConflict, "email already exists")
			return
		}
		user.Email = updateReq.Email
	}
	user.UpdatedAt = h.clock.Now().UTC()

	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		h.log.WithError(err).Error("profile update failed")
		authError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	writeMessage(w, http.StatusOK, "Profile updated successfully")
}

// ChangePassword changes the current user's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		authError(w, http.StatusUnauthorized, "user context not found")
		return
	}

	var passwordReq struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &passwordReq); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}

	if passwordReq.CurrentPassword == "" || passwordReq.NewPassword == "" {
		badRequest(w, "current password and new password are required")
		return
	}
	if err := h.authService.ValidatePassword(passwordReq.NewPassword); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), claims.UserID)
	if err != nil {
		authError(w, http.StatusNotFound, "user not found")
		return
	}

	if !h.authService.CheckPassword(passwordReq.CurrentPassword, user.PasswordHash) {
		authError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	newPasswordHash, err := h.authService.HashPassword(passwordReq.NewPassword)
	if err != nil {
		authError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user.PasswordHash = newPasswordHash
	user.UpdatedAt = h.clock.Now().UTC()
	if err := h.userCollection.UpdateUser(r.Context(), claims.UserID, *user); err != nil {
		h.log.WithError(err).Error("password update failed")
		authError(w, http.StatusInternalServerError, "failed to update password")
		return
	}
	writeMessage(w, http.StatusOK, "Password changed successfully")
}
