package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents user roles in the system
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// User is an operator account allowed to use the logbook
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	// Bootstrap marks the account created while the user store was empty.
	// A unique index allows only one such account at a time.
	Bootstrap    bool               `bson:"bootstrap,omitempty" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents a user registration request
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleOperator, RoleViewer:
		return true
	default:
		return false
	}
}

// Actions checked by HasPermission.
const (
	ActionViewTrips      = "view_trips"
	ActionOperateTrips   = "operate_trips" // checkout, return, cancel
	ActionEditTrips      = "edit_trips"
	ActionRecordRefill   = "record_refill"
	ActionEditRefills    = "edit_refills"
	ActionViewRegistry   = "view_registry"
	ActionManageRegistry = "manage_registry"
	ActionViewDashboard  = "view_dashboard"
	ActionExportReports  = "export_reports"
	ActionClearCache     = "clear_cache"
	ActionViewAudit      = "view_audit"
	ActionManageUsers    = "manage_users"
)

// HasPermission checks if a user has permission for a specific action
func (u *User) HasPermission(action string) bool {
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleManager:
		return action != ActionManageUsers
	case RoleOperator:
		return action == ActionViewTrips || action == ActionOperateTrips ||
			action == ActionRecordRefill || action == ActionViewRegistry ||
			action == ActionViewDashboard
	case RoleViewer:
		return action == ActionViewTrips || action == ActionViewRegistry ||
			action == ActionViewDashboard || action == ActionExportReports
	default:
		return false
	}
}
