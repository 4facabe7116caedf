package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DriverStatus tells whether a driver holds a valid credential.
type DriverStatus string

const (
	DriverCredentialed    DriverStatus = "credentialed"
	DriverNotCredentialed DriverStatus = "not_credentialed"
)

// IsValidDriverStatus checks if a driver status is known.
func IsValidDriverStatus(s DriverStatus) bool {
	return s == DriverCredentialed || s == DriverNotCredentialed
}

// Driver is a registered driver keyed by normalized name.
type Driver struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name       string             `bson:"name" json:"name"`
	Role       string             `bson:"role,omitempty" json:"role,omitempty"`
	Company    string             `bson:"company,omitempty" json:"company,omitempty"`
	Status     DriverStatus       `bson:"status" json:"status"`
	TotalTrips int64              `bson:"total_trips" json:"total_trips"`
	Documents  []Document         `bson:"documents,omitempty" json:"documents,omitempty"`
	CreatedAt  time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}

// DriverRequest registers a driver.
type DriverRequest struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Company string `json:"company"`
}

// DriverUpdate changes descriptive attributes.
type DriverUpdate struct {
	Role    *string `json:"role,omitempty"`
	Company *string `json:"company,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u DriverUpdate) IsEmpty() bool {
	return u.Role == nil && u.Company == nil
}

// Document is a file attached to a driver or vehicle, stored in the blob store.
type Document struct {
	ID          primitive.ObjectID `bson:"id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Kind        string             `bson:"kind,omitempty" json:"kind,omitempty"` // e.g. "license", "registration"
	ContentType string             `bson:"content_type" json:"content_type"`
	Size        int64              `bson:"size" json:"size"`
	UploadedAt  time.Time          `bson:"uploaded_at" json:"uploaded_at"`
}
