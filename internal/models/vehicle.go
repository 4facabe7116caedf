package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VehicleStatus is the operational state of a registered vehicle.
type VehicleStatus string

const (
	VehicleActive      VehicleStatus = "active"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleInactive    VehicleStatus = "inactive"
)

// IsValidVehicleStatus checks if a vehicle status is known.
func IsValidVehicleStatus(s VehicleStatus) bool {
	switch s {
	case VehicleActive, VehicleMaintenance, VehicleInactive:
		return true
	default:
		return false
	}
}

// Vehicle is a registered fleet vehicle keyed by its normalized plate.
type Vehicle struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Plate              string             `bson:"plate" json:"plate"`
	Category           string             `bson:"category,omitempty" json:"category,omitempty"`
	Visible            bool               `bson:"visible" json:"visible"`
	Status             VehicleStatus      `bson:"status" json:"status"`
	TotalTrips         int64              `bson:"total_trips" json:"total_trips"`
	LastOdometer       *int64             `bson:"last_odometer,omitempty" json:"last_odometer,omitempty"`
	EfficiencyOverride *float64           `bson:"efficiency_override,omitempty" json:"efficiency_override,omitempty"` // km/l
	Documents          []Document         `bson:"documents,omitempty" json:"documents,omitempty"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}

// VehicleRequest registers a vehicle.
type VehicleRequest struct {
	Plate              string   `json:"plate"`
	Category           string   `json:"category"`
	EfficiencyOverride *float64 `json:"efficiency_override,omitempty"`
}

// VehicleUpdate changes descriptive attributes. ClearOverride removes the
// manual efficiency so the computed value becomes primary again.
type VehicleUpdate struct {
	Category           *string  `json:"category,omitempty"`
	Visible            *bool    `json:"visible,omitempty"`
	EfficiencyOverride *float64 `json:"efficiency_override,omitempty"`
	ClearOverride      bool     `json:"clear_override,omitempty"`
	LastOdometer       *int64   `json:"last_odometer,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u VehicleUpdate) IsEmpty() bool {
	return u.Category == nil && u.Visible == nil && u.EfficiencyOverride == nil &&
		!u.ClearOverride && u.LastOdometer == nil
}
