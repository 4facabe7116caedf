package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Refill is a fuel and odometer logging event for a vehicle.
type Refill struct {
	ID           primitive.ObjectID  `json:"id" bson:"_id,omitempty"`
	VehiclePlate string              `json:"vehicle_plate" bson:"vehicle_plate"`
	DriverName   string              `json:"driver_name" bson:"driver_name"`
	Liters       *float64            `json:"liters" bson:"liters"`
	Odometer     *int64              `json:"odometer" bson:"odometer"`
	Timestamp    time.Time           `json:"timestamp" bson:"timestamp"`
	Note         string              `json:"note,omitempty" bson:"note,omitempty"`
	TripID       *primitive.ObjectID `json:"trip_id,omitempty" bson:"trip_id,omitempty"`
	CreatedBy    string              `json:"created_by,omitempty" bson:"created_by,omitempty"`
	CreatedAt    time.Time           `json:"created_at" bson:"created_at"`
}

// RefillRequest records a refill. Timestamp defaults to now; a value without
// zone is read as UTC.
type RefillRequest struct {
	Plate     string   `json:"plate"`
	Driver    string   `json:"driver"`
	Liters    *float64 `json:"liters"`
	Odometer  *int64   `json:"odometer,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Note      string   `json:"note,omitempty"`
}

// RefillUpdate corrects a recorded refill.
type RefillUpdate struct {
	DriverName *string    `json:"driver_name,omitempty"`
	Liters     *float64   `json:"liters,omitempty"`
	Odometer   *int64     `json:"odometer,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	Note       *string    `json:"note,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u RefillUpdate) IsEmpty() bool {
	return u.DriverName == nil && u.Liters == nil && u.Odometer == nil && u.Timestamp == nil && u.Note == nil
}

// RefillPage is one page of a vehicle's refills, newest first.
type RefillPage struct {
	Items    []Refill `json:"items"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// Series is a labelled chart series.
type Series struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

// RefillSummary totals liters per vehicle.
type RefillSummary struct {
	Month         string `json:"month"`
	PerVehicle    Series `json:"per_vehicle_total"`
	PerVehicleMon Series `json:"per_vehicle_month"`
}
