package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TripStatus is the lifecycle state of a trip.
type TripStatus string

const (
	TripInProgress TripStatus = "in_progress"
	TripFinished   TripStatus = "finished"
)

// IsValidTripStatus checks if a status is known.
func IsValidTripStatus(s TripStatus) bool {
	return s == TripInProgress || s == TripFinished
}

// Trip is one checkout-to-return cycle of a vehicle.
type Trip struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	VehiclePlate     string             `json:"vehicle_plate" bson:"vehicle_plate"`
	DriverName       string             `json:"driver_name" bson:"driver_name"`
	RequesterName    string             `json:"requester_name" bson:"requester_name"`
	RouteDescription string             `json:"route_description" bson:"route_description"`
	Status           TripStatus         `json:"status" bson:"status"`
	DepartureTime    time.Time          `json:"departure_time" bson:"departure_time"`
	ArrivalTime      *time.Time         `json:"arrival_time" bson:"arrival_time"`
	DepartureClock   string             `json:"departure_clock" bson:"departure_clock"` // local HH:MM
	ArrivalClock     string             `json:"arrival_clock" bson:"arrival_clock"`
	CreatedBy        string             `json:"created_by,omitempty" bson:"created_by,omitempty"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
}

// InProgress reports whether the vehicle is still out.
func (t Trip) InProgress() bool {
	return t.Status == TripInProgress
}

// Duration returns arrival minus departure for finished trips.
func (t Trip) Duration() (time.Duration, bool) {
	if t.Status != TripFinished || t.ArrivalTime == nil {
		return 0, false
	}
	d := t.ArrivalTime.Sub(t.DepartureTime)
	if d < 0 {
		return 0, false
	}
	return d, true
}

// TripSummary is the row shown on the "vehicles out" board.
type TripSummary struct {
	ID             primitive.ObjectID `json:"id"`
	VehiclePlate   string             `json:"vehicle_plate"`
	DriverName     string             `json:"driver_name"`
	DepartureTime  time.Time          `json:"departure_time"`
	DepartureClock string             `json:"departure_clock"`
}

// Summary projects the trip into a TripSummary.
func (t Trip) Summary() TripSummary {
	return TripSummary{
		ID:             t.ID,
		VehiclePlate:   t.VehiclePlate,
		DriverName:     t.DriverName,
		DepartureTime:  t.DepartureTime,
		DepartureClock: t.DepartureClock,
	}
}

// CheckoutRequest represents a vehicle leaving the yard.
type CheckoutRequest struct {
	Plate     string `json:"plate"`
	Driver    string `json:"driver"`
	Requester string `json:"requester"`
	Route     string `json:"route"`
	Time      string `json:"time,omitempty"` // optional local HH:MM
}

// ReturnRequest represents a vehicle coming back, optionally with a refill.
type ReturnRequest struct {
	Plate    string   `json:"plate"`
	Time     string   `json:"time,omitempty"`
	Liters   *float64 `json:"liters,omitempty"`
	Odometer *int64   `json:"odometer,omitempty"`
}

// CancelRequest drops the open trip of a plate.
type CancelRequest struct {
	Plate string `json:"plate"`
}

// TripUpdate is an administrative correction. Nil fields are left unchanged.
type TripUpdate struct {
	DriverName       *string     `json:"driver_name,omitempty"`
	RequesterName    *string     `json:"requester_name,omitempty"`
	RouteDescription *string     `json:"route_description,omitempty"`
	Status           *TripStatus `json:"status,omitempty"`
	DepartureTime    *time.Time  `json:"departure_time,omitempty"`
	ArrivalTime      *time.Time  `json:"arrival_time,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u TripUpdate) IsEmpty() bool {
	return u.DriverName == nil && u.RequesterName == nil && u.RouteDescription == nil &&
		u.Status == nil && u.DepartureTime == nil && u.ArrivalTime == nil
}

// TripHistoryFilter narrows the trip history listing.
type TripHistoryFilter struct {
	Month  string `json:"month,omitempty"` // "3" or "2025-03"
	Year   int    `json:"year,omitempty"`
	Date   string `json:"date,omitempty"` // DD/MM/YYYY
	Plate  string `json:"plate,omitempty"`
	Driver string `json:"driver,omitempty"`
}

// TripPage is one page of trip history.
type TripPage struct {
	Items    []Trip `json:"items"`
	Total    int64  `json:"total"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}
