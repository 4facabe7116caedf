package db

import (
	"context"
	"io"
	"time"

	"github.com/ukydev/fleet-logbook/internal/clock"
	"github.com/ukydev/fleet-logbook/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TripFilter selects trips for history listings and reports.
type TripFilter struct {
	Period *clock.Range // departure_time within
	Plate  string       // case-insensitive substring
	Driver string       // case-insensitive substring
}

// TripCollection defines the interface for trip persistence.
// InsertTrip must fail with ErrDuplicate when the plate already has an
// in-progress trip.
type TripCollection interface {
	InsertTrip(ctx context.Context, trip *models.Trip) error
	FindTripByID(ctx context.Context, id primitive.ObjectID) (*models.Trip, error)
	FindActiveTrip(ctx context.Context, plate string) (*models.Trip, error)
	FindActiveTrips(ctx context.Context) ([]models.Trip, error)
	FinishTrip(ctx context.Context, id primitive.ObjectID, arrival time.Time, arrivalClock string) error
	ReplaceTrip(ctx context.Context, trip *models.Trip) error
	DeleteTrip(ctx context.Context, id primitive.ObjectID) error
	FindTrips(ctx context.Context, filter TripFilter, skip, limit int64) ([]models.Trip, int64, error)
	FindTripsBetween(ctx context.Context, period clock.Range, limit int64) ([]models.Trip, error)
	CountTripsBetween(ctx context.Context, period clock.Range) (int64, error)
	FindRecentTrips(ctx context.Context, limit int64) ([]models.Trip, error)
	CountTripsPerEntity(ctx context.Context) (drivers, vehicles map[string]int64, err error)
}

// DriverCollection defines the interface for driver registry operations.
type DriverCollection interface {
	IncrementDriverTrips(ctx context.Context, name string) error
	DecrementDriverTrips(ctx context.Context, name string) error
	InsertDriver(ctx context.Context, driver *models.Driver) error
	FindDrivers(ctx context.Context) ([]models.Driver, error)
	FindDriverByID(ctx context.Context, id primitive.ObjectID) (*models.Driver, error)
	FindDriverByName(ctx context.Context, name string) (*models.Driver, error)
	UpdateDriver(ctx context.Context, id primitive.ObjectID, update models.DriverUpdate) (*models.Driver, error)
	SetDriverStatus(ctx context.Context, id primitive.ObjectID, status models.DriverStatus) error
	SetDriverTrips(ctx context.Context, name string, total int64) error
	AddDriverDocument(ctx context.Context, id primitive.ObjectID, doc models.Document) error
	DeleteDriver(ctx context.Context, id primitive.ObjectID) error
}

// VehicleCollection defines the interface for vehicle registry operations.
type VehicleCollection interface {
	IncrementVehicleTrips(ctx context.Context, plate string) error
	InsertVehicle(ctx context.Context, vehicle *models.Vehicle) error
	FindVehicles(ctx context.Context) ([]models.Vehicle, error)
	FindVehicleByPlate(ctx context.Context, plate string) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, plate string, update models.VehicleUpdate) (*models.Vehicle, error)
	SetVehicleStatus(ctx context.Context, plate string, status models.VehicleStatus) error
	RaiseOdometer(ctx context.Context, plate string, odometer int64) error
	SetVehicleTrips(ctx context.Context, plate string, total int64) error
	AddVehicleDocument(ctx context.Context, plate string, doc models.Document) error
	DeleteVehicle(ctx context.Context, plate string) error
}

// RefillCollection defines the interface for refill persistence.
type RefillCollection interface {
	InsertRefill(ctx context.Context, refill *models.Refill) error
	FindRefillByID(ctx context.Context, id primitive.ObjectID) (*models.Refill, error)
	FindRefillsByPlate(ctx context.Context, plate string) ([]models.Refill, error) // timestamp ascending
	FindRefillsPage(ctx context.Context, plate string, skip, limit int64) ([]models.Refill, int64, error)
	FindRefills(ctx context.Context, plate string, period *clock.Range, limit int64) ([]models.Refill, error)
	ReplaceRefill(ctx context.Context, refill *models.Refill) error
	DeleteRefill(ctx context.Context, id primitive.ObjectID) error
	SumLitersByPlate(ctx context.Context, period *clock.Range) (map[string]float64, error)
}

// AuditCollection persists audit entries.
type AuditCollection interface {
	InsertAudit(ctx context.Context, entry *models.AuditEntry) error
	FindAudit(ctx context.Context, action string, skip, limit int64) ([]models.AuditEntry, int64, error)
}

// BlobStore keeps document attachments.
type BlobStore interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (models.Document, error)
	Open(ctx context.Context, id primitive.ObjectID) (io.ReadCloser, *models.Document, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}
