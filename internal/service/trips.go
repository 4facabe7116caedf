package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/normalize"
)

// TripService runs the checkout/return lifecycle.
type TripService struct {
	d Deps
}

// NewTripService creates a TripService.
func NewTripService(d Deps) *TripService {
	return &TripService{d: d}
}

// Checkout opens a trip for a vehicle. Only one trip per plate may be in
// progress; the store rejects a second one even under concurrent requests.
func (s *TripService) Checkout(ctx context.Context, req models.CheckoutRequest) (Result, error) {
	plate := normalize.Plate(req.Plate)
	driver := normalize.Name(req.Driver)
	if plate == "" {
		return Result{}, validationf("plate is required")
	}
	if driver == "" {
		return Result{}, validationf("driver is required")
	}
	requester := normalize.Name(req.Requester)
	if requester == "" {
		return Result{}, validationf("requester is required")
	}
	route := normalize.Text(req.Route)
	if route == "" {
		return Result{}, validationf("route is required")
	}

	if _, err := s.d.Trips.FindActiveTrip(ctx, plate); err == nil {
		return Result{}, conflictf("vehicle %s already has a trip in progress", plate)
	} else if !errors.Is(err, db.ErrNotFound) {
		return Result{}, storeError("trip", err)
	}

	now := s.d.Clock.Now()
	departure, clockText := s.d.Zone.ApplyTimeOfDay(now, req.Time)
	trip := &models.Trip{
		VehiclePlate:     plate,
		DriverName:       driver,
		RequesterName:    requester,
		RouteDescription: route,
		Status:           models.TripInProgress,
		DepartureTime:    departure,
		DepartureClock:   clockText,
		CreatedBy:        audit.ActorFrom(ctx),
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
	if err := s.d.Trips.InsertTrip(ctx, trip); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return Result{}, conflictf("vehicle %s already has a trip in progress", plate)
		}
		return Result{}, storeError("trip", err)
	}

	if err := s.countDispatch(ctx, driver, plate); err != nil {
		if derr := s.d.Trips.DeleteTrip(ctx, trip.ID); derr != nil {
			s.d.Log.WithError(derr).WithField("trip_id", trip.ID.Hex()).Error("failed to roll back checkout")
		}
		return Result{}, storeError("trip counters", err)
	}

	invalidate(ctx, s.d, "checkout")
	s.d.Audit.Record(ctx, audit.ActionTripCheckout, tripTarget(trip), actorDetails(
		"driver", driver, "requester", trip.RequesterName, "route", trip.RouteDescription, "departure", clockText,
	))
	s.d.Log.WithFields(logrus.Fields{"plate": plate, "driver": driver, "trip_id": trip.ID.Hex()}).Info("trip checked out")

	return Result{
		Message: fmt.Sprintf("Checkout of %s registered at %s.", plate, clockText),
		TripID:  trip.ID.Hex(),
	}, nil
}

// countDispatch bumps the lifetime trip counters of driver and vehicle,
// registering either one on first use. Either both counters move or neither.
func (s *TripService) countDispatch(ctx context.Context, driver, plate string) error {
	if err := s.d.Drivers.IncrementDriverTrips(ctx, driver); err != nil {
		return err
	}
	if err := s.d.Vehicles.IncrementVehicleTrips(ctx, plate); err != nil {
		if derr := s.d.Drivers.DecrementDriverTrips(ctx, driver); derr != nil {
			s.d.Log.WithError(derr).WithField("driver", driver).Error("failed to roll back driver trip counter")
		}
		return err
	}
	return nil
}

// Return closes the open trip of a plate. Fuel and odometer data given with
// the return are logged as a refill on a best-effort basis.
func (s *TripService) Return(ctx context.Context, req models.ReturnRequest) (Result, error) {
	plate := normalize.Plate(req.Plate)
	if plate == "" {
		return Result{}, validationf("plate is required")
	}

	trip, err := s.d.Trips.FindActiveTrip(ctx, plate)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Result{}, notFoundf("no trip in progress for vehicle %s", plate)
		}
		return Result{}, storeError("trip", err)
	}

	arrival, clockText := s.d.Zone.ApplyTimeOfDay(s.d.Clock.Now(), req.Time)
	if arrival.Before(trip.DepartureTime) {
		if strings.TrimSpace(req.Time) != "" {
			return Result{}, validationf("return time %s is before departure at %s", clockText, trip.DepartureClock)
		}
		arrival, clockText = trip.DepartureTime, trip.DepartureClock
	}
	if err := s.d.Trips.FinishTrip(ctx, trip.ID, arrival, clockText); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Result{}, notFoundf("no trip in progress for vehicle %s", plate)
		}
		return Result{}, storeError("trip", err)
	}

	res := Result{
		Message: fmt.Sprintf("Return of %s registered at %s.", plate, clockText),
		TripID:  trip.ID.Hex(),
	}
	if req.Liters != nil || req.Odometer != nil {
		res.Notes = append(res.Notes, s.logReturnRefill(ctx, trip, arrival, req))
	}

	invalidate(ctx, s.d, "return")
	details := actorDetails("driver", trip.DriverName, "arrival", clockText)
	if req.Liters != nil {
		details["liters"] = formatLiters(*req.Liters)
	}
	if req.Odometer != nil {
		details["odometer"] = strconv.FormatInt(*req.Odometer, 10)
	}
	s.d.Audit.Record(ctx, audit.ActionTripReturn, tripTarget(trip), details)
	s.d.Log.WithFields(logrus.Fields{"plate": plate, "trip_id": trip.ID.Hex()}).Info("trip returned")
	return res, nil
}

func (s *TripService) logReturnRefill(ctx context.Context, trip *models.Trip, at time.Time, req models.ReturnRequest) string {
	if req.Liters != nil && *req.Liters <= 0 {
		s.d.Log.WithFields(logrus.Fields{"plate": trip.VehiclePlate, "liters": *req.Liters}).Warn("refill on return skipped")
		return "Fuel data ignored: liters must be greater than zero."
	}
	if req.Odometer != nil && *req.Odometer < 0 {
		s.d.Log.WithFields(logrus.Fields{"plate": trip.VehiclePlate, "odometer": *req.Odometer}).Warn("refill on return skipped")
		return "Fuel data ignored: odometer must not be negative."
	}
	tripID := trip.ID
	refill := &models.Refill{
		VehiclePlate: trip.VehiclePlate,
		DriverName:   trip.DriverName,
		Liters:       req.Liters,
		Odometer:     req.Odometer,
		Timestamp:    at,
		Note:         "recorded on return",
		TripID:       &tripID,
		CreatedBy:    audit.ActorFrom(ctx),
		CreatedAt:    s.d.Clock.Now().UTC(),
	}
	if err := s.d.Refills.InsertRefill(ctx, refill); err != nil {
		s.d.Log.WithError(err).WithField("plate", trip.VehiclePlate).Warn("refill on return not recorded")
		return "Fuel/odometer data could not be recorded; log it again from the refill screen."
	}
	if req.Odometer != nil {
		if err := s.d.Vehicles.RaiseOdometer(ctx, trip.VehiclePlate, *req.Odometer); err != nil && !errors.Is(err, db.ErrNotFound) {
			s.d.Log.WithError(err).WithField("plate", trip.VehiclePlate).Warn("last odometer not updated")
		}
	}
	return "Fuel/odometer data recorded."
}

// Cancel drops the open trip of a plate, as if the checkout never happened.
// Lifetime counters keep the dispatch.
func (s *TripService) Cancel(ctx context.Context, req models.CancelRequest) (Result, error) {
	plate := normalize.Plate(req.Plate)
	if plate == "" {
		return Result{}, validationf("plate is required")
	}
	trip, err := s.d.Trips.FindActiveTrip(ctx, plate)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Result{}, notFoundf("no trip in progress for vehicle %s", plate)
		}
		return Result{}, storeError("trip", err)
	}
	if err := s.d.Trips.DeleteTrip(ctx, trip.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return Result{}, notFoundf("no trip in progress for vehicle %s", plate)
		}
		return Result{}, storeError("trip", err)
	}

	invalidate(ctx, s.d, "cancel")
	s.d.Audit.Record(ctx, audit.ActionTripCancel, tripTarget(trip), actorDetails("driver", trip.DriverName))
	return Result{Message: fmt.Sprintf("Trip of %s cancelled.", plate), TripID: trip.ID.Hex()}, nil
}

// InProgress lists the vehicles currently out, oldest departure first.
func (s *TripService) InProgress(ctx context.Context) ([]models.TripSummary, error) {
	trips, err := s.d.Trips.FindActiveTrips(ctx)
	if err != nil {
		return nil, storeError("trip", err)
	}
	out := make([]models.TripSummary, len(trips))
	for i, t := range trips {
		out[i] = t.Summary()
	}
	return out, nil
}

// Get returns one trip.
func (s *TripService) Get(ctx context.Context, id string) (*models.Trip, error) {
	oid, err := parseID("trip", id)
	if err != nil {
		return nil, err
	}
	trip, err := s.d.Trips.FindTripByID(ctx, oid)
	if err != nil {
		return nil, storeError("trip", err)
	}
	return trip, nil
}

// Edit applies an administrative correction to a trip. The result must still
// satisfy the trip invariants, including one active trip per plate.
func (s *TripService) Edit(ctx context.Context, id string, upd models.TripUpdate) (*models.Trip, error) {
	oid, err := parseID("trip", id)
	if err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return nil, validationf("nothing to update")
	}
	if upd.Status != nil && !models.IsValidTripStatus(*upd.Status) {
		return nil, validationf("invalid status %q", *upd.Status)
	}
	trip, err := s.d.Trips.FindTripByID(ctx, oid)
	if err != nil {
		return nil, storeError("trip", err)
	}

	changed := []string{}
	if upd.DriverName != nil {
		name := normalize.Name(*upd.DriverName)
		if name == "" {
			return nil, validationf("driver is required")
		}
		trip.DriverName = name
		changed = append(changed, "driver_name")
	}
	if upd.RequesterName != nil {
		trip.RequesterName = normalize.Name(*upd.RequesterName)
		changed = append(changed, "requester_name")
	}
	if upd.RouteDescription != nil {
		trip.RouteDescription = normalize.Text(*upd.RouteDescription)
		changed = append(changed, "route_description")
	}
	if upd.DepartureTime != nil {
		trip.DepartureTime = upd.DepartureTime.UTC()
		trip.DepartureClock = s.d.Zone.Format(trip.DepartureTime, "15:04")
		changed = append(changed, "departure_time")
	}
	if upd.ArrivalTime != nil {
		at := upd.ArrivalTime.UTC()
		trip.ArrivalTime = &at
		trip.ArrivalClock = s.d.Zone.Format(at, "15:04")
		changed = append(changed, "arrival_time")
	}
	if upd.Status != nil {
		trip.Status = *upd.Status
		changed = append(changed, "status")
	}

	switch trip.Status {
	case models.TripInProgress:
		trip.ArrivalTime = nil
		trip.ArrivalClock = ""
	case models.TripFinished:
		if trip.ArrivalTime == nil {
			return nil, validationf("a finished trip needs an arrival time")
		}
		if trip.ArrivalTime.Before(trip.DepartureTime) {
			return nil, validationf("arrival must not be before departure")
		}
	}
	trip.UpdatedAt = s.d.Clock.Now().UTC()

	if err := s.d.Trips.ReplaceTrip(ctx, trip); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return nil, conflictf("vehicle %s already has a trip in progress", trip.VehiclePlate)
		}
		return nil, storeError("trip", err)
	}

	invalidate(ctx, s.d, "edit trip")
	s.d.Audit.Record(ctx, audit.ActionTripEdit, tripTarget(trip), actorDetails("fields", strings.Join(changed, ",")))
	return trip, nil
}

// Delete removes a trip record. Lifetime counters are not decremented.
func (s *TripService) Delete(ctx context.Context, id string) error {
	oid, err := parseID("trip", id)
	if err != nil {
		return err
	}
	trip, err := s.d.Trips.FindTripByID(ctx, oid)
	if err != nil {
		return storeError("trip", err)
	}
	if err := s.d.Trips.DeleteTrip(ctx, oid); err != nil {
		return storeError("trip", err)
	}
	invalidate(ctx, s.d, "delete trip")
	s.d.Audit.Record(ctx, audit.ActionTripDelete, tripTarget(trip), actorDetails("driver", trip.DriverName))
	return nil
}
