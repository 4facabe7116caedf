package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ukydev/fleet-logbook/internal/audit"
	"github.com/ukydev/fleet-logbook/internal/db"
	"github.com/ukydev/fleet-logbook/internal/models"
	"github.com/ukydev/fleet-logbook/internal/normalize"
)

// RefillService records fuel and odometer events.
type RefillService struct {
	d Deps
}

// NewRefillService creates a RefillService.
func NewRefillService(d Deps) *RefillService {
	return &RefillService{d: d}
}

// Record logs a refill. Liters are required; the odometer reading, when
// present, also raises the vehicle's last known odometer.
func (s *RefillService) Record(ctx context.Context, req models.RefillRequest) (Result, error) {
	plate := normalize.Plate(req.Plate)
	if plate == "" {
		return Result{}, validationf("plate is required")
	}
	if req.Liters == nil || *req.Liters <= 0 {
		return Result{}, validationf("liters must be greater than zero")
	}
	if req.Odometer != nil && *req.Odometer < 0 {
		return Result{}, validationf("odometer must not be negative")
	}
	now := s.d.Clock.Now()
	at, err := parseTimestamp(req.Timestamp, now)
	if err != nil {
		return Result{}, err
	}

	refill := &models.Refill{
		VehiclePlate: plate,
		DriverName:   normalize.Name(req.Driver),
		Liters:       req.Liters,
		Odometer:     req.Odometer,
		Timestamp:    at,
		Note:         normalize.Text(req.Note),
		CreatedBy:    audit.ActorFrom(ctx),
		CreatedAt:    now.UTC(),
	}
	if err := s.d.Refills.InsertRefill(ctx, refill); err != nil {
		return Result{}, storeError("refill", err)
	}
	s.raiseOdometer(ctx, plate, req.Odometer)

	invalidate(ctx, s.d, "record refill")
	details := actorDetails("driver", refill.DriverName, "liters", formatLiters(*req.Liters))
	if req.Odometer != nil {
		details["odometer"] = strconv.FormatInt(*req.Odometer, 10)
	}
	s.d.Audit.Record(ctx, audit.ActionRefillCreate, plate+"/"+refill.ID.Hex(), details)
	return Result{Message: "Refill recorded for " + plate + ".", RefillID: refill.ID.Hex()}, nil
}

func (s *RefillService) raiseOdometer(ctx context.Context, plate string, odometer *int64) {
	if odometer == nil {
		return
	}
	if err := s.d.Vehicles.RaiseOdometer(ctx, plate, *odometer); err != nil && !errors.Is(err, db.ErrNotFound) {
		s.d.Log.WithError(err).WithField("plate", plate).Warn("last odometer not updated")
	}
}

// List pages the refills of one plate, newest first. An empty plate lists all.
func (s *RefillService) List(ctx context.Context, plate string, page int) (models.RefillPage, error) {
	plate = normalize.Plate(plate)
	page, skip, limit, err := window(page, s.d.Settings.HistoryPageSize)
	if err != nil {
		return models.RefillPage{}, err
	}
	items, total, err := s.d.Refills.FindRefillsPage(ctx, plate, skip, limit)
	if err != nil {
		return models.RefillPage{}, storeError("refill", err)
	}
	return models.RefillPage{Items: items, Total: total, Page: page, PageSize: int(limit)}, nil
}

// Update corrects a recorded refill.
func (s *RefillService) Update(ctx context.Context, id string, upd models.RefillUpdate) (*models.Refill, error) {
	oid, err := parseID("refill", id)
	if err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return nil, validationf("nothing to update")
	}
	if upd.Liters != nil && *upd.Liters <= 0 {
		return nil, validationf("liters must be greater than zero")
	}
	if upd.Odometer != nil && *upd.Odometer < 0 {
		return nil, validationf("odometer must not be negative")
	}
	refill, err := s.d.Refills.FindRefillByID(ctx, oid)
	if err != nil {
		return nil, storeError("refill", err)
	}

	changed := []string{}
	if upd.DriverName != nil {
		refill.DriverName = normalize.Name(*upd.DriverName)
		changed = append(changed, "driver_name")
	}
	if upd.Liters != nil {
		refill.Liters = upd.Liters
		changed = append(changed, "liters")
	}
	if upd.Odometer != nil {
		refill.Odometer = upd.Odometer
		changed = append(changed, "odometer")
	}
	if upd.Timestamp != nil {
		refill.Timestamp = upd.Timestamp.UTC()
		changed = append(changed, "timestamp")
	}
	if upd.Note != nil {
		refill.Note = normalize.Text(*upd.Note)
		changed = append(changed, "note")
	}
	if err := s.d.Refills.ReplaceRefill(ctx, refill); err != nil {
		return nil, storeError("refill", err)
	}
	s.raiseOdometer(ctx, refill.VehiclePlate, upd.Odometer)

	invalidate(ctx, s.d, "edit refill")
	s.d.Audit.Record(ctx, audit.ActionRefillEdit, refill.VehiclePlate+"/"+refill.ID.Hex(),
		actorDetails("fields", strings.Join(changed, ",")))
	return refill, nil
}

// Delete removes a refill.
func (s *RefillService) Delete(ctx context.Context, id string) error {
	oid, err := parseID("refill", id)
	if err != nil {
		return err
	}
	refill, err := s.d.Refills.FindRefillByID(ctx, oid)
	if err != nil {
		return storeError("refill", err)
	}
	if err := s.d.Refills.DeleteRefill(ctx, oid); err != nil {
		return storeError("refill", err)
	}
	invalidate(ctx, s.d, "delete refill")
	s.d.Audit.Record(ctx, audit.ActionRefillDelete, refill.VehiclePlate+"/"+refill.ID.Hex(), nil)
	return nil
}

// Summary totals liters per vehicle over all time and within month
// (YYYY-MM, default the current local month).
func (s *RefillService) Summary(ctx context.Context, month string) (models.RefillSummary, error) {
	if strings.TrimSpace(month) == "" {
		month = s.d.Zone.CurrentMonth(s.d.Clock.Now())
	}
	period, err := s.d.Zone.MonthRange(month)
	if err != nil {
		return models.RefillSummary{}, validationf("%s", err.Error())
	}
	total, err := s.d.Refills.SumLitersByPlate(ctx, nil)
	if err != nil {
		return models.RefillSummary{}, storeError("refill", err)
	}
	monthly, err := s.d.Refills.SumLitersByPlate(ctx, &period)
	if err != nil {
		return models.RefillSummary{}, storeError("refill", err)
	}
	return models.RefillSummary{
		Month:         strings.TrimSpace(month),
		PerVehicle:    litersSeries(total),
		PerVehicleMon: litersSeries(monthly),
	}, nil
}

func litersSeries(sums map[string]float64) models.Series {
	labels := make([]string, 0, len(sums))
	for plate := range sums {
		labels = append(labels, plate)
	}
	sort.Slice(labels, func(i, j int) bool {
		if sums[labels[i]] != sums[labels[j]] {
			return sums[labels[i]] > sums[labels[j]]
		}
		return labels[i] < labels[j]
	})
	data := make([]float64, len(labels))
	for i, plate := range labels {
		data[i] = math.Round(sums[plate]*100) / 100
	}
	return models.Series{Labels: labels, Data: data}
}
